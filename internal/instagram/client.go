package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/whatsondev/whatsfeed/internal/feed"
	"github.com/whatsondev/whatsfeed/pkg/config"
	"github.com/whatsondev/whatsfeed/pkg/logging"
	"github.com/whatsondev/whatsfeed/pkg/telemetry"
)

// The unauthenticated endpoints only answer to browser-shaped requests
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// errUpstreamUnreachable marks a failure to reach the host at all, as
// opposed to a response that rejected the request
var errUpstreamUnreachable = errors.New("upstream unreachable")

// Client wraps all outbound Instagram HTTP traffic: the authenticated Graph
// endpoints and the unauthenticated web surfaces the scrape chain uses
type Client struct {
	http   *http.Client
	cfg    config.InstagramConfig
	logger *zap.Logger
}

// NewClient creates an Instagram client over the given HTTP client
func NewClient(httpClient *http.Client, cfg config.InstagramConfig) *Client {
	return &Client{
		http:   httpClient,
		cfg:    cfg,
		logger: logging.GetLogger().With(zap.String("component", "instagram-client")),
	}
}

type requestOpts struct {
	acceptJSON bool
	// withAppID attaches the x-ig-app-id header the profile-info endpoint
	// requires
	withAppID bool
}

func (c *Client) get(ctx context.Context, rawURL string, opts requestOpts) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if opts.acceptJSON {
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	} else {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	}
	if opts.withAppID {
		req.Header.Set("x-ig-app-id", c.cfg.AppID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", errUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// graphMedia is one item from the authenticated media-listing endpoint
type graphMedia struct {
	ID           string `json:"id"`
	Caption      string `json:"caption"`
	MediaType    string `json:"media_type"`
	MediaURL     string `json:"media_url"`
	Permalink    string `json:"permalink"`
	ThumbnailURL string `json:"thumbnail_url"`
	Timestamp    string `json:"timestamp"`
}

// OwnedMedia lists the token owner's media through the Graph API. Errors come
// back classified; the raw upstream message never escapes.
func (c *Client) OwnedMedia(ctx context.Context, accessToken string, limit int) ([]graphMedia, *feed.Error) {
	ctx, span := telemetry.StartSpan(ctx, "instagram.owned_media")
	defer span.End()

	mediaURL := fmt.Sprintf("%s/me/media?fields=id,caption,media_type,media_url,permalink,thumbnail_url,timestamp&limit=%d&access_token=%s",
		c.cfg.GraphURL, limit, url.QueryEscape(accessToken))

	status, body, err := c.get(ctx, mediaURL, requestOpts{acceptJSON: true})
	if err != nil {
		return nil, feed.NewError(feed.KindTransport, "media request failed: %v", err)
	}

	var payload struct {
		Data  []graphMedia `json:"data"`
		Error *struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, feed.NewError(feed.KindUnexpectedSchema, "undecodable media response (status %d)", status)
	}

	if payload.Error != nil {
		kind := feed.ClassifyUpstreamError(payload.Error.Code, payload.Error.Message)
		return nil, feed.NewError(kind, "media request rejected: %s", payload.Error.Message)
	}
	if status != http.StatusOK {
		return nil, feed.NewError(feed.KindAPI, "media request returned status %d", status)
	}
	return payload.Data, nil
}
