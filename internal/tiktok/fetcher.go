package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/whatsondev/whatsfeed/internal/cache"
	"github.com/whatsondev/whatsfeed/internal/credentials"
	"github.com/whatsondev/whatsfeed/internal/feed"
	"github.com/whatsondev/whatsfeed/pkg/config"
	"github.com/whatsondev/whatsfeed/pkg/logging"
	"github.com/whatsondev/whatsfeed/pkg/telemetry"
)

// Fields requested from the video-list endpoint
var videoFields = []string{
	"id", "title", "cover_image_url", "share_url", "video_description",
	"duration", "height", "width", "create_time",
}

// Fetcher is the TikTok feed source. There is no public scraping path;
// without credentials it yields Empty so the aggregator can fall back to
// Instagram alone.
type Fetcher struct {
	http     *http.Client
	creds    *credentials.Manager
	cache    cache.Cache
	apiURL   string
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewFetcher creates the TikTok fetcher
func NewFetcher(httpClient *http.Client, creds *credentials.Manager, feedCache cache.Cache, cfg *config.Config) *Fetcher {
	return &Fetcher{
		http:     httpClient,
		creds:    creds,
		cache:    feedCache,
		apiURL:   cfg.TikTok.APIURL,
		cacheTTL: cfg.Feed.CacheTTL,
		logger:   logging.GetLogger().With(zap.String("component", "tiktok-fetcher")),
	}
}

// Platform implements feed.Fetcher
func (f *Fetcher) Platform() feed.Source {
	return feed.SourceTikTok
}

// Fetch implements feed.Fetcher
func (f *Fetcher) Fetch(ctx context.Context, limit int) feed.Outcome {
	ctx, span := telemetry.StartSpan(ctx, "tiktok.fetch")
	defer span.End()

	rec := f.creds.Load(ctx, feed.SourceTikTok)
	if rec.AccessToken == "" {
		return feed.Empty()
	}

	key := cache.FeedKey(string(feed.SourceTikTok), rec.AccessToken, limit)
	if raw, ok := f.cache.Get(ctx, key); ok {
		var posts []feed.Post
		if err := json.Unmarshal([]byte(raw), &posts); err == nil && len(posts) > 0 {
			return feed.Success(posts)
		}
	}

	if rec.TokenExpired(time.Now()) || !f.creds.IsTokenValid(ctx, feed.SourceTikTok) {
		if !f.creds.RefreshToken(ctx, feed.SourceTikTok) {
			return feed.Fail(feed.NewError(feed.KindExpiredToken,
				"access token is invalid and could not be refreshed"))
		}
		rec = f.creds.Load(ctx, feed.SourceTikTok)
	}

	videos, ferr := f.listVideos(ctx, rec.AccessToken, limit)
	if ferr != nil {
		if feed.SetsDecryptionFlag(ferr.Kind) {
			f.creds.SetDecryptionErrorFlag(ctx, feed.SourceTikTok)
		}
		return feed.Fail(ferr)
	}
	if len(videos) == 0 {
		// Credentials work but the account has nothing to show; this is a
		// configured-but-broken state, not a silent empty
		return feed.Fail(feed.NewError(feed.KindNoPostsFound, "video listing returned no videos"))
	}

	posts := make([]feed.Post, 0, len(videos))
	for _, video := range videos {
		if len(posts) >= limit {
			break
		}
		post := videoToPost(video, rec.Username)
		if !post.Renderable() {
			continue
		}
		posts = append(posts, post)
	}
	if len(posts) == 0 {
		return feed.Fail(feed.NewError(feed.KindNoPostsFound, "no renderable videos in listing"))
	}

	if raw, err := json.Marshal(posts); err == nil {
		if err := f.cache.Set(ctx, key, string(raw), f.cacheTTL); err != nil {
			f.logger.Warn("failed to cache tiktok feed", zap.Error(err))
		}
	}
	return feed.Success(posts)
}

type video struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	CoverImageURL    string `json:"cover_image_url"`
	ShareURL         string `json:"share_url"`
	VideoDescription string `json:"video_description"`
	Duration         int    `json:"duration"`
	Height           int    `json:"height"`
	Width            int    `json:"width"`
	CreateTime       int64  `json:"create_time"`
}

func (f *Fetcher) listVideos(ctx context.Context, accessToken string, limit int) ([]video, *feed.Error) {
	ctx, span := telemetry.StartSpan(ctx, "tiktok.list_videos")
	defer span.End()

	body, err := json.Marshal(map[string]interface{}{
		"max_count": limit,
		"fields":    videoFields,
	})
	if err != nil {
		return nil, feed.NewError(feed.KindAPI, "failed to encode listing request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.apiURL+"/v2/video/list/", bytes.NewReader(body))
	if err != nil {
		return nil, feed.NewError(feed.KindAPI, "failed to build listing request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, feed.NewError(feed.KindTransport, "video listing request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, feed.NewError(feed.KindTransport, "failed to read listing response: %v", err)
	}

	var payload struct {
		Data struct {
			Videos []video `json:"videos"`
		} `json:"data"`
		Error *struct {
			Code    interface{} `json:"code"`
			Message string      `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, feed.NewError(feed.KindUnexpectedSchema, "undecodable listing response (status %d)", resp.StatusCode)
	}

	// The v2 API ships an error object with code "ok" on success
	if payload.Error != nil && payload.Error.Message != "" && errCodeIsFailure(payload.Error.Code) {
		kind := feed.ClassifyUpstreamError(numericErrCode(payload.Error.Code), payload.Error.Message)
		return nil, feed.NewError(kind, "video listing rejected: %s", payload.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, feed.NewError(feed.KindAPI, "video listing returned status %d", resp.StatusCode)
	}
	return payload.Data.Videos, nil
}

func errCodeIsFailure(code interface{}) bool {
	s, ok := code.(string)
	return !ok || (s != "ok" && s != "")
}

func numericErrCode(code interface{}) int {
	if n, ok := code.(float64); ok {
		return int(n)
	}
	return 0
}

func videoToPost(v video, username string) feed.Post {
	caption := v.VideoDescription
	if caption == "" {
		caption = v.Title
	}
	return feed.Post{
		ID:           v.ID,
		Permalink:    v.ShareURL,
		MediaType:    feed.MediaVideo,
		MediaURL:     v.CoverImageURL,
		ThumbnailURL: v.CoverImageURL,
		Caption:      caption,
		Timestamp:    v.CreateTime,
		Source:       feed.SourceTikTok,
		Username:     username,
	}
}
