package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/whatsondev/whatsfeed/internal/feed"
	"github.com/whatsondev/whatsfeed/pkg/telemetry"
)

// profileUser is the user shape shared by every scrape strategy. Each
// strategy digs it out of a different envelope; past that point the chain is
// shape-agnostic.
type profileUser struct {
	ID        string        `json:"id"`
	Username  string        `json:"username"`
	IsPrivate bool          `json:"is_private"`
	Timeline  timelineMedia `json:"edge_owner_to_timeline_media"`
}

type timelineMedia struct {
	Edges []timelineEdge `json:"edges"`
}

type timelineEdge struct {
	Node mediaNode `json:"node"`
}

// extractionStrategy is one way of getting a profile's timeline without
// authentication. Strategies run in priority order; upstream keeps breaking
// individual surfaces, so each one is an isolated, replaceable probe.
type extractionStrategy struct {
	name string
	run  func(ctx context.Context, username string, limit int) (*profileUser, error)
}

func (c *Client) strategies() []extractionStrategy {
	return []extractionStrategy{
		{name: "web_profile_info", run: c.tryWebProfileInfo},
		{name: "legacy_page_json", run: c.tryLegacyPageJSON},
		{name: "graphql_query", run: c.tryGraphQL},
		{name: "html_embedded_json", run: c.tryEmbeddedHTML},
	}
}

// ScrapeTimeline walks the strategy chain until one yields posts. A private
// signal from any strategy aborts the chain immediately, regardless of what
// the timeline carried.
func (c *Client) ScrapeTimeline(ctx context.Context, username string, limit int) (*profileUser, *feed.Error) {
	ctx, span := telemetry.StartSpan(ctx, "instagram.scrape_timeline")
	defer span.End()

	failures := 0
	unreachable := 0
	for _, strategy := range c.strategies() {
		user, err := strategy.run(ctx, username, limit)
		if err != nil {
			c.logger.Debug("scrape strategy failed",
				zap.String("strategy", strategy.name), zap.String("username", username), zap.Error(err))
			failures++
			if errors.Is(err, errUpstreamUnreachable) {
				unreachable++
			}
			continue
		}
		if user == nil {
			continue
		}
		if user.IsPrivate {
			return nil, feed.NewError(feed.KindPrivateAccount, "account %q is private", username)
		}
		if len(user.Timeline.Edges) > 0 {
			c.logger.Info("scrape strategy succeeded",
				zap.String("strategy", strategy.name), zap.String("username", username),
				zap.Int("posts", len(user.Timeline.Edges)))
			return user, nil
		}
	}

	// Transport is reserved for the host being unreachable outright; a
	// reachable upstream that rejected or starved every strategy is a dry
	// profile, not a retriable failure
	if failures == len(c.strategies()) && unreachable == failures {
		return nil, feed.NewError(feed.KindTransport, "instagram unreachable for %q", username)
	}
	return nil, feed.NewError(feed.KindNoPostsFound, "no posts found for %q", username)
}

func (c *Client) tryWebProfileInfo(ctx context.Context, username string, _ int) (*profileUser, error) {
	infoURL := fmt.Sprintf("%s/api/v1/users/web_profile_info/?username=%s",
		c.cfg.AppAPIURL, url.PathEscape(username))

	status, body, err := c.get(ctx, infoURL, requestOpts{withAppID: true})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("profile info returned status %d", status)
	}

	var payload struct {
		Data struct {
			User *profileUser `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("undecodable profile info: %w", err)
	}
	return payload.Data.User, nil
}

func (c *Client) tryLegacyPageJSON(ctx context.Context, username string, _ int) (*profileUser, error) {
	pageURL := fmt.Sprintf("%s/%s/?__a=1&__d=dis", c.cfg.WebURL, url.PathEscape(username))

	status, body, err := c.get(ctx, pageURL, requestOpts{})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("legacy page json returned status %d", status)
	}

	// The legacy endpoint has shipped the user under two different roots
	var payload struct {
		GraphQL struct {
			User *profileUser `json:"user"`
		} `json:"graphql"`
		Data struct {
			User *profileUser `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("undecodable legacy page json: %w", err)
	}
	if payload.GraphQL.User != nil {
		return payload.GraphQL.User, nil
	}
	return payload.Data.User, nil
}

const timelineQueryHash = "8c2a529969ee035a5063f2fc8602a0fd"

func (c *Client) tryGraphQL(ctx context.Context, username string, limit int) (*profileUser, error) {
	userID, err := c.ResolveUserID(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("graphql needs a user id: %w", err)
	}

	variables, _ := json.Marshal(map[string]interface{}{"id": userID, "first": limit})
	queryURL := fmt.Sprintf("%s/graphql/query/?query_hash=%s&variables=%s",
		c.cfg.WebURL, timelineQueryHash, url.QueryEscape(string(variables)))

	status, body, err := c.get(ctx, queryURL, requestOpts{acceptJSON: true, withAppID: true})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("graphql query returned status %d", status)
	}

	var payload struct {
		Data struct {
			User *profileUser `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("undecodable graphql response: %w", err)
	}
	if payload.Data.User != nil && payload.Data.User.ID == "" {
		payload.Data.User.ID = userID
	}
	return payload.Data.User, nil
}

// Script blobs the profile HTML has embedded its data in over the years,
// tried newest-first
var embeddedJSONPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<script type="application/json"[^>]*data-sjs[^>]*>(\{.*?\})</script>`),
	regexp.MustCompile(`(?s)window\.__additionalDataLoaded\('[^']+',\s*(\{.*?\})\);</script>`),
	regexp.MustCompile(`(?s)window\._sharedData\s*=\s*(\{.*?\});</script>`),
}

func (c *Client) tryEmbeddedHTML(ctx context.Context, username string, _ int) (*profileUser, error) {
	pageURL := fmt.Sprintf("%s/%s/", c.cfg.WebURL, url.PathEscape(username))

	status, body, err := c.get(ctx, pageURL, requestOpts{})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("profile page returned status %d", status)
	}

	for _, pattern := range embeddedJSONPatterns {
		for _, match := range pattern.FindAllSubmatch(body, -1) {
			var blob interface{}
			if err := json.Unmarshal(match[1], &blob); err != nil {
				continue
			}
			owner := findTimelineOwner(blob)
			if owner == nil {
				continue
			}
			raw, err := json.Marshal(owner)
			if err != nil {
				continue
			}
			var user profileUser
			if err := json.Unmarshal(raw, &user); err != nil {
				continue
			}
			return &user, nil
		}
	}
	return nil, fmt.Errorf("no embedded timeline data in profile html")
}

// findTimelineOwner walks a decoded JSON blob for the object that carries
// the timeline, wherever the current page structure buried it
func findTimelineOwner(v interface{}) map[string]interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if _, ok := t["edge_owner_to_timeline_media"]; ok {
			return t
		}
		for _, child := range t {
			if owner := findTimelineOwner(child); owner != nil {
				return owner
			}
		}
	case []interface{}:
		for _, child := range t {
			if owner := findTimelineOwner(child); owner != nil {
				return owner
			}
		}
	}
	return nil
}

// Patterns that have carried the numeric user id in profile HTML
var userIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"user_id":"(\d+)"`),
	regexp.MustCompile(`profilePage_(\d+)`),
	regexp.MustCompile(`"owner":\{"id":"(\d+)"`),
	regexp.MustCompile(`"user":\{"id":"(\d+)"`),
	regexp.MustCompile(`"id":"(\d+)"`),
}

// ResolveUserID turns a username into the numeric platform id. It satisfies
// the credential manager's resolver contract and is also the lookup step of
// the GraphQL strategy.
func (c *Client) ResolveUserID(ctx context.Context, username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("empty username")
	}

	if user, err := c.tryWebProfileInfo(ctx, username, 0); err == nil && user != nil && user.ID != "" {
		return user.ID, nil
	}
	if user, err := c.tryLegacyPageJSON(ctx, username, 0); err == nil && user != nil && user.ID != "" {
		return user.ID, nil
	}

	pageURL := fmt.Sprintf("%s/%s/", c.cfg.WebURL, url.PathEscape(username))
	status, body, err := c.get(ctx, pageURL, requestOpts{})
	if err != nil {
		return "", fmt.Errorf("profile page fetch failed: %w", err)
	}
	if status == http.StatusOK {
		for _, pattern := range userIDPatterns {
			if match := pattern.FindSubmatch(body); match != nil {
				return string(match[1]), nil
			}
		}
	}
	return "", fmt.Errorf("user id for %q not found on any surface", username)
}
