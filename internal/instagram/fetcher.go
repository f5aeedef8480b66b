package instagram

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/whatsondev/whatsfeed/internal/cache"
	"github.com/whatsondev/whatsfeed/internal/credentials"
	"github.com/whatsondev/whatsfeed/internal/feed"
	"github.com/whatsondev/whatsfeed/pkg/config"
	"github.com/whatsondev/whatsfeed/pkg/logging"
	"github.com/whatsondev/whatsfeed/pkg/telemetry"
)

// Fetcher is the Instagram feed source: cache first, then the active
// credential mode decides between the scrape chain and the Graph API
type Fetcher struct {
	client   *Client
	creds    *credentials.Manager
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewFetcher creates the Instagram fetcher
func NewFetcher(client *Client, creds *credentials.Manager, feedCache cache.Cache, cfg *config.Config) *Fetcher {
	return &Fetcher{
		client:   client,
		creds:    creds,
		cache:    feedCache,
		cacheTTL: cfg.Feed.CacheTTL,
		logger:   logging.GetLogger().With(zap.String("component", "instagram-fetcher")),
	}
}

// Platform implements feed.Fetcher
func (f *Fetcher) Platform() feed.Source {
	return feed.SourceInstagram
}

// Fetch implements feed.Fetcher
func (f *Fetcher) Fetch(ctx context.Context, limit int) feed.Outcome {
	ctx, span := telemetry.StartSpan(ctx, "instagram.fetch")
	defer span.End()

	rec := f.creds.Load(ctx, feed.SourceInstagram)
	mode := f.creds.ResolveAuthMode(ctx, feed.SourceInstagram)
	if mode == credentials.Unconfigured {
		return feed.Fail(feed.NewError(feed.KindMissingCredentials,
			"no instagram username or access token configured"))
	}

	principal := rec.Username
	if mode == credentials.TokenBased {
		principal = rec.AccessToken
	}
	key := cache.FeedKey(string(feed.SourceInstagram), principal, limit)

	if posts, ok := f.cachedPosts(ctx, key); ok {
		return feed.Success(posts)
	}

	var outcome feed.Outcome
	switch mode {
	case credentials.UsernameBased:
		outcome = f.fetchByUsername(ctx, rec.Username, limit)
	default:
		outcome = f.fetchByToken(ctx, rec, limit)
	}

	if outcome.HasPosts() {
		f.storePosts(ctx, key, outcome.Posts)
	}
	return outcome
}

func (f *Fetcher) cachedPosts(ctx context.Context, key string) ([]feed.Post, bool) {
	raw, ok := f.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var posts []feed.Post
	if err := json.Unmarshal([]byte(raw), &posts); err != nil || len(posts) == 0 {
		return nil, false
	}
	return posts, true
}

func (f *Fetcher) storePosts(ctx context.Context, key string, posts []feed.Post) {
	raw, err := json.Marshal(posts)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, key, string(raw), f.cacheTTL); err != nil {
		f.logger.Warn("failed to cache instagram feed", zap.Error(err))
	}
}

func (f *Fetcher) fetchByUsername(ctx context.Context, username string, limit int) feed.Outcome {
	user, ferr := f.client.ScrapeTimeline(ctx, username, limit)
	if ferr != nil {
		return feed.Fail(ferr)
	}

	posts := timelineToPosts(user, username, limit)
	if len(posts) == 0 {
		return feed.Fail(feed.NewError(feed.KindNoPostsFound, "no renderable posts for %q", username))
	}
	return feed.Success(posts)
}

func (f *Fetcher) fetchByToken(ctx context.Context, rec credentials.Record, limit int) feed.Outcome {
	// A token past its stored expiry goes straight to refresh; probing it
	// would only burn an upstream call on a known-stale credential
	if rec.TokenExpired(time.Now()) || !f.creds.IsTokenValid(ctx, feed.SourceInstagram) {
		if !f.creds.RefreshToken(ctx, feed.SourceInstagram) {
			return feed.Fail(feed.NewError(feed.KindExpiredToken,
				"access token is invalid and could not be refreshed"))
		}
		rec = f.creds.Load(ctx, feed.SourceInstagram)
	}

	if rec.IdentityID == "" {
		f.creds.ResolveUserID(ctx, feed.SourceInstagram, rec.AccessToken)
		rec = f.creds.Load(ctx, feed.SourceInstagram)
	}

	items, ferr := f.client.OwnedMedia(ctx, rec.AccessToken, limit)
	if ferr != nil {
		if feed.SetsDecryptionFlag(ferr.Kind) {
			f.creds.SetDecryptionErrorFlag(ctx, feed.SourceInstagram)
		}
		return feed.Fail(ferr)
	}

	posts := make([]feed.Post, 0, len(items))
	for _, item := range items {
		if len(posts) >= limit {
			break
		}
		post := graphMediaToPost(item, rec.Username)
		if !post.Renderable() {
			continue
		}
		posts = append(posts, post)
	}
	if len(posts) == 0 {
		return feed.Fail(feed.NewError(feed.KindNoPostsFound, "media listing returned no renderable posts"))
	}
	return feed.Success(posts)
}
