package feed

import (
	"context"

	"go.uber.org/zap"

	"github.com/whatsondev/whatsfeed/pkg/logging"
	"github.com/whatsondev/whatsfeed/pkg/telemetry"
)

// Fetcher is a per-platform feed source
type Fetcher interface {
	Platform() Source
	Fetch(ctx context.Context, limit int) Outcome
}

// Aggregator merges per-platform fetch results. Platform failures are
// isolated: one platform's error never aborts the other's fetch.
type Aggregator struct {
	instagram Fetcher
	tiktok    Fetcher
	logger    *zap.Logger
}

// NewAggregator creates an aggregator over the two platform fetchers
func NewAggregator(instagram, tiktok Fetcher) *Aggregator {
	return &Aggregator{
		instagram: instagram,
		tiktok:    tiktok,
		logger:    logging.GetLogger().With(zap.String("component", "aggregator")),
	}
}

// Fetch dispatches a single-platform request
func (a *Aggregator) Fetch(ctx context.Context, source Source, limit int) Outcome {
	switch source {
	case SourceInstagram:
		return a.instagram.Fetch(ctx, limit)
	case SourceTikTok:
		return a.tiktok.Fetch(ctx, limit)
	default:
		return Fail(NewError(KindAPI, "unknown source %q", source))
	}
}

// FetchCombined fetches both platforms and merges the results. When both
// yield posts the merged list is Instagram-first and truncated to limit;
// when both fail, the Instagram error wins the tie-break so the caller
// always sees a deterministic outcome.
func (a *Aggregator) FetchCombined(ctx context.Context, limit int) Outcome {
	ctx, span := telemetry.StartSpan(ctx, "feed.fetch_combined")
	defer span.End()

	instagram := a.instagram.Fetch(ctx, limit)
	tiktok := a.tiktok.Fetch(ctx, limit)

	if instagram.IsError() {
		a.logger.Warn("instagram fetch failed in combined mode", zap.String("error", instagram.Err.Error()))
	}
	if tiktok.IsError() {
		a.logger.Warn("tiktok fetch failed in combined mode", zap.String("error", tiktok.Err.Error()))
	}

	switch {
	case instagram.HasPosts() && tiktok.HasPosts():
		merged := make([]Post, 0, len(instagram.Posts)+len(tiktok.Posts))
		merged = append(merged, instagram.Posts...)
		merged = append(merged, tiktok.Posts...)
		if len(merged) > limit {
			merged = merged[:limit]
		}
		return Success(merged)
	case instagram.HasPosts():
		return instagram
	case tiktok.HasPosts():
		return tiktok
	case instagram.IsError():
		return instagram
	case tiktok.IsError():
		return tiktok
	default:
		return Empty()
	}
}
