package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whatsondev/whatsfeed/internal/cache"
	"github.com/whatsondev/whatsfeed/internal/credentials"
	"github.com/whatsondev/whatsfeed/internal/feed"
	"github.com/whatsondev/whatsfeed/pkg/config"
	"github.com/whatsondev/whatsfeed/pkg/logging"
)

// Router sets up the HTTP surface over the aggregator, credential manager
// and renderer
type Router struct {
	agg      *feed.Aggregator
	creds    *credentials.Manager
	renderer feed.Renderer
	cache    cache.Cache
	cfg      *config.Config
	logger   *zap.Logger
}

// NewRouter creates the API router
func NewRouter(agg *feed.Aggregator, creds *credentials.Manager, renderer feed.Renderer, feedCache cache.Cache, cfg *config.Config) *Router {
	return &Router{
		agg:      agg,
		creds:    creds,
		renderer: renderer,
		cache:    feedCache,
		cfg:      cfg,
		logger:   logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes registers all routes on the engine
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/feed", r.feedHandler)
	engine.GET("/feed/render", r.feedRenderHandler)

	engine.GET("/oauth/:platform/callback", r.oauthCallbackHandler)

	engine.GET("/api/test-connection", r.testConnectionHandler)
	engine.POST("/api/credentials/demo", r.generateDemoHandler)
	engine.DELETE("/api/credentials/demo", r.clearDemoHandler)
	engine.POST("/api/cache/clear", r.clearCacheHandler)
}

func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "whatsfeed",
	})
}

func (r *Router) limitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(r.cfg.Feed.DefaultLimit)))
	if err != nil || limit < 1 {
		return r.cfg.Feed.DefaultLimit
	}
	if limit > r.cfg.Feed.MaxLimit {
		return r.cfg.Feed.MaxLimit
	}
	return limit
}

func (r *Router) fetchFor(c *gin.Context, limit int) (feed.Outcome, bool) {
	switch c.DefaultQuery("source", "both") {
	case "instagram":
		return r.agg.Fetch(c.Request.Context(), feed.SourceInstagram, limit), true
	case "tiktok":
		return r.agg.Fetch(c.Request.Context(), feed.SourceTikTok, limit), true
	case "both":
		return r.agg.FetchCombined(c.Request.Context(), limit), true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "source must be instagram, tiktok or both"})
		return feed.Outcome{}, false
	}
}

func (r *Router) feedHandler(c *gin.Context) {
	limit := r.limitParam(c)
	outcome, ok := r.fetchFor(c, limit)
	if !ok {
		return
	}

	if outcome.IsError() {
		c.JSON(errorStatus(outcome.Err.Kind), gin.H{
			"error": gin.H{
				"kind":    string(outcome.Err.Kind),
				"message": outcome.Err.Message,
			},
		})
		return
	}

	posts := outcome.Posts
	if posts == nil {
		posts = []feed.Post{}
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

func (r *Router) feedRenderHandler(c *gin.Context) {
	limit := r.limitParam(c)
	outcome, ok := r.fetchFor(c, limit)
	if !ok {
		return
	}

	// The render surface never hard-fails the embedding page
	if outcome.IsError() {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(r.renderer.RenderError(outcome.Err.Message)))
		return
	}

	columns, _ := strconv.Atoi(c.DefaultQuery("columns", "3"))
	opts := feed.RenderOptions{
		Layout:       feed.Layout(c.DefaultQuery("layout", string(feed.LayoutGrid))),
		Columns:      columns,
		ShowCaptions: c.Query("show_captions") == "true",
		OpenInPopup:  c.Query("open_in_popup") == "true",
	}

	markup, err := r.renderer.Render(outcome.Posts, opts)
	if err != nil {
		r.logger.Error("feed render failed", zap.Error(err))
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(r.renderer.RenderError("feed rendering failed")))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(markup))
}

func platformParam(raw string) (feed.Source, bool) {
	switch raw {
	case "instagram":
		return feed.SourceInstagram, true
	case "tiktok":
		return feed.SourceTikTok, true
	default:
		return "", false
	}
}

// testConnectionHandler runs the real fetch path with limit 1. Diagnostics
// through a separate mock path would pass while production fetches fail.
func (r *Router) testConnectionHandler(c *gin.Context) {
	platform, ok := platformParam(c.Query("platform"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform must be instagram or tiktok"})
		return
	}

	outcome := r.agg.Fetch(c.Request.Context(), platform, 1)
	switch {
	case outcome.IsError():
		resp := gin.H{
			"success": false,
			"message": outcome.Err.Message,
		}
		if suggestion := suggestionFor(outcome.Err.Kind); suggestion != "" {
			resp["suggestion"] = suggestion
		}
		c.JSON(http.StatusOK, resp)
	case outcome.HasPosts():
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Connection working, feed returned posts.",
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":    false,
			"message":    "No credentials configured.",
			"suggestion": suggestionFor(feed.KindMissingCredentials),
		})
	}
}

func (r *Router) oauthCallbackHandler(c *gin.Context) {
	platform, ok := platformParam(c.Param("platform"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown platform"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	rec, err := r.creds.ExchangeCode(c.Request.Context(), platform, code)
	if err != nil {
		r.logger.Error("oauth exchange failed",
			zap.String("platform", string(platform)), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
		return
	}

	r.creds.ResolveUserID(c.Request.Context(), platform, rec.AccessToken)
	c.JSON(http.StatusOK, gin.H{"success": true, "platform": string(platform)})
}

func (r *Router) generateDemoHandler(c *gin.Context) {
	platform, ok := platformParam(c.Query("platform"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform must be instagram or tiktok"})
		return
	}

	rec, err := r.creds.GenerateDemoCredentials(c.Request.Context(), platform)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate demo credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"platform": string(platform),
		"username": rec.Username,
		"is_demo":  rec.IsDemo,
	})
}

func (r *Router) clearDemoHandler(c *gin.Context) {
	platform, ok := platformParam(c.Query("platform"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform must be instagram or tiktok"})
		return
	}

	if err := r.creds.ClearDemoCredentials(c.Request.Context(), platform); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear demo credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (r *Router) clearCacheHandler(c *gin.Context) {
	raw := c.DefaultQuery("platform", "both")
	platforms := []feed.Source{feed.SourceInstagram, feed.SourceTikTok}
	if raw != "both" {
		platform, ok := platformParam(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "platform must be instagram, tiktok or both"})
			return
		}
		platforms = []feed.Source{platform}
	}

	for _, platform := range platforms {
		if err := r.cache.DeletePrefix(c.Request.Context(), cache.PlatformPrefix(string(platform))); err != nil {
			r.logger.Warn("cache clear failed",
				zap.String("platform", string(platform)), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
