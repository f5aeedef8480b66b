package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whatsondev/whatsfeed/internal/api"
	"github.com/whatsondev/whatsfeed/internal/cache"
	"github.com/whatsondev/whatsfeed/internal/credentials"
	"github.com/whatsondev/whatsfeed/internal/db"
	"github.com/whatsondev/whatsfeed/internal/feed"
	"github.com/whatsondev/whatsfeed/internal/instagram"
	"github.com/whatsondev/whatsfeed/internal/render"
	"github.com/whatsondev/whatsfeed/internal/settings"
	"github.com/whatsondev/whatsfeed/internal/tiktok"
	"github.com/whatsondev/whatsfeed/pkg/config"
	"github.com/whatsondev/whatsfeed/pkg/logging"
	"github.com/whatsondev/whatsfeed/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting WhatsFeed server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Settings store: Postgres when configured, in-memory otherwise
	var store settings.Store
	if cfg.Database.URL != "" {
		database, err := db.New(&cfg.Database, cfg.Logging.Level)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer database.Close()
		store = settings.NewGormStore(database.DB)
	} else {
		logger.Warn("No database configured, settings are in-memory and lost on restart")
		store = settings.NewMemoryStore()
	}

	// Feed cache: Redis when configured, settings transients otherwise
	redisCache, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisCache != nil {
		defer redisCache.Close()
	}
	feedCache := cache.Select(redisCache, store)

	httpClient := &http.Client{Timeout: cfg.Feed.UpstreamTimeout}

	// Credentials and fetchers
	creds := credentials.NewManager(store, httpClient, cfg)
	igClient := instagram.NewClient(httpClient, cfg.Instagram)
	creds.SetUsernameResolver(igClient)

	aggregator := feed.NewAggregator(
		instagram.NewFetcher(igClient, creds, feedCache, cfg),
		tiktok.NewFetcher(httpClient, creds, feedCache, cfg),
	)

	renderer, err := render.New()
	if err != nil {
		logger.Fatal("Failed to build renderer", zap.Error(err))
	}

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	api.NewRouter(aggregator, creds, renderer, feedCache, cfg).SetupRoutes(engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
