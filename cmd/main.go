// Package main is the entry point for the gift card pool server
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"giftvault/server/internal/creator"
	api "giftvault/server/internal/handler"
	"giftvault/server/internal/model"
	"giftvault/server/internal/repository"
	core "giftvault/server/internal/service"
	"giftvault/server/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Configure logger
	if err := core.SetupLogger(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Int("pools", len(cfg.Pools)).
		Msg("Starting gift card pool server")

	// Restore pool state from the snapshot file
	store := core.NewFileStore(cfg.Store.Path)
	snap, err := store.Load()
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to load pool snapshot")
	}

	registry := core.NewRegistry(cfg.Pools)
	registry.Restore(snap)
	for _, tier := range registry.Tiers() {
		log.Info().Str("tier", tier).Int("size", registry.Size(tier)).Msg("Pool restored")
	}

	// Redis event ledger (optional)
	var redisClient *redis.Client
	var ledger *core.EventLedger
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis, event ledger disabled")
			redisClient.Close()
			redisClient = nil
		} else {
			ledger = core.NewEventLedger(redisClient, cfg.Redis)
			log.Info().Str("host", cfg.Redis.Host).Int("port", cfg.Redis.Port).Msg("Redis connected")
		}
		cancel()
	} else {
		log.Info().Msg("Redis is disabled in configuration")
	}

	// MySQL card archive (optional)
	var archive *repository.CardArchive
	if cfg.Archive.Enabled {
		db, err := repository.Connect(&cfg.Archive)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to MySQL, card archive disabled")
		} else {
			defer db.Close()
			archive = repository.NewCardArchive(db)
			archive.Start()
			log.Info().Str("host", cfg.Archive.Host).Str("db", cfg.Archive.Database).Msg("Card archive started")
		}
	} else {
		log.Info().Msg("Card archive is disabled in configuration")
	}

	// Browser-driven card creator
	cardCreator, err := creator.NewBrowserCreator(cfg.Creator)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize card creator")
	}
	defer cardCreator.Close()

	// Replenisher with observability hooks
	replenisher := core.NewReplenisher(registry, store, cardCreator, cfg.Replenish)
	replenisher.OnCreated(func(tier string, card model.Card) {
		ledger.Record(context.Background(), core.PoolEvent{
			Type:   core.EventReplenish,
			Tier:   tier,
			CardID: card.ID,
			Size:   registry.Size(tier),
		})
		archive.CardCreated(tier, card)
	})

	// Background scheduler: disk sync, health audit, keep-warm ping
	schedCfg := core.SchedulerConfig{
		SyncEvery:  time.Duration(cfg.Store.SyncSeconds) * time.Second,
		AuditEvery: time.Duration(cfg.Store.AuditSeconds) * time.Second,
	}
	if cfg.KeepWarm.Enabled {
		schedCfg.KeepWarmEvery = time.Duration(cfg.KeepWarm.IntervalMinutes) * time.Minute
		schedCfg.KeepWarmURL = cfg.KeepWarm.URL
		if schedCfg.KeepWarmURL == "" {
			schedCfg.KeepWarmURL = fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
		}
	}
	scheduler := core.NewScheduler(registry, store, replenisher, schedCfg)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	// Hot-reload pool targets on config file changes
	watcher, err := core.NewConfigWatcher(*configPath, registry)
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher disabled")
	} else {
		defer watcher.Stop()
	}

	// Process stats for health and dashboards
	stats, err := core.NewStatsCollector()
	if err != nil {
		log.Warn().Err(err).Msg("Process stats unavailable")
	}

	// Setup Gin
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(core.RequestLogger())
	r.Use(core.Recovery())

	// CORS middleware for cross-origin requests from the dashboard
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	deps := &api.Dependencies{
		Config:      cfg,
		Registry:    registry,
		Store:       store,
		Replenisher: replenisher,
		Ledger:      ledger,
		Archive:     archive,
		Stats:       stats,
	}
	api.SetupRouter(r, deps)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // admin fills drive a slow browser
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	scheduler.Stop()

	// Final best-effort flush so no card outlives only in memory
	if err := core.FlushRegistry(registry, store); err != nil {
		log.Error().Err(err).Msg("Final snapshot flush failed")
	}

	if archive != nil {
		archive.Stop()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
