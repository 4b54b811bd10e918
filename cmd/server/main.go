package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"campus-nav-api/internal/config"
	"campus-nav-api/internal/database"
	"campus-nav-api/internal/job"
	"campus-nav-api/internal/metrics"
	"campus-nav-api/internal/presence"
	"campus-nav-api/internal/router"
	"campus-nav-api/internal/store"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting campus-nav-api",
		zap.Int("port", cfg.Server.Port),
		zap.String("basePath", cfg.Server.BasePath),
		zap.String("env", cfg.Server.Env))

	// PostgreSQL (startup survives a dead database; retried in background)
	db, err := database.InitPostgres(cfg.Database.URL, cfg.Server.Env, logger)
	if err != nil {
		logger.Warn("Failed to connect to PostgreSQL on startup, will retry in background",
			zap.Error(err))
		database.InitPostgresAsync(cfg.Database.URL, cfg.Server.Env, 5*time.Second, logger)
	}

	// Redis presence store, in-memory fallback for local runs
	redisClient := database.InitRedis(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, logger)
	var presenceStore store.PresenceStore
	if redisClient != nil {
		presenceStore = store.NewRedisStore(redisClient, logger)
	} else {
		logger.Warn("Redis unavailable, using in-memory presence store")
		presenceStore = store.NewMemoryStore()
	}

	m := metrics.New(logger)

	tracker := presence.NewTracker(presenceStore, logger, presence.TrackerConfig{
		ActiveWindow:  cfg.Presence.ActiveWindow,
		VisibleWindow: cfg.Presence.VisibleWindow,
	})
	if err := tracker.Start(context.Background()); err != nil {
		logger.Error("Failed to start presence tracker", zap.Error(err))
	}
	defer tracker.Stop()

	// Idle presence cleanup
	scheduler := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	cleanup := job.NewCleanupJob(presenceStore, cfg.Presence.CleanupAfter, logger)
	if _, err := scheduler.AddJob(cfg.Presence.CleanupSchedule, cleanup); err != nil {
		logger.Error("Failed to schedule cleanup job", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := router.Setup(cfg, db, redisClient, presenceStore, tracker, m, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("campus-nav-api started", zap.String("address", addr))

	if err := r.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
