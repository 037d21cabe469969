package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yumenosora/otakudb-backend/internal/clients/redis"
	catalogrepo "github.com/yumenosora/otakudb-backend/internal/data/repos/catalog"
	"github.com/yumenosora/otakudb-backend/internal/db"
	"github.com/yumenosora/otakudb-backend/internal/http/handlers"
	"github.com/yumenosora/otakudb-backend/internal/http/middleware"
	"github.com/yumenosora/otakudb-backend/internal/jobs/scheduler"
	"github.com/yumenosora/otakudb-backend/internal/observability"
	"github.com/yumenosora/otakudb-backend/internal/platform/envutil"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
	"github.com/yumenosora/otakudb-backend/internal/popularity"
	"github.com/yumenosora/otakudb-backend/internal/server"
	"github.com/yumenosora/otakudb-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "otakudb-backend",
		Environment: envutil.GetEnv("DEPLOY_ENV", "development", log),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	// Scoring weights
	weights := popularity.DefaultWeights()
	if path := envutil.GetEnv("POPULARITY_WEIGHTS_FILE", "", log); path != "" {
		weights, err = popularity.LoadWeights(path)
		if err != nil {
			log.Fatal("Failed to load popularity weights", "path", path, "error", err)
		}
		log.Info("Loaded popularity weight overrides", "path", path)
	}
	scorer, err := popularity.NewScorer(weights)
	if err != nil {
		log.Fatal("Invalid popularity weights", "error", err)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis (optional: without it the engine runs uncached)
	var cache redis.Cache
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		cache, err = redis.NewCache(log)
		if err != nil {
			log.Fatal("Redis init failed", "error", err)
		}
		defer cache.Close()
	} else {
		log.Warn("REDIS_ADDR not set, running without response cache")
	}

	// Repos
	log.Info("Setting up repos...")
	eligibility := catalogrepo.Eligibility{
		MinRatingCount: envutil.GetEnvAsInt("MIN_RATING_COUNT", catalogrepo.DefaultEligibility().MinRatingCount, log),
	}
	metricRepo := catalogrepo.NewMetricRepo(thePG, log, eligibility)
	rankRepo := catalogrepo.NewRankRepo(thePG, log, weights, eligibility)
	counterRepo := catalogrepo.NewCounterRepo(thePG, log)
	relationRepo := catalogrepo.NewRelationRepo(thePG, log)
	reviewRepo := catalogrepo.NewReviewRepo(thePG, log)
	discoveryRepo := catalogrepo.NewDiscoveryRepo(thePG, log)

	// Services
	log.Info("Setting up services...")
	invalidationService := services.NewInvalidationService(log, cache, relationRepo)
	notifier := services.NewLogNotifier(log)
	popularityService := services.NewPopularityService(
		thePG, log, scorer,
		metricRepo, rankRepo, reviewRepo,
		invalidationService, notifier,
		services.PopularityConfig{
			NotifyThreshold:   envutil.GetEnvAsFloat("NOTIFY_SCORE_THRESHOLD", 7.0, log),
			NotifyBatchSize:   envutil.GetEnvAsInt("NOTIFY_BATCH_SIZE", 50, log),
			NotifyPause:       envutil.GetEnvAsDuration("NOTIFY_BATCH_PAUSE", 500*time.Millisecond, log),
			NotifyParallelism: envutil.GetEnvAsInt("NOTIFY_PARALLELISM", 4, log),
		},
	)
	statsService := services.NewStatsService(log, cache, rankRepo, popularityService)
	catalogService := services.NewCatalogService(log, cache, counterRepo, relationRepo, discoveryRepo, invalidationService)

	// Scheduler
	sched := scheduler.New(log, popularityService, counterRepo, scheduler.Config{
		RecentInterval: envutil.GetEnvAsDuration("RECENT_PASS_INTERVAL", 15*time.Minute, log),
		FullInterval:   envutil.GetEnvAsDuration("FULL_PASS_INTERVAL", 24*time.Hour, log),
		NotifyInterval: envutil.GetEnvAsDuration("NOTIFY_INTERVAL", time.Hour, log),
		DailyReset:     envutil.GetEnvAsDuration("DAILY_RESET_INTERVAL", 24*time.Hour, log),
		WeeklyReset:    envutil.GetEnvAsDuration("WEEKLY_RESET_INTERVAL", 7*24*time.Hour, log),
	})
	sched.Start(ctx)

	// Router
	adminHandler := handlers.NewAdminHandler(sched, popularityService, statsService)
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	adminMiddleware := middleware.NewAdminMiddleware(log, envutil.GetEnv("ADMIN_API_TOKEN", "", log))
	router := server.NewRouter(server.RouterConfig{
		AdminHandler:    adminHandler,
		CatalogHandler:  catalogHandler,
		AdminMiddleware: adminMiddleware,
		AllowOrigins:    splitOrigins(envutil.GetEnv("CORS_ALLOW_ORIGINS", "", log)),
	})

	addr := ":" + envutil.GetEnv("PORT", "8080", log)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", "error", err)
	}
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
