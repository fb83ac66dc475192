package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avtovin/avtovin-backend/api/routes"
	"github.com/avtovin/avtovin-backend/internal/ledger"
	"github.com/avtovin/avtovin-backend/internal/notifier"
	"github.com/avtovin/avtovin-backend/internal/pricing"
	"github.com/avtovin/avtovin-backend/internal/settlements"
	"github.com/avtovin/avtovin-backend/internal/visits"
	"github.com/avtovin/avtovin-backend/pkg/config"
	"github.com/avtovin/avtovin-backend/pkg/db"
	"github.com/avtovin/avtovin-backend/pkg/logger"
	"github.com/avtovin/avtovin-backend/pkg/metrics"
	"github.com/avtovin/avtovin-backend/pkg/migrate"
	"github.com/avtovin/avtovin-backend/pkg/pubsub"
	"github.com/avtovin/avtovin-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	// Redis is optional: without it the settlement run lock and the redis
	// health probe are simply absent.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "redis not configured, settlement run lock disabled")
	}

	registry := prometheus.NewRegistry()
	platformMetrics := metrics.NewPlatformMetrics(registry)

	notifierService, err := buildNotifier(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, logg, platformMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	visitsRepo := visits.NewRepository(dbClient.DB())
	resolver, err := pricing.NewResolver(visitsRepo, cfg.Loyalty)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing resolver", err)
		os.Exit(1)
	}

	visitService, err := visits.NewService(visitsRepo, dbClient, resolver, ledgerService, notifierService, logg, platformMetrics, cfg.Loyalty)
	if err != nil {
		logg.Error(context.Background(), "failed to create visit service", err)
		os.Exit(1)
	}

	var runLock settlements.RunLock
	if redisClient != nil {
		lock, err := settlements.NewRedisRunLock(redisClient, redisClient.LockKey("settlement:run"), cfg.Settlement.RunLockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create settlement run lock", err)
			os.Exit(1)
		}
		runLock = lock
	}

	settlementService, err := settlements.NewService(settlements.NewRepository(dbClient.DB()), dbClient, runLock, logg, platformMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlements service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			Registry:        registry,
			VisitService:    visitService,
			LedgerService:   ledgerService,
			SettlementsSvc:  settlementService,
			NotifierService: notifierService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// buildNotifier wires Pub/Sub when a GCP project is configured and otherwise
// returns a notifier that drops events with a log line.
func buildNotifier(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*notifier.Service, error) {
	if cfg.GCP.ProjectID == "" {
		logg.Warn(ctx, "gcp project not configured, notifications disabled")
		return notifier.NewService(nil, logg)
	}
	publisher, err := pubsub.NewPublisher(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, err
	}
	return notifier.NewService(publisher, logg)
}
