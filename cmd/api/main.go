package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/maskball-tickets/api/routes"
	"github.com/angelmondragon/maskball-tickets/internal/auth"
	"github.com/angelmondragon/maskball-tickets/internal/bootstrap"
	stripewebhook "github.com/angelmondragon/maskball-tickets/internal/webhooks/stripe"
	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/db"
	"github.com/angelmondragon/maskball-tickets/pkg/instance"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/metrics"
	"github.com/angelmondragon/maskball-tickets/pkg/migrate"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox/idempotency"
	"github.com/angelmondragon/maskball-tickets/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

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

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
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

	var redisClient *redis.Client
	if cfg.Redis.Configured() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg, metrics.NewRedisMetrics(prometheus.DefaultRegisterer))
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
		logg.Warn(context.Background(), "redis not configured, idempotency and token revocation disabled")
	}

	services, err := bootstrap.Build(context.Background(), bootstrap.Params{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Registerer:  prometheus.DefaultRegisterer,
		SeedCatalog: true,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	authParams := auth.ServiceParams{
		Staff:     cfg.Staff,
		JWTConfig: cfg.JWT,
		Logger:    logg,
		Password:  &cfg.Password,
	}
	if redisClient != nil {
		authParams.Revoker = redisClient
	}
	authService, err := auth.NewService(authParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	deps := routes.Deps{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		Gatherer:    prometheus.DefaultGatherer,
		HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Inventory:   services.Inventory,
		Checkout:    services.Checkout,
		Auth:        authService,
		Admin:       services.Admin,
		Door:        services.Door,
	}
	if services.Stripe != nil {
		webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			Checkout: services.Checkout,
			Logger:   logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe webhook service", err)
			os.Exit(1)
		}
		deps.StripeSigner = services.Stripe
		deps.StripeWebhook = webhookService
		deps.WebhookGuard = stripewebhook.NoopGuard{}
		if redisClient != nil {
			claims, err := idempotency.NewManager(redisClient, bootstrap.WebhookGuardTTL, cfg.Eventing.DeliveryClaimTTL)
			if err != nil {
				logg.Error(context.Background(), "failed to create stripe webhook claims", err)
				os.Exit(1)
			}
			guard, err := stripewebhook.NewEventGuard(claims)
			if err != nil {
				logg.Error(context.Background(), "failed to create stripe webhook guard", err)
				os.Exit(1)
			}
			deps.WebhookGuard = guard
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
