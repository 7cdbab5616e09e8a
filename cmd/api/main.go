package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rafflehq/rafflehq-backend/api/routes"
	"github.com/rafflehq/rafflehq-backend/internal/draw"
	"github.com/rafflehq/rafflehq-backend/internal/ledger"
	"github.com/rafflehq/rafflehq-backend/internal/purchase"
	"github.com/rafflehq/rafflehq-backend/internal/raffles"
	"github.com/rafflehq/rafflehq-backend/internal/tickets"
	"github.com/rafflehq/rafflehq-backend/pkg/config"
	"github.com/rafflehq/rafflehq-backend/pkg/db"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
	"github.com/rafflehq/rafflehq-backend/pkg/metrics"
	"github.com/rafflehq/rafflehq-backend/pkg/migrate"
	"github.com/rafflehq/rafflehq-backend/pkg/redis"
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledgerRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	raffleRepo := raffles.NewRepository(dbClient.DB())
	raffleService, err := raffles.NewService(raffleRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create raffle service", err)
		os.Exit(1)
	}

	ticketRepo := tickets.NewRepository(dbClient.DB())
	allocator, err := tickets.NewAllocator(raffleRepo, ticketRepo, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create ticket allocator", err)
		os.Exit(1)
	}

	purchaseService, err := purchase.NewService(purchase.Params{
		Runner:    dbClient,
		Raffles:   raffleRepo,
		Tickets:   ticketRepo,
		Allocator: allocator,
		Ledger:    ledgerService,
		Config:    cfg.Engine,
		Metrics:   engineMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create purchase service", err)
		os.Exit(1)
	}

	drawService, err := draw.NewService(draw.Params{
		Runner:  dbClient,
		Raffles: raffleRepo,
		Tickets: ticketRepo,
		Winners: draw.NewRepository(dbClient.DB()),
		Metrics: engineMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create draw service", err)
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
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, raffleService, purchaseService, drawService, ledgerService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
