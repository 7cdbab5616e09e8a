package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rafflehq/rafflehq-backend/api/controllers"
	"github.com/rafflehq/rafflehq-backend/api/middleware"
	"github.com/rafflehq/rafflehq-backend/internal/draw"
	"github.com/rafflehq/rafflehq-backend/internal/ledger"
	"github.com/rafflehq/rafflehq-backend/internal/purchase"
	"github.com/rafflehq/rafflehq-backend/internal/raffles"
	"github.com/rafflehq/rafflehq-backend/pkg/config"
	"github.com/rafflehq/rafflehq-backend/pkg/db"
	"github.com/rafflehq/rafflehq-backend/pkg/logger"
	"github.com/rafflehq/rafflehq-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	raffleService raffles.Service,
	purchaseService purchase.Service,
	drawService draw.Service,
	ledgerService ledger.Service,
) http.Handler {
	// Redis is optional wiring; a typed nil must not leak into the
	// Pinger interface.
	var cache redis.Pinger
	if redisClient != nil {
		cache = redisClient
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cache))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if redisClient != nil {
			r.Use(middleware.WebhookDedup(redisClient, logg, cfg.Engine.WebhookDedupTTL))
		}
		r.Post("/payments", controllers.PaymentWebhook(purchaseService, logg))
	})

	r.Route("/api/v1/raffles/{raffleID}", func(r chi.Router) {
		r.Get("/", controllers.GetRaffle(raffleService, logg))
		r.Post("/status", controllers.TransitionRaffle(raffleService, logg))
		r.Post("/purchases", controllers.PurchaseTickets(purchaseService, logg))
		r.Post("/purchases/gateway", controllers.BeginGatewayPurchase(purchaseService, logg))
		r.Post("/draw", controllers.DrawRaffle(drawService, logg))
		r.Get("/winners", controllers.ListRaffleWinners(drawService, logg))
	})

	r.Route("/api/v1/users/{userID}/wallet", func(r chi.Router) {
		r.Get("/", controllers.GetWallet(ledgerService, logg))
		r.Get("/transactions", controllers.ListWalletTransactions(ledgerService, logg))
		r.Post("/topups", controllers.WalletTopup(ledgerService, logg))
		r.Post("/adjustments", controllers.WalletAdjust(ledgerService, logg))
		r.Post("/recompute", controllers.RecomputeWallet(ledgerService, logg))
	})

	return r
}
