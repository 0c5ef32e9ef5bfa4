package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stallside/stallside-backend/api/controllers"
	webhookcontrollers "github.com/stallside/stallside-backend/api/controllers/webhooks"
	"github.com/stallside/stallside-backend/api/middleware"
	checkoutsvc "github.com/stallside/stallside-backend/internal/checkout"
	stripewebhook "github.com/stallside/stallside-backend/internal/webhooks/stripe"
	"github.com/stallside/stallside-backend/pkg/config"
	"github.com/stallside/stallside-backend/pkg/db"
	"github.com/stallside/stallside-backend/pkg/logger"
	"github.com/stallside/stallside-backend/pkg/redis"
	"github.com/stallside/stallside-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	stripeClient *stripe.Client,
	stripeWebhookService stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Post("/", controllers.Checkout(checkoutService, logg))
		r.Post("/escrow", controllers.CheckoutEscrow(checkoutService, logg))
	})

	return r
}
