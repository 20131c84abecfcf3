package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/denthubhq/denthub-backend/api/controllers"
	subscriptioncontrollers "github.com/denthubhq/denthub-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/denthubhq/denthub-backend/api/controllers/webhooks"
	"github.com/denthubhq/denthub-backend/api/middleware"
	subscriptionsvc "github.com/denthubhq/denthub-backend/internal/subscriptions"
	stripewebhook "github.com/denthubhq/denthub-backend/internal/webhooks/stripe"
	"github.com/denthubhq/denthub-backend/pkg/config"
	"github.com/denthubhq/denthub-backend/pkg/db"
	"github.com/denthubhq/denthub-backend/pkg/enums"
	"github.com/denthubhq/denthub-backend/pkg/logger"
	"github.com/denthubhq/denthub-backend/pkg/redis"
	"github.com/denthubhq/denthub-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	subscriptionsService subscriptionsvc.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1/subscriptions", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/", subscriptioncontrollers.List(subscriptionsService, logg))
		r.Get("/{subscriptionId}", subscriptioncontrollers.Fetch(subscriptionsService, logg))
		r.Get("/cabinet/{cabinetId}/license/{moduleCode}", subscriptioncontrollers.LicenseValidate(subscriptionsService, logg))

		// Mutations are restricted to practice owners and admins.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.StaffRoleOwner.String(), enums.StaffRoleAdmin.String()))

			r.Post("/", subscriptioncontrollers.Create(subscriptionsService, logg))
			r.Patch("/{subscriptionId}", subscriptioncontrollers.Update(subscriptionsService, logg))
			r.Post("/{subscriptionId}/activate", subscriptioncontrollers.Activate(subscriptionsService, logg))
			r.Post("/{subscriptionId}/cancel", subscriptioncontrollers.Cancel(subscriptionsService, logg))
			r.Post("/{subscriptionId}/modules", subscriptioncontrollers.ModulesAdd(subscriptionsService, logg))
			r.Delete("/{subscriptionId}/modules", subscriptioncontrollers.ModulesRemove(subscriptionsService, logg))
		})
	})

	return r
}
