package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gritsync/gritsync-backend/api/controllers"
	webhookcontrollers "github.com/gritsync/gritsync-backend/api/controllers/webhooks"
	"github.com/gritsync/gritsync-backend/api/middleware"
	"github.com/gritsync/gritsync-backend/internal/notifications"
	"github.com/gritsync/gritsync-backend/internal/payments"
	"github.com/gritsync/gritsync-backend/pkg/config"
	"github.com/gritsync/gritsync-backend/pkg/enums"
	"github.com/gritsync/gritsync-backend/pkg/logger"
	"github.com/gritsync/gritsync-backend/pkg/metrics"
	"github.com/gritsync/gritsync-backend/pkg/redis"
)

type signingSecretSource interface {
	SigningSecret() string
}

type webhookGuard interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// Params carries everything the HTTP surface needs. Nil services answer 500.
type Params struct {
	Config         *config.Config
	Logger         *logger.Logger
	Readiness      map[string]controllers.Pinger
	Idempotency    redis.IdempotencyStore
	Payments       payments.Service
	Notifications  notifications.Service
	StripeWebhook  webhookcontrollers.StripeWebhookService
	StripeClient   signingSecretSource
	WebhookGuard   webhookGuard
	WebhookMetrics *metrics.WebhookMetrics
	MetricsHandler http.Handler
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, p.Readiness, logg))
	})

	if p.MetricsHandler != nil {
		r.Handle("/metrics", p.MetricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(
			p.StripeWebhook,
			p.StripeClient,
			p.WebhookGuard,
			p.WebhookMetrics,
			cfg.Webhook.MaxBodyBytes,
			logg,
		))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth, logg))
		r.Use(middleware.Idempotency(p.Idempotency, logg))

		r.Route("/payments/{paymentId}", func(r chi.Router) {
			r.Post("/intent", controllers.CreatePaymentIntent(p.Payments, logg))
			r.Post("/confirm", controllers.ConfirmPayment(p.Payments, logg))
			r.Post("/manual", controllers.SubmitManualPayment(p.Payments, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
		r.Use(middleware.Idempotency(p.Idempotency, logg))

		r.Post("/payments/{paymentId}/approve", controllers.ApproveManualPayment(p.Payments, logg))
	})

	return r
}
