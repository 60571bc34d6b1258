package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gritsync/gritsync-backend/api/responses"
	stripewebhook "github.com/gritsync/gritsync-backend/internal/webhooks/stripe"
	pkgerrors "github.com/gritsync/gritsync-backend/pkg/errors"
	"github.com/gritsync/gritsync-backend/pkg/logger"
	"github.com/gritsync/gritsync-backend/pkg/metrics"
	pkgstripe "github.com/gritsync/gritsync-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
)

const providerStripe = "stripe"

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Result, error)
}

type stripeWebhookGuard interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type webhookMetrics interface {
	Observe(provider, eventType, outcome string, duration time.Duration)
}

type receivedResponse struct {
	Received bool `json:"received"`
}

type rejectedResponse struct {
	Error string `json:"error"`
}

// StripeWebhook verifies and reconciles Stripe payment intent events. Stripe reads the raw
// bodies: any 400 makes it redeliver, 200 acknowledges the event.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, obs webhookMetrics, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		started := time.Now()
		eventType := ""
		observe := func(outcome string) {
			if obs != nil {
				obs.Observe(providerStripe, eventType, outcome, time.Since(started))
			}
		}

		if svc == nil || client == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			observe(metrics.OutcomeFailed)
			return
		}

		body := r.Body
		if maxBodyBytes > 0 {
			body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		payload, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				reject(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "webhook payload too large"))
			} else {
				reject(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			}
			observe(metrics.OutcomeRejected)
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			reject(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "missing stripe-signature header"))
			observe(metrics.OutcomeRejected)
			return
		}

		event, err := pkgstripe.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			reject(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "webhook signature verification failed"))
			observe(metrics.OutcomeRejected)
			return
		}
		eventType = string(event.Type)
		if logg != nil {
			ctx = logg.WithEventID(ctx, event.ID)
		}

		alreadyProcessed, err := guard.Processed(ctx, event.ID)
		if err != nil {
			// Without the guard the event is still safe to process; settlement is idempotent.
			if logg != nil {
				logg.Error(ctx, "stripe webhook idempotency check failed", err)
			}
		} else if alreadyProcessed {
			if logg != nil {
				logg.Info(ctx, "stripe event already processed")
			}
			responses.WriteRaw(w, http.StatusOK, receivedResponse{Received: true})
			observe(metrics.OutcomeDuplicate)
			return
		}

		result, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			reject(ctx, logg, w, err)
			observe(metrics.OutcomeFailed)
			return
		}
		if err := guard.MarkProcessed(ctx, event.ID); err != nil && logg != nil {
			logg.Error(ctx, "mark stripe event processed", err)
		}

		outcome := metrics.OutcomeProcessed
		if result.Ignored || result.Unmatched {
			outcome = metrics.OutcomeIgnored
		}
		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"event_type":      eventType,
				"outcome":         outcome,
				"receipt_created": result.ReceiptCreated,
				"email_sent":      result.EmailSent,
			})
			logg.Info(logCtx, "stripe event processed")
		}
		responses.WriteRaw(w, http.StatusOK, receivedResponse{Received: true})
		observe(outcome)
	}
}

func reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if logg != nil {
		logg.Classified(ctx, "stripe webhook rejected", err)
	}
	msg := err.Error()
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		msg = typed.Message()
	}
	responses.WriteRaw(w, http.StatusBadRequest, rejectedResponse{Error: msg})
}
