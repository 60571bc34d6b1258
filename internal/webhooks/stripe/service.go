package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/gritsync/gritsync-backend/internal/payments"
	"github.com/gritsync/gritsync-backend/internal/settings"
	"github.com/gritsync/gritsync-backend/internal/settlement"
	"github.com/gritsync/gritsync-backend/pkg/db/models"
	"github.com/gritsync/gritsync-backend/pkg/enums"
	pkgerrors "github.com/gritsync/gritsync-backend/pkg/errors"
	"github.com/gritsync/gritsync-backend/pkg/logger"
	"github.com/gritsync/gritsync-backend/pkg/outbox"
	"github.com/gritsync/gritsync-backend/pkg/outbox/payloads"
)

const defaultFailureReason = "Payment failed"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type receiptMailer interface {
	ShouldSend(snap settings.Snapshot, result *settlement.Result) bool
	Send(ctx context.Context, snap settings.Snapshot, result *settlement.Result) error
}

type ServiceParams struct {
	Payments          payments.Repository
	Settlement        settlement.Settler
	Outbox            outbox.Emitter
	Settings          settings.Provider
	Mailer            receiptMailer
	TransactionRunner txRunner
	Logger            *logger.Logger
	Clock             func() time.Time
}

type Service struct {
	payments payments.Repository
	settle   settlement.Settler
	outbox   outbox.Emitter
	settings settings.Provider
	mailer   receiptMailer
	txRunner txRunner
	logg     *logger.Logger
	now      func() time.Time
}

// Result reports what an event did. Outcome feeds the webhook metrics label.
type Result struct {
	EventID        string
	EventType      string
	PaymentID      *uuid.UUID
	Ignored        bool
	Unmatched      bool
	ReceiptCreated bool
	EmailSent      bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings provider required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		payments: params.Payments,
		settle:   params.Settlement,
		outbox:   params.Outbox,
		settings: params.Settings,
		mailer:   params.Mailer,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Result, error) {
	if event == nil || event.Data == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	result := Result{EventID: event.ID, EventType: string(event.Type)}
	if s.logg != nil {
		ctx = s.logg.WithEventID(ctx, event.ID)
		ctx = s.logg.WithField(ctx, "event_type", string(event.Type))
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		intent, err := decodeIntent(event)
		if err != nil {
			return result, err
		}
		snap := s.snapshot(ctx)
		return s.handleSucceeded(ctx, result, intent, snap)
	case stripe.EventTypePaymentIntentPaymentFailed:
		intent, err := decodeIntent(event)
		if err != nil {
			return result, err
		}
		return s.handleFailed(ctx, result, intent)
	default:
		result.Ignored = true
		return result, nil
	}
}

func (s *Service) handleSucceeded(ctx context.Context, result Result, intent *stripe.PaymentIntent, snap settings.Snapshot) (Result, error) {
	payment, err := s.resolvePayment(ctx, intent)
	if err != nil {
		return result, err
	}
	if payment == nil {
		result.Unmatched = true
		s.warn(ctx, "payment intent has no matching payment", intent.ID)
		return result, nil
	}
	result.PaymentID = &payment.ID

	settled, err := s.settle.Settle(ctx, settlement.Input{
		PaymentID:       payment.ID,
		Method:          methodFromIntent(intent),
		TransactionID:   intent.ID,
		PaymentIntentID: intent.ID,
	})
	if err != nil {
		return result, err
	}
	result.ReceiptCreated = settled.ReceiptCreated

	if s.mailer != nil && s.mailer.ShouldSend(snap, settled) {
		if err := s.mailer.Send(ctx, snap, settled); err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
				s.logg.Classified(logCtx, "receipt email failed", err)
			}
		} else {
			result.EmailSent = true
		}
	}
	return result, nil
}

func (s *Service) handleFailed(ctx context.Context, result Result, intent *stripe.PaymentIntent) (Result, error) {
	payment, err := s.resolvePayment(ctx, intent)
	if err != nil {
		return result, err
	}
	if payment == nil {
		result.Unmatched = true
		s.warn(ctx, "failed payment intent has no matching payment", intent.ID)
		return result, nil
	}
	result.PaymentID = &payment.ID

	reason := defaultFailureReason
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		reason = intent.LastPaymentError.Msg
	}
	now := s.now().UTC()
	// Each decline is its own Stripe event; redeliveries of one event share the key.
	dedupeKey := result.EventID
	if dedupeKey == "" {
		dedupeKey = intent.ID
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.payments.WithTx(tx).MarkFailed(ctx, payment.ID, intent.ID, reason, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if rows == 0 {
			result.Ignored = true
			return nil
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			DedupeKey:     dedupeKey,
			Data: payloads.PaymentFailedEvent{
				PaymentID:       payment.ID,
				ApplicationID:   payment.ApplicationID,
				PaymentIntentID: intent.ID,
				FailureReason:   reason,
				FailedAt:        now,
			},
		})
	})
	if err != nil {
		return result, err
	}
	if result.Ignored {
		s.warn(ctx, "payment failure ignored for settled payment", intent.ID)
	}
	return result, nil
}

// resolvePayment prefers metadata.payment_id and falls back to the stored intent id.
func (s *Service) resolvePayment(ctx context.Context, intent *stripe.PaymentIntent) (*models.Payment, error) {
	if raw := intent.Metadata["payment_id"]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			payment, err := s.payments.FindByID(ctx, id)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
			}
			if payment != nil {
				return payment, nil
			}
		}
	}
	payment, err := s.payments.FindByIntentID(ctx, intent.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment by intent")
	}
	return payment, nil
}

func (s *Service) snapshot(ctx context.Context) settings.Snapshot {
	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "settings unavailable; receipt email disabled for this event", err)
		}
		return settings.Snapshot{}
	}
	return snap
}

func (s *Service) warn(ctx context.Context, msg, intentID string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "payment_intent_id", intentID), msg)
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &intent, nil
}

func methodFromIntent(intent *stripe.PaymentIntent) enums.PaymentMethod {
	if len(intent.PaymentMethodTypes) > 0 {
		if method, err := enums.ParsePaymentMethod(intent.PaymentMethodTypes[0]); err == nil {
			return method
		}
	}
	return enums.PaymentMethodCard
}
