package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gritsync/gritsync-backend/internal/notifications"
	"github.com/gritsync/gritsync-backend/pkg/db/models"
	"github.com/gritsync/gritsync-backend/pkg/enums"
	pkgerrors "github.com/gritsync/gritsync-backend/pkg/errors"
	"github.com/gritsync/gritsync-backend/pkg/logger"
	"github.com/gritsync/gritsync-backend/pkg/outbox"
	"github.com/gritsync/gritsync-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Create(ctx context.Context, tx *gorm.DB, input notifications.CreateInput) (*models.Notification, error)
}

// Settler applies the side effects of a successful payment.
type Settler interface {
	Settle(ctx context.Context, input Input) (*Result, error)
	SettleTx(ctx context.Context, tx *gorm.DB, input Input) (*Result, error)
}

type ServiceParams struct {
	Repo              Repository
	Notifications     notifier
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Clock             func() time.Time
}

type Service struct {
	repo     Repository
	notifier notifier
	outbox   outbox.Emitter
	txRunner txRunner
	logg     *logger.Logger
	now      func() time.Time
}

// Input identifies the payment and how it was paid.
type Input struct {
	PaymentID       uuid.UUID
	Method          enums.PaymentMethod
	TransactionID   string
	PaymentIntentID string
}

// Result describes what a settlement wrote.
type Result struct {
	Payment         models.Payment          `json:"payment"`
	Receipt         models.Receipt          `json:"receipt"`
	TotalAmountPaid decimal.Decimal         `json:"total_amount_paid"`
	StepKeys        []enums.TimelineStepKey `json:"step_keys"`
	ReceiptCreated  bool                    `json:"receipt_created"`
	User            *models.User            `json:"-"`
}

// StepData is stored on each completed timeline step.
type StepData struct {
	Amount          decimal.Decimal     `json:"amount"`
	TotalAmountPaid decimal.Decimal     `json:"total_amount_paid"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	CompletedAt     time.Time           `json:"completed_at"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement repo required")
	}
	if params.Notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:     params.Repo,
		notifier: params.Notifications,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

// Settle runs SettleTx in its own transaction.
func (s *Service) Settle(ctx context.Context, input Input) (*Result, error) {
	var result *Result
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.SettleTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithPaymentID(ctx, result.Payment.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"application_id":    result.Payment.ApplicationID.String(),
			"total_amount_paid": result.TotalAmountPaid.String(),
			"receipt_created":   result.ReceiptCreated,
		})
		s.logg.Info(logCtx, "payment settled")
	}
	return result, nil
}

// SettleTx marks the payment paid and writes timeline, receipt, notification and
// outbox rows inside tx. Every write is keyed so a replay changes nothing.
func (s *Service) SettleTx(ctx context.Context, tx *gorm.DB, input Input) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	repo := s.repo.WithTx(tx)
	payment, err := repo.FindPayment(ctx, input.PaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if payment.Status == enums.PaymentStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "refunded payment cannot be settled")
	}
	stepKeys := payment.PaymentType.StepKeys()
	if len(stepKeys) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment type %q", payment.PaymentType))
	}

	app, err := repo.FindApplication(ctx, payment.ApplicationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load application")
	}
	if app == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
	}

	now := s.now().UTC()
	if err := repo.MarkPaid(ctx, markPaidParams{
		PaymentID:       payment.ID,
		Method:          input.Method,
		TransactionID:   input.TransactionID,
		PaymentIntentID: input.PaymentIntentID,
		Now:             now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment paid")
	}
	payment, err = repo.FindPayment(ctx, input.PaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	paidAt := now
	if payment.PaidAt != nil {
		paidAt = payment.PaidAt.UTC()
	}

	total, err := repo.SumPaid(ctx, payment.ApplicationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid payments")
	}

	data, err := json.Marshal(StepData{
		Amount:          payment.Amount,
		TotalAmountPaid: total,
		PaymentMethod:   input.Method,
		CompletedAt:     paidAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode timeline data")
	}
	for _, key := range stepKeys {
		completedAt := paidAt
		step := &models.TimelineStep{
			ApplicationID: payment.ApplicationID,
			StepKey:       key,
			Status:        enums.TimelineStepStatusCompleted,
			Data:          datatypes.JSON(data),
			CompletedAt:   &completedAt,
			UpdatedAt:     now,
		}
		if err := repo.UpsertTimelineStep(ctx, step); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("upsert timeline step %s", key))
		}
	}

	items, err := json.Marshal([]models.ReceiptItem{{
		Description: payment.PaymentType.Label(),
		Amount:      payment.Amount,
	}})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode receipt items")
	}
	receipt := &models.Receipt{
		PaymentID:     payment.ID,
		ApplicationID: payment.ApplicationID,
		UserID:        app.UserID,
		ReceiptNumber: ReceiptNumber(payment.ID, now),
		Amount:        payment.Amount,
		PaymentType:   payment.PaymentType,
		PaymentMethod: input.Method,
		Items:         datatypes.JSON(items),
	}
	created, err := repo.InsertReceipt(ctx, receipt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert receipt")
	}
	if !created {
		receipt, err = repo.FindReceiptByPayment(ctx, payment.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing receipt")
		}
		if receipt == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "receipt conflict without existing row")
		}
	}

	if created {
		applicationID := payment.ApplicationID
		if _, err := s.notifier.Create(ctx, tx, notifications.CreateInput{
			UserID:        app.UserID,
			ApplicationID: &applicationID,
			Type:          enums.NotificationTypePayment,
			Title:         "Payment Received",
			Message: fmt.Sprintf("Your payment of $%s for %s has been received. Receipt number: %s.",
				payment.Amount.StringFixed(2), payment.PaymentType.Label(), receipt.ReceiptNumber),
			Link: TimelineLink(payment.ApplicationID),
		}); err != nil {
			return nil, err
		}
	}

	if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentSettled,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentSettledEvent{
			PaymentID:       payment.ID,
			ApplicationID:   payment.ApplicationID,
			UserID:          app.UserID,
			Amount:          payment.Amount,
			PaymentType:     payment.PaymentType,
			PaymentMethod:   input.Method,
			TransactionID:   input.TransactionID,
			TotalAmountPaid: total,
			ReceiptNumber:   receipt.ReceiptNumber,
			SettledAt:       paidAt,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment settled")
	}

	user, err := repo.FindUser(ctx, app.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payer")
	}

	return &Result{
		Payment:         *payment,
		Receipt:         *receipt,
		TotalAmountPaid: total,
		StepKeys:        stepKeys,
		ReceiptCreated:  created,
		User:            user,
	}, nil
}

// ReceiptNumber builds RCP-<unix millis>-<first 8 hex of the payment id>.
func ReceiptNumber(paymentID uuid.UUID, at time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(paymentID.String(), "-", "")[:8])
	return fmt.Sprintf("RCP-%d-%s", at.UnixMilli(), short)
}

// TimelineLink is the client dashboard path for an application's timeline.
func TimelineLink(applicationID uuid.UUID) string {
	return fmt.Sprintf("/applications/%s/timeline", applicationID)
}
