package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/gritsync/gritsync-backend/internal/settlement"
	"github.com/gritsync/gritsync-backend/pkg/db/models"
	"github.com/gritsync/gritsync-backend/pkg/enums"
	pkgerrors "github.com/gritsync/gritsync-backend/pkg/errors"
	"github.com/gritsync/gritsync-backend/pkg/logger"
	"github.com/gritsync/gritsync-backend/pkg/outbox"
	"github.com/gritsync/gritsync-backend/pkg/outbox/payloads"
	"github.com/gritsync/gritsync-backend/pkg/retry"
	"github.com/gritsync/gritsync-backend/pkg/storage/gcs"
	pkgstripe "github.com/gritsync/gritsync-backend/pkg/stripe"
)

const (
	MessageSucceeded       = "Payment successful! Your receipt will be emailed to you shortly."
	MessageProcessing      = "Your payment is processing. We'll notify you when it's complete."
	MessageRequiresAction  = "Additional authentication is required to complete your payment."
	MessagePaymentMethod   = "Your payment was not successful. Please try another payment method."
	MessageCanceled        = "Your payment was canceled. Please try again."
	MessageUnexpected      = "Something went wrong with your payment. Please try again."
	metadataPaymentID      = "payment_id"
	metadataApplicationID  = "application_id"
	metadataPaymentType    = "payment_type"
	intentIdempotencyScope = "payment-intent"
)

// Service is the payment intent bridge plus the manual payment path.
type Service interface {
	CreateIntent(ctx context.Context, userID, paymentID uuid.UUID, expectedAmount *decimal.Decimal) (*IntentResult, error)
	ConfirmOutcome(ctx context.Context, userID, paymentID uuid.UUID, intentID string) (*Outcome, error)
	Complete(ctx context.Context, paymentID uuid.UUID, intentID string) error
	SubmitManualPayment(ctx context.Context, userID, paymentID uuid.UUID, input ManualPaymentInput) (*models.Payment, error)
	ApproveManualPayment(ctx context.Context, adminID, paymentID uuid.UUID) (*settlement.Result, error)
}

type proofStore interface {
	Stat(ctx context.Context, object string) (*gcs.ObjectInfo, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo              Repository
	Intents           pkgstripe.PaymentIntents
	Currency          string
	Proofs            proofStore
	Settlement        settlement.Settler
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	RetryOptions      []retry.Option
	Clock             func() time.Time
}

type service struct {
	repo      Repository
	intents   pkgstripe.PaymentIntents
	currency  string
	proofs    proofStore
	settle    settlement.Settler
	outbox    outbox.Emitter
	txRunner  txRunner
	logg      *logger.Logger
	retryOpts []retry.Option
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe payment intents client required")
	}
	if params.Proofs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "proof storage required")
	}
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:      params.Repo,
		intents:   params.Intents,
		currency:  currency,
		proofs:    params.Proofs,
		settle:    params.Settlement,
		outbox:    params.Outbox,
		txRunner:  params.TransactionRunner,
		logg:      params.Logger,
		retryOpts: params.RetryOptions,
		now:       clock,
	}, nil
}

func (s *service) CreateIntent(ctx context.Context, userID, paymentID uuid.UUID, expectedAmount *decimal.Decimal) (*IntentResult, error) {
	payment, app, err := s.loadOwned(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case enums.PaymentStatusPending, enums.PaymentStatusFailed:
	case enums.PaymentStatusPaid:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already paid")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment is %s", payment.Status))
	}
	if payment.ReviewStatus == enums.ReviewStatusPendingReview {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a manual payment is awaiting review")
	}
	if expectedAmount != nil && !expectedAmount.Equal(payment.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match the payment amount").
			WithDetails(map[string]string{"expected": payment.Amount.StringFixed(2)})
	}
	cents := AmountToCents(payment.Amount)
	if cents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(cents),
		Currency: stripe.String(s.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(payment.PaymentType.Label()),
	}
	params.AddMetadata(metadataPaymentID, payment.ID.String())
	params.AddMetadata(metadataApplicationID, app.ID.String())
	params.AddMetadata(metadataPaymentType, string(payment.PaymentType))
	params.SetIdempotencyKey(IntentIdempotencyKey(payment.ID, cents))

	var intent *stripe.PaymentIntent
	err = retry.Do(ctx, func(ctx context.Context) error {
		var createErr error
		intent, createErr = s.intents.Create(ctx, params)
		return createErr
	}, s.retryOpts...)
	if err != nil {
		return nil, stripeFailure(err, "create payment intent")
	}
	if intent == nil || intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe returned an empty payment intent")
	}

	if err := s.repo.SetIntentID(ctx, payment.ID, intent.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent id")
	}
	if s.logg != nil {
		logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"payment_intent_id": intent.ID,
			"amount_cents":      cents,
		})
		s.logg.Info(logCtx, "payment intent created")
	}
	return &IntentResult{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

func (s *service) ConfirmOutcome(ctx context.Context, userID, paymentID uuid.UUID, intentID string) (*Outcome, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	payment, _, err := s.loadOwned(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}

	var intent *stripe.PaymentIntent
	err = retry.Do(ctx, func(ctx context.Context) error {
		var getErr error
		intent, getErr = s.intents.Get(ctx, intentID, &stripe.PaymentIntentParams{})
		return getErr
	}, s.retryOpts...)
	if err != nil {
		return nil, stripeFailure(err, "retrieve payment intent")
	}
	if intent == nil || !intentBelongsTo(intent, payment) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent does not belong to this payment")
	}

	outcome := RouteStatus(intent.Status)
	if intent.Status == stripe.PaymentIntentStatusSucceeded {
		if err := s.Complete(ctx, payment.ID, intent.ID); err != nil && s.logg != nil {
			logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
			logCtx = s.logg.WithField(logCtx, "payment_intent_id", intent.ID)
			s.logg.Warn(logCtx, "client completion failed; webhook will settle: "+err.Error())
		}
	}
	return &outcome, nil
}

// RouteStatus maps a processor status to the message shown to the payer.
func RouteStatus(status stripe.PaymentIntentStatus) Outcome {
	out := Outcome{Status: string(status)}
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		out.Message = MessageSucceeded
		out.Paid = true
	case stripe.PaymentIntentStatusProcessing:
		out.Message = MessageProcessing
	case stripe.PaymentIntentStatusRequiresAction:
		out.Message = MessageRequiresAction
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		out.Message = MessagePaymentMethod
	case stripe.PaymentIntentStatusCanceled:
		out.Message = MessageCanceled
	default:
		out.Message = MessageUnexpected
	}
	return out
}

// Complete is the best-effort client-side write. The webhook settles authoritatively.
func (s *service) Complete(ctx context.Context, paymentID uuid.UUID, intentID string) error {
	rows, err := s.repo.CompleteIfNotPaid(ctx, paymentID, intentID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment")
	}
	if rows > 0 {
		return nil
	}
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if payment.Status == enums.PaymentStatusPaid {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment is %s", payment.Status))
}

func (s *service) SubmitManualPayment(ctx context.Context, userID, paymentID uuid.UUID, input ManualPaymentInput) (*models.Payment, error) {
	if !input.Method.IsManual() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method must be bank_transfer or remittance")
	}
	proofPath := gcs.NormalizeObjectPath(input.ProofPath)
	if proofPath == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proof of payment is required")
	}
	reference := strings.TrimSpace(input.Reference)

	payment, app, err := s.loadOwned(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already paid")
	}
	if payment.Status == enums.PaymentStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment was refunded")
	}

	if _, err := s.proofs.Stat(ctx, proofPath); err != nil {
		if errors.Is(err, gcs.ErrObjectNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "proof of payment upload not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check proof of payment")
	}

	now := s.now().UTC()
	var updated *models.Payment
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.SubmitManual(ctx, payment.ID, manualUpdate{
			Method:    input.Method,
			ProofPath: proofPath,
			Reference: reference,
			Now:       now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "submit manual payment")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already paid")
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventManualPaymentSubmitted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: string(enums.UserRoleClient)},
			Data: payloads.ManualPaymentSubmittedEvent{
				PaymentID:     payment.ID,
				ApplicationID: app.ID,
				UserID:        userID,
				PaymentMethod: input.Method,
				ProofPath:     proofPath,
				Reference:     reference,
				SubmittedAt:   now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit manual payment submitted")
		}
		updated, err = repo.FindByID(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) ApproveManualPayment(ctx context.Context, adminID, paymentID uuid.UUID) (*settlement.Result, error) {
	var result *settlement.Result
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByID(ctx, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if payment == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		if payment.ReviewStatus != enums.ReviewStatusPendingReview {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not awaiting review")
		}
		if payment.PaymentMethod == nil || !payment.PaymentMethod.IsManual() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment was not submitted manually")
		}
		reference := ""
		if payment.TransactionID != nil {
			reference = *payment.TransactionID
		}

		result, err = s.settle.SettleTx(ctx, tx, settlement.Input{
			PaymentID:     payment.ID,
			Method:        *payment.PaymentMethod,
			TransactionID: reference,
		})
		if err != nil {
			return err
		}
		if err := repo.SetReviewStatus(ctx, payment.ID, enums.ReviewStatusApproved); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve review")
		}
		result.Payment.ReviewStatus = enums.ReviewStatusApproved
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithPaymentID(ctx, paymentID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"admin_id":        adminID.String(),
			"receipt_number":  result.Receipt.ReceiptNumber,
			"receipt_created": result.ReceiptCreated,
		})
		s.logg.Info(logCtx, "manual payment approved")
	}
	return result, nil
}

func (s *service) loadOwned(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, *models.Application, error) {
	if userID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	app, err := s.repo.FindApplication(ctx, payment.ApplicationID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load application")
	}
	if app == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
	}
	if app.UserID != userID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	return payment, app, nil
}

func intentBelongsTo(intent *stripe.PaymentIntent, payment *models.Payment) bool {
	if id, ok := intent.Metadata[metadataPaymentID]; ok {
		return id == payment.ID.String()
	}
	return payment.StripePaymentIntentID != nil && *payment.StripePaymentIntentID == intent.ID
}

// AmountToCents converts a decimal amount to the processor's minor unit.
func AmountToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// IntentIdempotencyKey ties Stripe retries to one intent per payment amount.
func IntentIdempotencyKey(paymentID uuid.UUID, cents int64) string {
	return fmt.Sprintf("%s:%s:%d", intentIdempotencyScope, paymentID, cents)
}

func stripeFailure(err error, action string) error {
	c := pkgerrors.Classify(err)
	switch c.Type {
	case pkgerrors.TypeValidation, pkgerrors.TypeClient:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, c.UserMessage)
	case pkgerrors.TypeRateLimit:
		return pkgerrors.Wrap(pkgerrors.CodeRateLimit, err, action)
	case pkgerrors.TypeNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment intent not found")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}
