package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gritsync/gritsync-backend/pkg/db/models"
	"github.com/gritsync/gritsync-backend/pkg/enums"
)

// Repository manages payment rows outside of settlement.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	FindApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	SetIntentID(ctx context.Context, id uuid.UUID, intentID string) error
	CompleteIfNotPaid(ctx context.Context, id uuid.UUID, intentID string, now time.Time) (int64, error)
	MarkFailed(ctx context.Context, id uuid.UUID, intentID, reason string, now time.Time) (int64, error)
	SubmitManual(ctx context.Context, id uuid.UUID, input manualUpdate) (int64, error)
	SetReviewStatus(ctx context.Context, id uuid.UUID, status enums.ReviewStatus) error
}

type manualUpdate struct {
	Method    enums.PaymentMethod
	ProofPath string
	Reference string
	Now       time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "stripe_payment_intent_id = ?", intentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	if err := r.db.WithContext(ctx).First(&app, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &app, nil
}

func (r *repository) SetIntentID(ctx context.Context, id uuid.UUID, intentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Update("stripe_payment_intent_id", intentID).Error
}

// CompleteIfNotPaid is the client-side completion write. Zero rows means the
// payment was already paid (or refunded) by the time it ran.
func (r *repository) CompleteIfNotPaid(ctx context.Context, id uuid.UUID, intentID string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status NOT IN ?", id, []enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusRefunded}).
		Updates(map[string]any{
			"status":                   enums.PaymentStatusPaid,
			"payment_method":           enums.PaymentMethodCard,
			"stripe_payment_intent_id": intentID,
			"transaction_id":           intentID,
			"failure_reason":           nil,
			"paid_at":                  now,
			"updated_at":               now,
		})
	return res.RowsAffected, res.Error
}

// MarkFailed never downgrades a paid payment.
func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, intentID, reason string, now time.Time) (int64, error) {
	updates := map[string]any{
		"status":     enums.PaymentStatusFailed,
		"updated_at": now,
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	if intentID != "" {
		updates["stripe_payment_intent_id"] = intentID
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status NOT IN ?", id, []enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusRefunded}).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) SubmitManual(ctx context.Context, id uuid.UUID, input manualUpdate) (int64, error) {
	updates := map[string]any{
		"status":         enums.PaymentStatusPending,
		"payment_method": input.Method,
		"proof_path":     input.ProofPath,
		"review_status":  enums.ReviewStatusPendingReview,
		"failure_reason": nil,
		"updated_at":     input.Now,
	}
	if input.Reference != "" {
		updates["transaction_id"] = input.Reference
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status NOT IN ?", id, []enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusRefunded}).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) SetReviewStatus(ctx context.Context, id uuid.UUID, status enums.ReviewStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Update("review_status", status).Error
}
