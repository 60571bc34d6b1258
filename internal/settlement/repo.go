package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gritsync/gritsync-backend/pkg/db/models"
	"github.com/gritsync/gritsync-backend/pkg/enums"
)

// Repository holds the writes applied when a payment settles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	MarkPaid(ctx context.Context, input markPaidParams) error
	SumPaid(ctx context.Context, applicationID uuid.UUID) (decimal.Decimal, error)
	UpsertTimelineStep(ctx context.Context, step *models.TimelineStep) error
	InsertReceipt(ctx context.Context, receipt *models.Receipt) (bool, error)
	FindReceiptByPayment(ctx context.Context, paymentID uuid.UUID) (*models.Receipt, error)
}

type markPaidParams struct {
	PaymentID       uuid.UUID
	Method          enums.PaymentMethod
	TransactionID   string
	PaymentIntentID string
	Now             time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
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

func (r *repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// MarkPaid keeps the first paid_at so replays leave the row unchanged.
func (r *repository) MarkPaid(ctx context.Context, input markPaidParams) error {
	updates := map[string]any{
		"status":         enums.PaymentStatusPaid,
		"payment_method": input.Method,
		"failure_reason": nil,
		"paid_at":        gorm.Expr("COALESCE(paid_at, ?)", input.Now),
		"updated_at":     input.Now,
	}
	if input.TransactionID != "" {
		updates["transaction_id"] = input.TransactionID
	}
	if input.PaymentIntentID != "" {
		updates["stripe_payment_intent_id"] = input.PaymentIntentID
	}
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", input.PaymentID).
		Updates(updates).Error
}

// SumPaid recomputes the application's paid total from the payments table.
func (r *repository) SumPaid(ctx context.Context, applicationID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("application_id = ? AND status = ?", applicationID, enums.PaymentStatusPaid).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *repository) UpsertTimelineStep(ctx context.Context, step *models.TimelineStep) error {
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "application_id"}, {Name: "step_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "data", "completed_at", "updated_at"}),
		}).
		Create(step).Error
}

// InsertReceipt reports whether a new row was written for the payment.
func (r *repository) InsertReceipt(ctx context.Context, receipt *models.Receipt) (bool, error) {
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(receipt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindReceiptByPayment(ctx context.Context, paymentID uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	if err := r.db.WithContext(ctx).First(&receipt, "payment_id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}
