package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gritsync/gritsync-backend/pkg/enums"
)

// Payment is a single installment (or the full fee) owed on an application.
type Payment struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ApplicationID         uuid.UUID            `gorm:"column:application_id;type:uuid;not null"`
	Amount                decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	PaymentType           enums.PaymentType    `gorm:"column:payment_type;type:text;not null"`
	Status                enums.PaymentStatus  `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentMethod         *enums.PaymentMethod `gorm:"column:payment_method;type:text"`
	StripePaymentIntentID *string              `gorm:"column:stripe_payment_intent_id"`
	TransactionID         *string              `gorm:"column:transaction_id"`
	FailureReason         *string              `gorm:"column:failure_reason"`
	ProofPath             *string              `gorm:"column:proof_path"`
	ReviewStatus          enums.ReviewStatus   `gorm:"column:review_status;type:text;not null;default:'none'"`
	PaidAt                *time.Time           `gorm:"column:paid_at"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
