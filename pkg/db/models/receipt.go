package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/gritsync/gritsync-backend/pkg/enums"
)

// Receipt is immutable and issued at most once per payment.
type Receipt struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID     uuid.UUID           `gorm:"column:payment_id;type:uuid;not null;uniqueIndex"`
	ApplicationID uuid.UUID           `gorm:"column:application_id;type:uuid;not null"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	ReceiptNumber string              `gorm:"column:receipt_number;not null;uniqueIndex"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	PaymentType   enums.PaymentType   `gorm:"column:payment_type;type:text;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Items         datatypes.JSON      `gorm:"column:items;type:jsonb;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// ReceiptItem is one line of Receipt.Items.
type ReceiptItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}
