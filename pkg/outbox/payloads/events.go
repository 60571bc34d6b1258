package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gritsync/gritsync-backend/pkg/enums"
)

// PaymentSettledEvent is emitted once per payment when settlement commits.
type PaymentSettledEvent struct {
	PaymentID       uuid.UUID           `json:"payment_id"`
	ApplicationID   uuid.UUID           `json:"application_id"`
	UserID          uuid.UUID           `json:"user_id"`
	Amount          decimal.Decimal     `json:"amount"`
	PaymentType     enums.PaymentType   `json:"payment_type"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	TransactionID   string              `json:"transaction_id"`
	TotalAmountPaid decimal.Decimal     `json:"total_amount_paid"`
	ReceiptNumber   string              `json:"receipt_number"`
	SettledAt       time.Time           `json:"settled_at"`
}

// PaymentFailedEvent is emitted when the processor reports a failed attempt.
type PaymentFailedEvent struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	ApplicationID   uuid.UUID `json:"application_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	FailedAt        time.Time `json:"failed_at"`
}

// ManualPaymentSubmittedEvent asks reviewers to check an uploaded proof of payment.
type ManualPaymentSubmittedEvent struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	ApplicationID uuid.UUID           `json:"application_id"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	ProofPath     string              `json:"proof_path"`
	Reference     string              `json:"reference,omitempty"`
	SubmittedAt   time.Time           `json:"submitted_at"`
}
