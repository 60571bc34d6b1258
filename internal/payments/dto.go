package payments

import (
	"github.com/shopspring/decimal"

	"github.com/gritsync/gritsync-backend/pkg/enums"
)

// CreateIntentRequest is the body of POST /payments/{paymentId}/intent.
type CreateIntentRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// IntentResult is handed to the client to confirm the card payment.
type IntentResult struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// ConfirmRequest is the body of POST /payments/{paymentId}/confirm.
type ConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required,startswith=pi_"`
}

// Outcome is the routed result of a processor confirmation.
type Outcome struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Paid    bool   `json:"paid"`
}

// ManualPaymentRequest is the body of POST /payments/{paymentId}/manual.
type ManualPaymentRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=bank_transfer remittance"`
	ProofPath     string `json:"proof_path" validate:"required,max=1024"`
	Reference     string `json:"reference" validate:"omitempty,max=255"`
}

// ManualPaymentInput is the validated manual submission.
type ManualPaymentInput struct {
	Method    enums.PaymentMethod
	ProofPath string
	Reference string
}
