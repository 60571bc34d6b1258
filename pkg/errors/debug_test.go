package errors

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v84"
)

func TestDumpCarriesDriverFieldsAndClassification(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "payment_receipts_pkey", TableName: "payment_receipts"}
	err := Wrap(CodeDependency, pgErr, "insert receipt")

	d := Dump(err)
	assert.Equal(t, CodeDependency, d.Code)
	assert.Equal(t, "23505", d.PGCode)
	assert.Equal(t, "payment_receipts_pkey", d.PGConstraint)
	assert.Equal(t, "payment_receipts", d.PGTable)
	assert.Equal(t, TypeValidation, d.Type)
	assert.False(t, d.Retryable)
	assert.Len(t, d.Chain, 2)
}

func TestDumpCarriesStripeFields(t *testing.T) {
	err := Wrap(CodeDependency, &stripe.Error{
		HTTPStatusCode: 402,
		Code:           stripe.ErrorCodeCardDeclined,
		DeclineCode:    stripe.DeclineCodeInsufficientFunds,
		RequestID:      "req_123",
		Msg:            "Your card has insufficient funds.",
	}, "confirm payment intent")

	d := Dump(err)
	assert.Equal(t, "card_declined", d.StripeCode)
	assert.Equal(t, "insufficient_funds", d.StripeDeclineCode)
	assert.Equal(t, "req_123", d.StripeRequestID)
	assert.Empty(t, d.PGCode)
}

func TestDumpNil(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
