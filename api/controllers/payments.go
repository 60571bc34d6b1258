package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/gritsync/gritsync-backend/api/responses"
	"github.com/gritsync/gritsync-backend/api/validators"
	"github.com/gritsync/gritsync-backend/internal/payments"
	"github.com/gritsync/gritsync-backend/pkg/enums"
	pkgerrors "github.com/gritsync/gritsync-backend/pkg/errors"
	"github.com/gritsync/gritsync-backend/pkg/logger"
)

const paymentIDParam = "paymentId"

// CreatePaymentIntent starts a card payment for the caller's application fee.
func CreatePaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, paymentID, err := paymentRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPaymentID(ctx, paymentID.String())
		}

		var body payments.CreateIntentRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.CreateIntent(ctx, userID, paymentID, body.Amount)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ConfirmPayment routes the processor status after the client confirmed the card.
func ConfirmPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, paymentID, err := paymentRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPaymentID(ctx, paymentID.String())
		}

		var body payments.ConfirmRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := svc.ConfirmOutcome(ctx, userID, paymentID, body.PaymentIntentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

// SubmitManualPayment records a bank transfer or remittance proof for admin review.
func SubmitManualPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, paymentID, err := paymentRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPaymentID(ctx, paymentID.String())
		}

		var body payments.ManualPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(body.PaymentMethod)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		payment, err := svc.SubmitManualPayment(ctx, userID, paymentID, payments.ManualPaymentInput{
			Method:    method,
			ProofPath: validators.SanitizeString(body.ProofPath, 1024),
			Reference: validators.SanitizeString(body.Reference, 255),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// ApproveManualPayment settles a reviewed manual payment. Admin only.
func ApproveManualPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		adminID, paymentID, err := paymentRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPaymentID(ctx, paymentID.String())
		}

		result, err := svc.ApproveManualPayment(ctx, adminID, paymentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func paymentRequestIDs(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := requestUserID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	paymentID, err := validators.ParseUUIDParam(r, paymentIDParam)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, paymentID, nil
}
