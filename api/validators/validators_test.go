package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/gritsync/gritsync-backend/pkg/errors"
)

type manualBody struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=bank_transfer remittance"`
	ProofPath     string `json:"proof_path" validate:"required"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_method":"cash"}`))
	var body manualBody
	err := DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must be one of: bank_transfer remittance", details["payment_method"])
	require.Equal(t, "is required", details["proof_path"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_method":"remittance","proof_path":"a.pdf","amount":"1"}`))
	var body manualBody
	require.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))
}

func TestDecodeOptionalJSONBodyAcceptsEmpty(t *testing.T) {
	type optional struct {
		Amount string `json:"amount"`
	}
	var body optional
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	require.NoError(t, DecodeOptionalJSONBody(req, &body))
	require.Empty(t, body.Amount)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"12.50"}`))
	require.NoError(t, DecodeOptionalJSONBody(req, &body))
	require.Equal(t, "12.50", body.Amount)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "paymentId", id.String())
	got, err := ParseUUIDParam(req, "paymentId")
	require.NoError(t, err)
	require.Equal(t, id, got)

	req = withParam(httptest.NewRequest(http.MethodGet, "/", nil), "paymentId", "nope")
	_, err = ParseUUIDParam(req, "paymentId")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	got, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 20, got)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}
