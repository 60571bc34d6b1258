package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gritsync/gritsync-backend/pkg/config"
)

type fakeEmails struct {
	requests []*resend.SendEmailRequest
	err      error
}

func (f *fakeEmails) SendWithContext(_ context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.requests = append(f.requests, params)
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "email_123"}, nil
}

func TestResendSenderSend(t *testing.T) {
	api := &fakeEmails{}
	sender := &ResendSender{emails: api, defaultFrom: "GritSync <noreply@gritsync.com>"}

	id, err := sender.Send(context.Background(), Message{
		To:      "Maria Santos <maria@example.com>",
		Subject: "Payment Receipt",
		HTML:    "<p>hi</p>",
		Tags:    map[string]string{"category": "receipt"},
	})
	require.NoError(t, err)
	assert.Equal(t, "email_123", id)
	require.Len(t, api.requests, 1)
	req := api.requests[0]
	assert.Equal(t, []string{"maria@example.com"}, req.To)
	assert.Equal(t, "GritSync <noreply@gritsync.com>", req.From)
	require.Len(t, req.Tags, 1)
	assert.Equal(t, "receipt", req.Tags[0].Value)
}

func TestResendSenderRejectsBadInput(t *testing.T) {
	sender := &ResendSender{emails: &fakeEmails{}}
	_, err := sender.Send(context.Background(), Message{To: "not-an-email", Subject: "s", From: "a@b.co"})
	require.Error(t, err)
	_, err = sender.Send(context.Background(), Message{To: "a@b.co", Subject: "s"})
	require.Error(t, err, "sender address required when no default")
	_, err = sender.Send(context.Background(), Message{To: "a@b.co", From: "c@d.co"})
	require.Error(t, err, "subject required")
}

func TestResendSenderWrapsAPIError(t *testing.T) {
	api := &fakeEmails{err: errors.New("429 rate limit")}
	sender := &ResendSender{emails: api, defaultFrom: "a@b.co"}
	_, err := sender.Send(context.Background(), Message{To: "c@d.co", Subject: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestNewResendSenderRequiresKey(t *testing.T) {
	_, err := NewResendSender(config.EmailConfig{})
	require.Error(t, err)
	sender, err := NewResendSender(config.EmailConfig{ResendAPIKey: "re_123", DefaultFrom: "a@b.co"})
	require.NoError(t, err)
	assert.NotNil(t, sender)
}

func TestFormatFrom(t *testing.T) {
	assert.Equal(t, "", FormatFrom("GritSync", ""))
	assert.Equal(t, "noreply@gritsync.com", FormatFrom("", "noreply@gritsync.com"))
	assert.Equal(t, `"GritSync" <noreply@gritsync.com>`, FormatFrom("GritSync", "noreply@gritsync.com"))
}

func TestRenderReceipt(t *testing.T) {
	subject, html, err := RenderReceipt(ReceiptView{
		CustomerName:  "Maria <script>",
		ReceiptNumber: "RCP-1700000000000-ABCD1234",
		PaymentLabel:  "Application Fee (Step 2)",
		PaymentMethod: "card",
		Currency:      "usd",
		Amount:        decimal.RequireFromString("250"),
		TotalPaid:     decimal.RequireFromString("500.5"),
		PaidAt:        time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		DashboardURL:  "https://app.gritsync.com/applications/1/timeline",
	})
	require.NoError(t, err)
	assert.Equal(t, "Payment Receipt RCP-1700000000000-ABCD1234 - Application Fee (Step 2)", subject)
	assert.Contains(t, html, "$250.00")
	assert.Contains(t, html, "$500.50")
	assert.Contains(t, html, "January 5, 2026")
	assert.Contains(t, html, "Application Fee (Step 2)")
	assert.False(t, strings.Contains(html, "<script>"), "customer name must be escaped")
}

func TestRenderReceiptRequiresNumber(t *testing.T) {
	_, _, err := RenderReceipt(ReceiptView{})
	require.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$10.00", formatMoney("", decimal.NewFromInt(10)))
	assert.Equal(t, "10.00 EUR", formatMoney("eur", decimal.NewFromInt(10)))
}
