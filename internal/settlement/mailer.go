package settlement

import (
	"context"
	"errors"
	"strings"

	"github.com/gritsync/gritsync-backend/internal/email"
	"github.com/gritsync/gritsync-backend/internal/settings"
	"github.com/gritsync/gritsync-backend/pkg/logger"
	"github.com/gritsync/gritsync-backend/pkg/retry"
)

var errNoRecipient = errors.New("payer has no email address")

// ReceiptMailer sends the receipt email for a settled payment after commit.
type ReceiptMailer struct {
	sender       email.Sender
	logg         *logger.Logger
	currency     string
	dashboardURL string
	retryOpts    []retry.Option
}

type MailerParams struct {
	Sender       email.Sender
	Logger       *logger.Logger
	Currency     string
	DashboardURL string
	RetryOptions []retry.Option
}

func NewReceiptMailer(params MailerParams) *ReceiptMailer {
	return &ReceiptMailer{
		sender:       params.Sender,
		logg:         params.Logger,
		currency:     params.Currency,
		dashboardURL: strings.TrimRight(params.DashboardURL, "/"),
		retryOpts:    params.RetryOptions,
	}
}

// ShouldSend reports whether a receipt email is due for result under snap.
func (m *ReceiptMailer) ShouldSend(snap settings.Snapshot, result *Result) bool {
	return m != nil && m.sender != nil && result != nil && result.ReceiptCreated && snap.PaymentEmailsEnabled()
}

// Send renders and delivers the receipt. Callers log the error and move on.
func (m *ReceiptMailer) Send(ctx context.Context, snap settings.Snapshot, result *Result) error {
	if !m.ShouldSend(snap, result) {
		return nil
	}
	if result.User == nil || strings.TrimSpace(result.User.Email) == "" {
		return errNoRecipient
	}

	paidAt := result.Receipt.CreatedAt
	if result.Payment.PaidAt != nil {
		paidAt = *result.Payment.PaidAt
	}
	view := email.ReceiptView{
		CustomerName:  result.User.DisplayName(),
		ReceiptNumber: result.Receipt.ReceiptNumber,
		PaymentLabel:  result.Payment.PaymentType.Label(),
		PaymentMethod: strings.ReplaceAll(string(result.Receipt.PaymentMethod), "_", " "),
		Currency:      m.currency,
		Amount:        result.Payment.Amount,
		TotalPaid:     result.TotalAmountPaid,
		PaidAt:        paidAt,
	}
	if m.dashboardURL != "" {
		view.DashboardURL = m.dashboardURL + TimelineLink(result.Payment.ApplicationID)
	}
	subject, html, err := email.RenderReceipt(view)
	if err != nil {
		return err
	}

	msg := email.Message{
		From:    email.FormatFrom(snap.FromName, snap.FromAddress),
		To:      result.User.Email,
		Subject: subject,
		HTML:    html,
		Tags:    map[string]string{"category": "payment_receipt"},
	}
	var messageID string
	err = retry.Do(ctx, func(ctx context.Context) error {
		var sendErr error
		messageID, sendErr = m.sender.Send(ctx, msg)
		return sendErr
	}, m.retryOpts...)
	if err != nil {
		return err
	}
	if m.logg != nil {
		logCtx := m.logg.WithPaymentID(ctx, result.Payment.ID.String())
		logCtx = m.logg.WithFields(logCtx, map[string]any{
			"receipt_number": result.Receipt.ReceiptNumber,
			"message_id":     messageID,
		})
		m.logg.Info(logCtx, "receipt email sent")
	}
	return nil
}
