package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptLine is one row of the receipt table.
type ReceiptLine struct {
	Description string
	Amount      decimal.Decimal
}

// ReceiptView is everything the receipt template renders.
type ReceiptView struct {
	CustomerName  string
	ReceiptNumber string
	PaymentLabel  string
	PaymentMethod string
	Currency      string
	Amount        decimal.Decimal
	TotalPaid     decimal.Decimal
	PaidAt        time.Time
	Items         []ReceiptLine
	DashboardURL  string
}

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money": formatMoney,
	"date":  func(t time.Time) string { return t.UTC().Format("January 2, 2006") },
}).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Payment Receipt</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>Thank you! We received your payment for <strong>{{.PaymentLabel}}</strong>.</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><td>Receipt number</td><td>{{.ReceiptNumber}}</td></tr>
    <tr><td>Date</td><td>{{date .PaidAt}}</td></tr>
    <tr><td>Payment method</td><td>{{.PaymentMethod}}</td></tr>
  </table>
  <table cellpadding="6" style="border-collapse: collapse; margin-top: 16px;">
    {{- range .Items}}
    <tr><td>{{.Description}}</td><td style="text-align: right;">{{money $.Currency .Amount}}</td></tr>
    {{- end}}
    <tr><td><strong>Amount paid</strong></td><td style="text-align: right;"><strong>{{money .Currency .Amount}}</strong></td></tr>
    <tr><td>Total paid to date</td><td style="text-align: right;">{{money .Currency .TotalPaid}}</td></tr>
  </table>
  {{- if .DashboardURL}}
  <p><a href="{{.DashboardURL}}">View your application timeline</a></p>
  {{- end}}
  <p>GritSync</p>
</body>
</html>`))

// RenderReceipt returns the subject and HTML body for a receipt email.
func RenderReceipt(view ReceiptView) (string, string, error) {
	if view.ReceiptNumber == "" {
		return "", "", fmt.Errorf("receipt number is required")
	}
	if view.CustomerName == "" {
		view.CustomerName = "there"
	}
	if view.PaidAt.IsZero() {
		view.PaidAt = time.Now()
	}
	if len(view.Items) == 0 {
		view.Items = []ReceiptLine{{Description: view.PaymentLabel, Amount: view.Amount}}
	}

	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("render receipt: %w", err)
	}
	subject := fmt.Sprintf("Payment Receipt %s - %s", view.ReceiptNumber, view.PaymentLabel)
	return subject, buf.String(), nil
}

func formatMoney(currency string, amount decimal.Decimal) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || code == "USD" {
		return "$" + amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + code
}
