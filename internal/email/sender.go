package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/gritsync/gritsync-backend/pkg/config"
)

// Message is a single outbound HTML email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Tags    map[string]string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type emailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender delivers mail through the Resend API.
type ResendSender struct {
	emails      emailsAPI
	defaultFrom string
}

// NewResendSender builds a sender from the email config.
func NewResendSender(cfg config.EmailConfig) (*ResendSender, error) {
	key := strings.TrimSpace(cfg.ResendAPIKey)
	if key == "" {
		return nil, errors.New("resend api key is required")
	}
	client := resend.NewClient(key)
	return &ResendSender{emails: client.Emails, defaultFrom: cfg.DefaultFrom}, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	if s == nil || s.emails == nil {
		return "", errors.New("email sender not initialized")
	}
	to, err := mail.ParseAddress(strings.TrimSpace(msg.To))
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = s.defaultFrom
	}
	if from == "" {
		return "", errors.New("sender address is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return "", errors.New("subject is required")
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      []string{to.Address},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	for name, value := range msg.Tags {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: value})
	}

	resp, err := s.emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Id, nil
}

// FormatFrom renders a display name plus address, falling back to the bare address.
func FormatFrom(name, address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}
