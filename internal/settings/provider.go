package settings

import (
	"context"
	"errors"
	"strconv"
	"strings"

	pkgerrors "github.com/gritsync/gritsync-backend/pkg/errors"
)

// Setting keys.
const (
	KeyEmailNotificationsEnabled = "emailNotificationsEnabled"
	KeyEmailPaymentUpdates       = "emailPaymentUpdates"
	KeyEmailFromAddress          = "emailFromAddress"
	KeyEmailFromName             = "emailFromName"
)

// Snapshot is the subset of settings the payment flow reads once per event.
type Snapshot struct {
	EmailNotificationsEnabled bool   `json:"emailNotificationsEnabled"`
	EmailPaymentUpdates       bool   `json:"emailPaymentUpdates"`
	FromAddress               string `json:"fromAddress"`
	FromName                  string `json:"fromName"`
}

// PaymentEmailsEnabled reports whether receipt emails should be sent.
func (s Snapshot) PaymentEmailsEnabled() bool {
	return s.EmailNotificationsEnabled && s.EmailPaymentUpdates
}

// Provider yields the current settings snapshot.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

type repositoryProvider struct {
	repo Repository
}

// NewProvider reads settings straight from the repository on every call.
func NewProvider(repo Repository) (Provider, error) {
	if repo == nil {
		return nil, errors.New("settings repository required")
	}
	return &repositoryProvider{repo: repo}, nil
}

func (p *repositoryProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	values, err := p.repo.All(ctx)
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settings")
	}
	return SnapshotFromValues(values), nil
}

// SnapshotFromValues parses raw rows. Missing or malformed flags are treated as disabled.
func SnapshotFromValues(values map[string]string) Snapshot {
	return Snapshot{
		EmailNotificationsEnabled: parseFlag(values[KeyEmailNotificationsEnabled]),
		EmailPaymentUpdates:       parseFlag(values[KeyEmailPaymentUpdates]),
		FromAddress:               strings.TrimSpace(values[KeyEmailFromAddress]),
		FromName:                  strings.TrimSpace(values[KeyEmailFromName]),
	}
}

func parseFlag(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
