package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gritsync/gritsync-backend/pkg/redis"
)

// GuardScope namespaces Stripe event ids in the idempotency keyspace.
const GuardScope = "stripe-webhook"

// IdempotencyGuard records Stripe event ids that were fully processed so redeliveries
// short-circuit. Events are marked only after they succeed; a failed or abandoned
// delivery leaves no mark and Stripe's retry is processed again.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, now: time.Now}, nil
}

// Processed reports whether eventID was already marked.
func (g *IdempotencyGuard) Processed(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	value, err := g.store.Get(ctx, g.store.IdempotencyKey(GuardScope, eventID))
	if err != nil {
		if redis.IsMiss(err) {
			return false, nil
		}
		return false, fmt.Errorf("get idempotency key: %w", err)
	}
	return value != "", nil
}

// MarkProcessed records eventID. The write is detached from ctx cancellation so a
// client disconnect after a successful settlement still records it.
func (g *IdempotencyGuard) MarkProcessed(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(GuardScope, eventID)
	if _, err := g.store.SetNX(context.WithoutCancel(ctx), key, g.now().UTC().Format(time.RFC3339), g.ttl); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}
