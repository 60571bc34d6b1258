package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gritsync/gritsync-backend/pkg/logger"
	"github.com/gritsync/gritsync-backend/pkg/redis"
)

const (
	cacheScope = "settings"
	cacheID    = "snapshot"
)

// CachedProvider serves snapshots from Redis and falls back to the wrapped provider.
type CachedProvider struct {
	next  Provider
	cache redis.CacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewCachedProvider wraps next with a Redis read-through cache.
func NewCachedProvider(next Provider, cache redis.CacheStore, ttl time.Duration, logg *logger.Logger) (*CachedProvider, error) {
	if next == nil {
		return nil, errors.New("settings provider required")
	}
	if cache == nil {
		return nil, errors.New("cache store required")
	}
	if ttl <= 0 {
		return nil, errors.New("cache ttl must be positive")
	}
	return &CachedProvider{next: next, cache: cache, ttl: ttl, logg: logg}, nil
}

func (p *CachedProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	key := p.cache.CacheKey(cacheScope, cacheID)

	raw, err := p.cache.Get(ctx, key)
	switch {
	case err == nil:
		var snap Snapshot
		if jsonErr := json.Unmarshal([]byte(raw), &snap); jsonErr == nil {
			return snap, nil
		}
		p.warn(ctx, "settings cache entry unreadable", nil)
	case !redis.IsMiss(err):
		p.warn(ctx, "settings cache read failed", err)
	}

	snap, err := p.next.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	if encoded, jsonErr := json.Marshal(snap); jsonErr == nil {
		if setErr := p.cache.Set(ctx, key, string(encoded), p.ttl); setErr != nil {
			p.warn(ctx, "settings cache write failed", setErr)
		}
	}
	return snap, nil
}

func (p *CachedProvider) warn(ctx context.Context, msg string, err error) {
	if p.logg == nil {
		return
	}
	if err != nil {
		ctx = p.logg.WithField(ctx, "error", err.Error())
	}
	p.logg.Warn(ctx, msg)
}
