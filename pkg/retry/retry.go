package retry

import (
	"context"
	"time"

	pkgerrors "github.com/gritsync/gritsync-backend/pkg/errors"
	"github.com/gritsync/gritsync-backend/pkg/logger"
	goretry "github.com/sethvargo/go-retry"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
)

// Options control the executor. MaxRetries counts total attempts.
type Options struct {
	MaxRetries   int
	InitialDelay time.Duration
	Logger       *logger.Logger
}

type Option func(*Options)

func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

func WithInitialDelay(d time.Duration) Option {
	return func(o *Options) { o.InitialDelay = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Do runs op until it succeeds, fails with a non-retryable classification, or
// exhausts MaxRetries attempts. Attempt n (zero-indexed) is followed by a sleep of
// InitialDelay * 2^n. Exhaustion returns the last error unwrapped.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	cfg := Options{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}

	backoff := goretry.WithMaxRetries(uint64(cfg.MaxRetries-1), goretry.NewExponential(cfg.InitialDelay))

	attempt := 0
	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		c := pkgerrors.Classify(err)
		if cfg.Logger != nil {
			logCtx := cfg.Logger.WithFields(ctx, map[string]any{
				"attempt":    attempt + 1,
				"error_type": string(c.Type),
				"retryable":  c.Retryable,
			})
			cfg.Logger.Debug(logCtx, "retry attempt failed")
		}
		attempt++
		if !c.Retryable {
			return err
		}
		return goretry.RetryableError(err)
	})
}
