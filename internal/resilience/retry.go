package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Strob0t/OpsForge/internal/config"
	"github.com/Strob0t/OpsForge/internal/domain"
)

// IsTransient reports whether err is worth retrying: upstream failures,
// timeouts and deadline overruns. Conflicts are handled by RetryOnConflict.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, domain.ErrUpstream) ||
		errors.Is(err, domain.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	MaxRetries      uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Jitter          float64
}

// PolicyFrom converts the retry config section.
func PolicyFrom(cfg config.Retry) Policy {
	return Policy{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Jitter:          cfg.Jitter,
	}
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.RandomizationFactor = p.Jitter
	b.Multiplier = 2
	return b
}

// Retry runs op, retrying up to p.MaxRetries additional times while retryable
// returns true for the error. Other errors surface immediately.
func Retry[T any](ctx context.Context, p Policy, op string, retryable func(error) bool, fn func() (T, error)) (T, error) {
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "retrying operation",
			"op", op, "attempt", attempt, "wait", wait, "error", err)
	}

	v, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.MaxRetries+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return v, perm.Unwrap()
		}
		return v, err
	}
	return v, nil
}

// RetryTransient retries only transient errors.
func RetryTransient[T any](ctx context.Context, p Policy, op string, fn func() (T, error)) (T, error) {
	return Retry(ctx, p, op, IsTransient, fn)
}

// RetryOnConflict retries conflicts as well as transient errors.
func RetryOnConflict[T any](ctx context.Context, p Policy, op string, fn func() (T, error)) (T, error) {
	return Retry(ctx, p, op, func(err error) bool {
		return errors.Is(err, domain.ErrConflict) || IsTransient(err)
	}, fn)
}
