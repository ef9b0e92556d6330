package service

import (
	"context"

	"github.com/Strob0t/OpsForge/internal/port/lease"
)

// withLease runs fn while holding the exclusive lease for key.
func withLease[T any](ctx context.Context, l lease.Leaser, mode lease.Mode, key string, fn func(context.Context) (T, error)) (T, error) {
	release, err := l.Acquire(ctx, key, mode)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn(ctx)
}
