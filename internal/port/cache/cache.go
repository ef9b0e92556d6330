// Package cache defines the key-value port behind two OpsForge stores: the
// deployment status snapshots served by GET .../status (process-local
// ristretto in front of a shared NATS KV bucket) and the replayable
// responses of the Idempotency-Key middleware.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys. A miss is (nil, false, nil);
// err is reserved for backend failures, which callers treat as a miss.
// Backends with a bucket-wide expiry (NATS KV) ignore the per-call ttl.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
