package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/port/lease"
)

// AdvisoryLeaser implements lease.Leaser with session-level advisory locks,
// so leases hold across OpsForge replicas sharing one database.
type AdvisoryLeaser struct {
	pool *pgxpool.Pool
}

var _ lease.Leaser = (*AdvisoryLeaser)(nil)

// NewAdvisoryLeaser creates an AdvisoryLeaser.
func NewAdvisoryLeaser(pool *pgxpool.Pool) *AdvisoryLeaser {
	return &AdvisoryLeaser{pool: pool}
}

// Acquire takes the advisory lock for key on a dedicated connection. The
// connection stays checked out until release.
func (l *AdvisoryLeaser) Acquire(ctx context.Context, key string, mode lease.Mode) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("lease %s: acquire conn: %w: %w", key, domain.ErrUpstream, err)
	}

	switch mode {
	case lease.Reject:
		var ok bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&ok); err != nil {
			conn.Release()
			return nil, fmt.Errorf("lease %s: %w", key, err)
		}
		if !ok {
			conn.Release()
			return nil, fmt.Errorf("lease %s: %w: mutation already in progress", key, domain.ErrConflict)
		}
	default:
		// pg_advisory_lock is cancelled server-side when ctx ends.
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
			conn.Release()
			if ctx.Err() != nil {
				return nil, fmt.Errorf("lease %s: %w", key, ctx.Err())
			}
			return nil, fmt.Errorf("lease %s: %w", key, err)
		}
	}

	return func() {
		// Unlock must run even when the caller's ctx is already done.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			slog.Warn("advisory unlock failed, closing connection", "key", key, "error", err)
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}
