// Package eventlog defines the port interface for the append-only event log.
package eventlog

import (
	"context"

	"github.com/Strob0t/OpsForge/internal/domain/event"
)

// Log is the port interface for appending and querying events.
type Log interface {
	// Append persists a new event. ID and CreatedAt are filled in when empty.
	Append(ctx context.Context, ev *event.Event) error

	// List returns events matching the filter, oldest first.
	List(ctx context.Context, filter event.Filter) ([]event.Event, error)
}
