// Package taskstore defines the persistence port for agent tasks.
package taskstore

import (
	"context"

	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
)

// Store persists agent tasks.
type Store interface {
	// Create inserts a new task with version 1.
	Create(ctx context.Context, t *agenttask.Task) error

	// Get returns the task or an error wrapping domain.ErrNotFound.
	Get(ctx context.Context, id string) (*agenttask.Task, error)

	// Update writes t if its stored version equals t.Version, then increments
	// t.Version. A stale version yields domain.ErrConflict.
	Update(ctx context.Context, t *agenttask.Task) error

	// ListByState returns tasks in the given state, oldest first.
	ListByState(ctx context.Context, state agenttask.State, limit int) ([]agenttask.Task, error)
}
