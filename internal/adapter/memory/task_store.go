package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/port/taskstore"
)

// TaskStore keeps tasks in a map. Stored values are clones, so callers
// cannot mutate state behind the version check.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*agenttask.Task
}

var _ taskstore.Store = (*TaskStore)(nil)

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*agenttask.Task)}
}

func (s *TaskStore) Create(_ context.Context, t *agenttask.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("create task %s: %w", t.ID, domain.ErrConflict)
	}
	t.Version = 1
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *TaskStore) Get(_ context.Context, id string) (*agenttask.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *TaskStore) Update(_ context.Context, t *agenttask.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tasks[t.ID]
	if !ok {
		return fmt.Errorf("update task %s: %w", t.ID, domain.ErrNotFound)
	}
	if cur.Version != t.Version {
		return fmt.Errorf("update task %s: %w", t.ID, domain.ErrConflict)
	}
	t.Version++
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *TaskStore) ListByState(_ context.Context, state agenttask.State, limit int) ([]agenttask.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []agenttask.Task{}
	for _, t := range s.tasks {
		if t.State == state {
			out = append(out, *t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b agenttask.Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
