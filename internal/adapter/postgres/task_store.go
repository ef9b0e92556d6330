package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/port/taskstore"
)

// TaskStore implements taskstore.Store on the agent_tasks table.
type TaskStore struct {
	pool *pgxpool.Pool
}

var _ taskstore.Store = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore backed by the given connection pool.
func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

const taskColumns = `id, kind, input, state, result, error, reason,
	confirmation_value, confirmation_issued_at, confirmation_ttl_ms,
	parent_id, steps, version, created_at, updated_at`

// Create inserts t with version 1.
func (s *TaskStore) Create(ctx context.Context, t *agenttask.Task) error {
	steps, err := json.Marshal(orEmpty(t.Steps))
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	tokValue, tokIssued, tokTTL := tokenColumns(t.Confirmation)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)`,
		t.ID, string(t.Kind), nullJSON(t.Input), string(t.State), nullJSON(t.Result), t.Error, string(t.Reason),
		tokValue, tokIssued, tokTTL, t.ParentID, steps, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if uniqueViolation(err) {
			return fmt.Errorf("create task %s: %w", t.ID, domain.ErrConflict)
		}
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	t.Version = 1
	return nil
}

// Get returns a task by ID.
func (s *TaskStore) Get(ctx context.Context, id string) (*agenttask.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM agent_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return t, nil
}

// Update writes t when its stored version matches, then bumps t.Version.
func (s *TaskStore) Update(ctx context.Context, t *agenttask.Task) error {
	steps, err := json.Marshal(orEmpty(t.Steps))
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	tokValue, tokIssued, tokTTL := tokenColumns(t.Confirmation)

	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_tasks SET state = $2, result = $3, error = $4, reason = $5,
		        confirmation_value = $6, confirmation_issued_at = $7, confirmation_ttl_ms = $8,
		        steps = $9, updated_at = $10, version = version + 1
		 WHERE id = $1 AND version = $11`,
		t.ID, string(t.State), nullJSON(t.Result), t.Error, string(t.Reason),
		tokValue, tokIssued, tokTTL, steps, t.UpdatedAt, t.Version)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale version.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM agent_tasks WHERE id = $1)`, t.ID).Scan(&exists); err == nil && !exists {
			return fmt.Errorf("update task %s: %w", t.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("update task %s: %w", t.ID, domain.ErrConflict)
	}
	t.Version++
	return nil
}

// ListByState returns tasks in state, oldest first.
func (s *TaskStore) ListByState(ctx context.Context, state agenttask.State, limit int) ([]agenttask.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM agent_tasks WHERE state = $1 ORDER BY created_at ASC LIMIT $2`,
		string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks in %s: %w", state, err)
	}
	defer rows.Close()

	var tasks []agenttask.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return orEmpty(tasks), rows.Err()
}

func scanTask(row scannable) (*agenttask.Task, error) {
	var (
		t         agenttask.Task
		kind      string
		state     string
		reason    string
		input     []byte
		result    []byte
		steps     []byte
		tokValue  *string
		tokIssued *time.Time
		tokTTL    *int64
	)
	err := row.Scan(&t.ID, &kind, &input, &state, &result, &t.Error, &reason,
		&tokValue, &tokIssued, &tokTTL,
		&t.ParentID, &steps, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Kind = agenttask.Kind(kind)
	t.State = agenttask.State(state)
	t.Reason = agenttask.Reason(reason)
	if len(input) > 0 {
		t.Input = json.RawMessage(input)
	}
	if len(result) > 0 {
		t.Result = json.RawMessage(result)
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &t.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	if tokValue != nil && tokIssued != nil && tokTTL != nil {
		t.Confirmation = &agenttask.ConfirmationToken{
			Value:    *tokValue,
			IssuedAt: *tokIssued,
			TTL:      time.Duration(*tokTTL) * time.Millisecond,
		}
	}
	return &t, nil
}

func tokenColumns(tok *agenttask.ConfirmationToken) (value, issued, ttlMS any) {
	if tok == nil {
		return nil, nil, nil
	}
	return tok.Value, tok.IssuedAt, tok.TTL.Milliseconds()
}

// nullJSON maps an empty payload to SQL NULL.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
