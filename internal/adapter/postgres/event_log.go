package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/OpsForge/internal/domain/event"
	"github.com/Strob0t/OpsForge/internal/port/eventlog"
)

// EventLog implements eventlog.Log using PostgreSQL (append-only).
type EventLog struct {
	pool *pgxpool.Pool
}

var _ eventlog.Log = (*EventLog)(nil)

// NewEventLog creates an EventLog backed by the given connection pool.
func NewEventLog(pool *pgxpool.Pool) *EventLog {
	return &EventLog{pool: pool}
}

// Append inserts ev. A missing ID or timestamp is filled in.
func (l *EventLog) Append(ctx context.Context, ev *event.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Level == "" {
		ev.Level = event.LevelInfo
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO events (id, task_id, subject, event_type, level, message, payload, request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.TaskID, ev.Subject, string(ev.Type), string(ev.Level), ev.Message, nullJSON(ev.Payload), ev.RequestID, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

const eventColumns = `id, task_id, subject, event_type, level, message, payload, request_id, created_at`

// List returns events matching f in append order.
func (l *EventLog) List(ctx context.Context, f event.Filter) ([]event.Event, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.TaskID != "" {
		add("task_id = $%d", f.TaskID)
	}
	if f.Subject != "" {
		add("subject = $%d", f.Subject)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		add("event_type = ANY($%d)", types)
	}
	if f.After != nil {
		add("created_at > $%d", *f.After)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY seq ASC LIMIT $%d`, len(args))

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			ev      event.Event
			typ     string
			level   string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.Subject, &typ, &level, &ev.Message, &payload, &ev.RequestID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = event.Type(typ)
		ev.Level = event.Level(level)
		if len(payload) > 0 {
			ev.Payload = json.RawMessage(payload)
		}
		events = append(events, ev)
	}
	return orEmpty(events), rows.Err()
}
