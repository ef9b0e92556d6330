package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/OpsForge/internal/domain/event"
	"github.com/Strob0t/OpsForge/internal/port/eventlog"
)

// EventLog is an append-only slice of events.
type EventLog struct {
	mu     sync.RWMutex
	events []event.Event
}

var _ eventlog.Log = (*EventLog)(nil)

// NewEventLog creates an empty EventLog.
func NewEventLog() *EventLog { return &EventLog{} }

func (l *EventLog) Append(_ context.Context, ev *event.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Level == "" {
		ev.Level = event.LevelInfo
	}
	l.mu.Lock()
	l.events = append(l.events, *ev)
	l.mu.Unlock()
	return nil
}

func (l *EventLog) List(_ context.Context, f event.Filter) ([]event.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	out := []event.Event{}
	for i := range l.events {
		ev := l.events[i]
		switch {
		case f.TaskID != "" && ev.TaskID != f.TaskID:
			continue
		case f.Subject != "" && ev.Subject != f.Subject:
			continue
		case len(f.Types) > 0 && !slices.Contains(f.Types, ev.Type):
			continue
		case f.After != nil && !ev.CreatedAt.After(*f.After):
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
