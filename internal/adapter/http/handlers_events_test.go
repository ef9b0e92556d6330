package http_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Strob0t/OpsForge/internal/adapter/memory"
	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/domain/event"
)

// seededEvents returns an event log holding the trail of a deploy task and
// an unrelated scale.
func seededEvents(t *testing.T) *memory.EventLog {
	t.Helper()
	log := memory.NewEventLog()
	for i, ev := range []event.Event{
		{TaskID: "task-1", Subject: "prod/api", Type: event.TypeTaskStarted, Message: "task started"},
		{TaskID: "task-1", Subject: "prod/api", Type: event.TypeDeployApplied, Message: "image applied"},
		{TaskID: "task-1", Subject: "prod/api", Type: event.TypeTaskSucceeded, Message: "task succeeded"},
		{Subject: "prod/web", Type: event.TypeDeployScaled, Message: "scaled to 4"},
	} {
		ev.CreatedAt = t0.Add(time.Duration(i) * time.Minute)
		if err := log.Append(context.Background(), &ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return log
}

func TestListEvents(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"task started", "image applied", "task succeeded", "scaled to 4"}},
		{"by task", "?task_id=task-1", []string{"task started", "image applied", "task succeeded"}},
		{"by subject", "?subject=prod/web", []string{"scaled to 4"}},
		{"type list", "?type=task.started,task.succeeded", []string{"task started", "task succeeded"}},
		{"type repeated", "?type=deployment.applied&type=deployment.scaled", []string{"image applied", "scaled to 4"}},
		{"after", "?after=" + t0.Add(time.Minute).Format(time.RFC3339), []string{"task succeeded", "scaled to 4"}},
		{"limit", "?limit=2", []string{"task started", "image applied"}},
		{"no match", "?task_id=missing", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAPI(t)
			a.handlers.SetEvents(seededEvents(t))

			rec := a.do(http.MethodGet, "/api/v1/events"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			got := decode[[]event.Event](t, rec)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, ev := range got {
				if ev.Message != tt.want[i] {
					t.Fatalf("event %d = %q, want %q", i, ev.Message, tt.want[i])
				}
			}
		})
	}
}

func TestListEventsBadQuery(t *testing.T) {
	a := newAPI(t)
	a.handlers.SetEvents(seededEvents(t))
	for _, q := range []string{"?after=yesterday", "?limit=0", "?limit=ten"} {
		if rec := a.do(http.MethodGet, "/api/v1/events"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", q, rec.Code)
		}
	}
}

func TestListEventsWithoutLog(t *testing.T) {
	a := newAPI(t)
	if rec := a.do(http.MethodGet, "/api/v1/events", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTaskEvents(t *testing.T) {
	a := newAPI(t)
	a.handlers.SetEvents(seededEvents(t))
	a.tasks.tasks["task-1"] = &agenttask.Task{ID: "task-1", Kind: agenttask.KindDeploy, State: agenttask.StateSucceeded}

	rec := a.do(http.MethodGet, "/api/v1/tasks/task-1/events?type=task.succeeded", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[[]event.Event](t, rec)
	if len(got) != 1 || got[0].TaskID != "task-1" || got[0].Type != event.TypeTaskSucceeded {
		t.Fatalf("events = %+v", got)
	}

	// The path ID wins over a task_id in the query.
	rec = a.do(http.MethodGet, "/api/v1/tasks/task-1/events?task_id=other", "")
	if got := decode[[]event.Event](t, rec); len(got) != 3 {
		t.Fatalf("expected the 3 events of task-1, got %+v", got)
	}

	if rec := a.do(http.MethodGet, "/api/v1/tasks/missing/events", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown task: status = %d", rec.Code)
	}
}
