package http

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/OpsForge/internal/domain/event"
)

// ListEvents handles GET /api/v1/events?task_id=&subject=&type=&after=&limit=.
// type may repeat or hold a comma-separated list; after is RFC 3339.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	f, ok := eventFilter(w, r.URL.Query())
	if !ok {
		return
	}
	h.writeEvents(w, r, f)
}

// TaskEvents handles GET /api/v1/tasks/{id}/events, the audit trail of one
// task. Unknown task IDs answer 404 rather than an empty list.
func (h *Handlers) TaskEvents(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.tasks.Get(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	f, ok := eventFilter(w, r.URL.Query())
	if !ok {
		return
	}
	f.TaskID = id
	h.writeEvents(w, r, f)
}

func (h *Handlers) writeEvents(w http.ResponseWriter, r *http.Request, f event.Filter) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event log not configured")
		return
	}
	evs, err := h.events.List(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

// eventFilter parses the query into a filter, answering 400 on bad input.
func eventFilter(w http.ResponseWriter, q url.Values) (event.Filter, bool) {
	f := event.Filter{TaskID: q.Get("task_id"), Subject: q.Get("subject")}
	for _, raw := range q["type"] {
		for _, typ := range strings.Split(raw, ",") {
			if typ = strings.TrimSpace(typ); typ != "" {
				f.Types = append(f.Types, event.Type(typ))
			}
		}
	}
	if s := q.Get("after"); s != "" {
		after, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an RFC 3339 timestamp")
			return f, false
		}
		f.After = &after
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return f, false
		}
		f.Limit = n
	}
	return f, true
}

// Events reads the append-only event log.
type Events interface {
	List(ctx context.Context, f event.Filter) ([]event.Event, error)
}

// SetEvents enables the event endpoints. Without it they answer 503.
func (h *Handlers) SetEvents(events Events) { h.events = events }
