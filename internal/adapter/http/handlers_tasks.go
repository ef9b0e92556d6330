package http

import (
	"encoding/json"
	"net/http"

	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
)

// RunWorkflow returns the handler for a workflow endpoint. The request body
// is the task input. By default the task runs before the response is
// written; ?async=true queues it and answers 202 with the queued snapshot.
func (h *Handlers) RunWorkflow(kind agenttask.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, ok := readJSON[json.RawMessage](w, r, maxRequestBodySize)
		if !ok {
			return
		}

		if r.URL.Query().Get("async") == "true" {
			t, err := h.tasks.Submit(r.Context(), kind, input, "")
			if err != nil {
				h.writeDomainError(w, r, err)
				return
			}
			w.Header().Set("Location", "/api/v1/tasks/"+t.ID)
			writeJSON(w, http.StatusAccepted, t)
			return
		}

		t, err := h.tasks.Dispatch(r.Context(), kind, input, "")
		if err != nil {
			h.writeTaskError(w, r, err, taskID(t))
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// AbortTask handles POST /api/v1/tasks/{id}/abort.
func (h *Handlers) AbortTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Abort(r.Context(), urlParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ConfirmTask handles POST /api/v1/tasks/{id}/confirm {confirmation_token}.
func (h *Handlers) ConfirmTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Token string `json:"confirmation_token"`
	}](w, r, maxRequestBodySize)
	if !ok || !requireField(w, req.Token, "confirmation_token") {
		return
	}
	id := urlParam(r, "id")
	t, err := h.tasks.Confirm(r.Context(), id, req.Token)
	if err != nil {
		h.writeTaskError(w, r, err, id)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
