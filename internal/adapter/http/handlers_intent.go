package http

import (
	"net/http"

	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/service"
)

type messageRequest struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// RouteIntent handles POST /api/v1/intent.
func (h *Handlers) RouteIntent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[messageRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	res, err := h.intents.Route(r.Context(), req.Message, req.Context)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type requestResponse struct {
	service.RequestResult
	confirmationFields
}

// HandleRequest handles POST /api/v1/requests: the message is routed and the
// matching workflow dispatched, or a clarification is returned.
func (h *Handlers) HandleRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[messageRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	res, err := h.requests.Handle(r.Context(), req.Message, req.Context)
	if err != nil {
		h.writeTaskError(w, r, err, taskID(res.Task))
		return
	}
	status := http.StatusOK
	if res.Task != nil && res.Task.State == agenttask.StateSuspended {
		status = http.StatusAccepted
	}
	writeJSON(w, status, requestResponse{RequestResult: res, confirmationFields: confirmationOf(res.Task)})
}
