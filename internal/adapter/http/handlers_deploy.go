package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/service"
)

type deployResponse struct {
	TaskID string `json:"task_id"`
	service.DeployTaskResult
}

// Deploy handles POST /api/v1/deploy. The deploy task runs to completion
// before the response is written; its monitor follows asynchronously.
func (h *Handlers) Deploy(w http.ResponseWriter, r *http.Request) {
	in, ok := readJSON[service.DeployInput](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, in.Repository, "repository") || !requireField(w, in.ImageTag, "image_tag") {
		return
	}

	t, err := h.tasks.Dispatch(r.Context(), agenttask.KindDeploy, mustJSON(in), "")
	if err != nil {
		h.writeTaskError(w, r, err, taskID(t))
		return
	}
	var res service.DeployTaskResult
	if err := json.Unmarshal(t.Result, &res); err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deployResponse{TaskID: t.ID, DeployTaskResult: res})
}

type rollbackRequest struct {
	service.RollbackInput
	Confirmed         bool   `json:"confirmed,omitempty"`
	ConfirmationToken string `json:"confirmation_token,omitempty"`
	TaskID            string `json:"task_id,omitempty"`
}

type rollbackResponse struct {
	TaskID string `json:"task_id"`
	service.RollbackTaskResult
	confirmationFields
}

// Rollback handles POST /api/v1/rollback. Without a token it starts a
// rollback task, which suspends with 202 when confirmation is required. With
// task_id, confirmation_token and confirmed=true it resumes that suspended
// task.
func (h *Handlers) Rollback(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[rollbackRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	var (
		t   *agenttask.Task
		err error
	)
	if req.TaskID != "" || req.ConfirmationToken != "" {
		if !requireField(w, req.TaskID, "task_id") || !requireField(w, req.ConfirmationToken, "confirmation_token") {
			return
		}
		if !req.Confirmed {
			h.writeTaskError(w, r, fmt.Errorf("%w: confirmed must be true to resume a rollback", domain.ErrValidation), req.TaskID)
			return
		}
		t, err = h.tasks.Confirm(r.Context(), req.TaskID, req.ConfirmationToken)
		if err != nil && t == nil {
			t = &agenttask.Task{ID: req.TaskID}
		}
	} else {
		if !requireField(w, req.DeploymentID, "deployment_id") {
			return
		}
		t, err = h.tasks.Dispatch(r.Context(), agenttask.KindRollback, mustJSON(req.RollbackInput), "")
	}
	if err != nil {
		h.writeTaskError(w, r, err, taskID(t))
		return
	}

	var res service.RollbackTaskResult
	if err := json.Unmarshal(t.Result, &res); err != nil {
		writeInternalError(w, r, err)
		return
	}
	status := http.StatusOK
	if t.State == agenttask.StateSuspended {
		status = http.StatusAccepted
	}
	writeJSON(w, status, rollbackResponse{TaskID: t.ID, RollbackTaskResult: res, confirmationFields: confirmationOf(t)})
}

// ListDeployments handles GET /api/v1/deployments?namespace=.
func (h *Handlers) ListDeployments(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.deployments.List(r.Context(), r.URL.Query().Get("namespace"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// DeploymentStatus handles GET /api/v1/deployments/{namespace}/{name}/status.
func (h *Handlers) DeploymentStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deployments.Status(r.Context(), urlParam(r, "name"), urlParam(r, "namespace"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ScaleDeployment handles POST /api/v1/deployments/{namespace}/{name}/scale.
func (h *Handlers) ScaleDeployment(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Replicas *int32 `json:"replicas"`
	}](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.Replicas == nil {
		writeError(w, http.StatusBadRequest, "replicas is required")
		return
	}
	res, err := h.deployments.Scale(r.Context(), urlParam(r, "name"), urlParam(r, "namespace"), *req.Replicas)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func taskID(t *agenttask.Task) string {
	if t == nil {
		return ""
	}
	return t.ID
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
