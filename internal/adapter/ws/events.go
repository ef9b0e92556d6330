package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// TaskStatusEvent is broadcast when a task changes state.
type TaskStatusEvent struct {
	TaskID    string `json:"task_id"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"` // set while suspended
}

// DeploymentEvent is broadcast after a deployment mutation.
type DeploymentEvent struct {
	DeploymentID string `json:"deployment_id"`
	Action       string `json:"action"` // deployed, scaled, rolling_back
	Image        string `json:"image,omitempty"`
	Replicas     int32  `json:"replicas,omitempty"`
}

// BroadcastEvent marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
