package messagequeue

// MonitorRequestPayload is the schema for tasks.monitor messages.
type MonitorRequestPayload struct {
	ParentTaskID string `json:"parent_task_id"`
	DeploymentID string `json:"deployment_id"`
	ServiceURL   string `json:"service_url,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

// TaskStatusPayload is the schema for tasks.status messages.
type TaskStatusPayload struct {
	TaskID string `json:"task_id"`
	Kind   string `json:"kind"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}
