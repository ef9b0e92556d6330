package messagequeue

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		wantErr string
	}{
		{"monitor ok", SubjectTaskMonitor, `{"parent_task_id":"t1","deployment_id":"prod/web"}`, ""},
		{"monitor missing deployment", SubjectTaskMonitor, `{"parent_task_id":"t1"}`, "deployment_id is required"},
		{"monitor wrong type", SubjectTaskMonitor, `{"deployment_id":42}`, "schema validation failed"},
		{"status ok", SubjectTaskStatus, `{"task_id":"t1","kind":"deploy","state":"running"}`, ""},
		{"status wrong type", SubjectTaskStatus, `{"task_id":true}`, "schema validation failed"},
		{"invalid json", SubjectTaskStatus, `{not json`, "invalid JSON"},
		{"unknown subject passes", "tasks.future", `{"anything":1}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.subject, []byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
