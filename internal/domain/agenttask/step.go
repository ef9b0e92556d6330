package agenttask

import "time"

// StepKind is the capability a workflow step exercises.
type StepKind string

const (
	StepFetchContext StepKind = "fetch_context"
	StepAnalyze      StepKind = "analyze"
	StepAct          StepKind = "act"
	StepNotify       StepKind = "notify"
)

// StepStatus is the outcome of one executed step.
type StepStatus string

const (
	StepOK       StepStatus = "ok"
	StepFailed   StepStatus = "failed"
	StepAbsorbed StepStatus = "absorbed" // failed, but the task continues
	StepParked   StepStatus = "suspended"
)

// StepRecord is the persisted trace of a step execution.
type StepRecord struct {
	Name       string     `json:"name"`
	Kind       StepKind   `json:"kind"`
	Status     StepStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	At         time.Time  `json:"at"`
}
