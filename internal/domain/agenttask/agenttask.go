// Package agenttask defines the AgentTask entity, its state machine and the
// confirmation tokens that gate destructive actions.
package agenttask

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/OpsForge/internal/domain"
)

// Kind identifies the workflow a task runs.
type Kind string

const (
	KindCodeReview Kind = "code_review"
	KindTestWriter Kind = "test_writer"
	KindDeploy     Kind = "deploy"
	KindRollback   Kind = "rollback"
	KindMonitor    Kind = "monitor"
	KindSecurity   Kind = "security"
	KindCost       Kind = "cost"
	KindIncident   Kind = "incident"
)

// Kinds lists every workflow kind.
var Kinds = []Kind{
	KindCodeReview, KindTestWriter, KindDeploy, KindRollback,
	KindMonitor, KindSecurity, KindCost, KindIncident,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// State is the lifecycle state of a task.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSuspended State = "suspended"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

// Reason qualifies a failed task.
type Reason string

const (
	ReasonError               Reason = "error"
	ReasonConfirmationExpired Reason = "confirmation_expired"
	ReasonCancelled           Reason = "cancelled"
	ReasonNoFilesAvailable    Reason = "no_files_available"
)

// transitions lists the allowed state changes.
var transitions = map[State][]State{
	StateQueued:    {StateRunning, StateFailed},
	StateRunning:   {StateSucceeded, StateFailed, StateSuspended},
	StateSuspended: {StateRunning, StateFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Task is a unit of agent work executed by the pipeline.
type Task struct {
	ID           string             `json:"id"`
	Kind         Kind               `json:"kind"`
	Input        json.RawMessage    `json:"input,omitempty"`
	State        State              `json:"state"`
	Result       json.RawMessage    `json:"result,omitempty"`
	Error        string             `json:"error,omitempty"`
	Reason       Reason             `json:"reason,omitempty"`
	Confirmation *ConfirmationToken `json:"-"`
	ParentID     string             `json:"parent_id,omitempty"`
	Steps        []StepRecord       `json:"steps,omitempty"`
	Version      int                `json:"version"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// New creates a queued task.
func New(id string, kind Kind, input json.RawMessage, now time.Time) (*Task, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown task kind %q", domain.ErrValidation, kind)
	}
	return &Task{
		ID:        id,
		Kind:      kind,
		Input:     input,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (t *Task) moveTo(to State, now time.Time) error {
	if !CanTransition(t.State, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.State, to)
	}
	t.State = to
	t.UpdatedAt = now
	return nil
}

// Start moves a queued task to running.
func (t *Task) Start(now time.Time) error { return t.moveTo(StateRunning, now) }

// Succeed records the result of a running task.
func (t *Task) Succeed(result json.RawMessage, now time.Time) error {
	if err := t.moveTo(StateSucceeded, now); err != nil {
		return err
	}
	t.Result = result
	return nil
}

// Fail moves the task to failed with the given reason.
func (t *Task) Fail(reason Reason, msg string, now time.Time) error {
	if err := t.moveTo(StateFailed, now); err != nil {
		return err
	}
	t.Reason = reason
	t.Error = msg
	t.Confirmation = nil
	return nil
}

// Suspend parks a running task until tok is presented.
func (t *Task) Suspend(tok ConfirmationToken, result json.RawMessage, now time.Time) error {
	if err := t.moveTo(StateSuspended, now); err != nil {
		return err
	}
	t.Confirmation = &tok
	t.Result = result
	return nil
}

// Confirm consumes the confirmation token and resumes the task.
// A mismatch leaves the task suspended. An expired token fails the task.
func (t *Task) Confirm(value string, now time.Time) error {
	if t.State != StateSuspended {
		return fmt.Errorf("%w: task %s is %s, not suspended", domain.ErrInvalidTransition, t.ID, t.State)
	}
	if t.Confirmation == nil {
		return fmt.Errorf("%w: task %s holds no token", domain.ErrConfirmationMismatch, t.ID)
	}
	if t.Confirmation.Expired(now) {
		_ = t.Fail(ReasonConfirmationExpired, domain.ErrConfirmationExpired.Error(), now)
		return fmt.Errorf("%w: task %s", domain.ErrConfirmationExpired, t.ID)
	}
	if !t.Confirmation.Matches(value) {
		return fmt.Errorf("%w: task %s", domain.ErrConfirmationMismatch, t.ID)
	}
	t.Confirmation = nil
	return t.moveTo(StateRunning, now)
}

// ExpireIfDue fails a suspended task whose token has expired.
// Reports whether the task changed.
func (t *Task) ExpireIfDue(now time.Time) bool {
	if t.State != StateSuspended || t.Confirmation == nil || !t.Confirmation.Expired(now) {
		return false
	}
	return t.Fail(ReasonConfirmationExpired, domain.ErrConfirmationExpired.Error(), now) == nil
}

// Abort cancels a task that has not finished.
func (t *Task) Abort(now time.Time) error {
	if t.State.Terminal() {
		return fmt.Errorf("%w: task %s already %s", domain.ErrInvalidTransition, t.ID, t.State)
	}
	return t.Fail(ReasonCancelled, "cancelled", now)
}

// ExpiresAt returns the pending token's expiry, or the zero time.
func (t *Task) ExpiresAt() time.Time {
	if t.Confirmation == nil {
		return time.Time{}
	}
	return t.Confirmation.ExpiresAt()
}

// Clone returns a deep copy safe to hand to another goroutine.
func (t *Task) Clone() *Task {
	c := *t
	if t.Confirmation != nil {
		tok := *t.Confirmation
		c.Confirmation = &tok
	}
	c.Steps = append([]StepRecord(nil), t.Steps...)
	return &c
}
