package agenttask

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/OpsForge/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRunning(t *testing.T, kind Kind) *Task {
	t.Helper()
	task, err := New("task-1", kind, json.RawMessage(`{}`), t0)
	if err != nil {
		t.Fatal(err)
	}
	if err := task.Start(t0); err != nil {
		t.Fatal(err)
	}
	return task
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New("x", Kind("bake"), nil, t0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateQueued, StateRunning, true},
		{StateQueued, StateSucceeded, false},
		{StateRunning, StateSucceeded, true},
		{StateRunning, StateSuspended, true},
		{StateSuspended, StateRunning, true},
		{StateSuspended, StateSucceeded, false},
		{StateSucceeded, StateRunning, false},
		{StateFailed, StateRunning, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	task := newRunning(t, KindDeploy)
	if err := task.Succeed(json.RawMessage(`{"ok":true}`), t0); err != nil {
		t.Fatal(err)
	}
	if err := task.Start(t0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := task.Abort(t0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("abort of finished task: expected ErrInvalidTransition, got %v", err)
	}
}

func TestConfirmMatchingTokenResumes(t *testing.T) {
	task := newRunning(t, KindRollback)
	tok := NewConfirmationToken(5*time.Minute, t0)
	if err := task.Suspend(tok, nil, t0); err != nil {
		t.Fatal(err)
	}
	if task.ExpiresAt() != t0.Add(5*time.Minute) {
		t.Errorf("expires at = %v", task.ExpiresAt())
	}

	if err := task.Confirm(tok.Value, t0.Add(time.Minute)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if task.State != StateRunning {
		t.Fatalf("expected running, got %s", task.State)
	}
	if task.Confirmation != nil {
		t.Fatal("token must be consumed")
	}
	// Single use: a second confirm is rejected.
	if err := task.Confirm(tok.Value, t0.Add(time.Minute)); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on reuse, got %v", err)
	}
}

func TestConfirmMismatchKeepsSuspended(t *testing.T) {
	task := newRunning(t, KindRollback)
	tok := NewConfirmationToken(time.Minute, t0)
	_ = task.Suspend(tok, nil, t0)

	for _, bad := range []string{"", "nope", tok.Value + "x"} {
		if err := task.Confirm(bad, t0); !errors.Is(err, domain.ErrConfirmationMismatch) {
			t.Fatalf("value %q: expected ErrConfirmationMismatch, got %v", bad, err)
		}
	}
	if task.State != StateSuspended {
		t.Fatalf("expected suspended, got %s", task.State)
	}
}

func TestConfirmExpiredFailsTask(t *testing.T) {
	task := newRunning(t, KindRollback)
	tok := NewConfirmationToken(time.Minute, t0)
	_ = task.Suspend(tok, nil, t0)

	err := task.Confirm(tok.Value, t0.Add(time.Minute))
	if !errors.Is(err, domain.ErrConfirmationExpired) {
		t.Fatalf("expected ErrConfirmationExpired, got %v", err)
	}
	if task.State != StateFailed || task.Reason != ReasonConfirmationExpired {
		t.Fatalf("expected failed(confirmation_expired), got %s(%s)", task.State, task.Reason)
	}
}

func TestExpireIfDue(t *testing.T) {
	task := newRunning(t, KindRollback)
	_ = task.Suspend(NewConfirmationToken(time.Minute, t0), nil, t0)

	if task.ExpireIfDue(t0.Add(30 * time.Second)) {
		t.Fatal("must not expire before TTL")
	}
	if !task.ExpireIfDue(t0.Add(2 * time.Minute)) {
		t.Fatal("expected expiry after TTL")
	}
	if task.Reason != ReasonConfirmationExpired {
		t.Fatalf("reason = %s", task.Reason)
	}
	if task.ExpireIfDue(t0.Add(3 * time.Minute)) {
		t.Fatal("already failed task must not change again")
	}
}

func TestAbortSuspended(t *testing.T) {
	task := newRunning(t, KindRollback)
	_ = task.Suspend(NewConfirmationToken(time.Minute, t0), nil, t0)

	if err := task.Abort(t0); err != nil {
		t.Fatal(err)
	}
	if task.State != StateFailed || task.Reason != ReasonCancelled {
		t.Fatalf("expected failed(cancelled), got %s(%s)", task.State, task.Reason)
	}
	if task.Confirmation != nil {
		t.Fatal("abort must drop the token")
	}
}

func TestTokenUniqueness(t *testing.T) {
	a := NewConfirmationToken(time.Minute, t0)
	b := NewConfirmationToken(time.Minute, t0)
	if a.Value == b.Value || len(a.Value) != 32 {
		t.Fatalf("tokens %q and %q", a.Value, b.Value)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	task := newRunning(t, KindRollback)
	_ = task.Suspend(NewConfirmationToken(time.Minute, t0), nil, t0)
	c := task.Clone()
	c.Confirmation.Value = "changed"
	if task.Confirmation.Value == "changed" {
		t.Fatal("clone shares confirmation token")
	}
}
