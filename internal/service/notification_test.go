package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Strob0t/OpsForge/internal/port/notifier"
)

// mockNotifier implements notifier.Notifier for testing.
type mockNotifier struct {
	mu      sync.Mutex
	name    string
	sent    []notifier.Notification
	sendErr error
}

func (m *mockNotifier) Name() string                        { return m.name }
func (m *mockNotifier) Capabilities() notifier.Capabilities { return notifier.Capabilities{} }
func (m *mockNotifier) Send(_ context.Context, n notifier.Notification) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
	return nil
}

func (m *mockNotifier) sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, n := range m.sent {
		out = append(out, n.Source)
	}
	return out
}

func TestNotificationService_Notify(t *testing.T) {
	m1 := &mockNotifier{name: "mock1"}
	m2 := &mockNotifier{name: "mock2"}
	svc := NewNotificationService([]notifier.Notifier{m1, m2}, nil)

	svc.Notify(context.Background(), notifier.Notification{
		Title:   "Deployment applied",
		Message: "prod/web now runs web:1.2.0",
		Level:   notifier.LevelSuccess,
		Source:  SourceDeployCompleted,
	})

	if len(m1.sent) != 1 {
		t.Fatalf("expected 1 notification on mock1, got %d", len(m1.sent))
	}
	if len(m2.sent) != 1 {
		t.Fatalf("expected 1 notification on mock2, got %d", len(m2.sent))
	}
}

func TestNotificationService_FilterEvents(t *testing.T) {
	m := &mockNotifier{name: "mock"}
	svc := NewNotificationService([]notifier.Notifier{m}, []string{SourceTaskFailed})

	svc.Notify(context.Background(), notifier.Notification{Title: "Test", Source: SourceDeployCompleted})
	if len(m.sent) != 0 {
		t.Fatalf("expected 0 notifications (filtered), got %d", len(m.sent))
	}

	svc.Notify(context.Background(), notifier.Notification{Title: "Test", Source: SourceTaskFailed})
	if len(m.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(m.sent))
	}
}

func TestNotificationService_ErrorContinues(t *testing.T) {
	failer := &mockNotifier{name: "fail", sendErr: errors.New("connection refused")}
	success := &mockNotifier{name: "ok"}
	svc := NewNotificationService([]notifier.Notifier{failer, success}, nil)

	svc.Notify(context.Background(), notifier.Notification{Title: "Test", Source: SourceTaskFailed})
	if len(success.sent) != 1 {
		t.Fatalf("expected delivery to continue after a failing notifier, got %d", len(success.sent))
	}
}

func TestNotificationService_SendByChannel(t *testing.T) {
	slack := &mockNotifier{name: "slack"}
	email := &mockNotifier{name: "email"}
	svc := NewNotificationService([]notifier.Notifier{slack, email}, nil)
	ctx := context.Background()

	if err := svc.Send(ctx, "email", notifier.Notification{Title: "Incident", Source: SourceIncidentOpened}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(email.sent) != 1 || len(slack.sent) != 0 {
		t.Fatalf("expected email only, got slack=%d email=%d", len(slack.sent), len(email.sent))
	}

	if err := svc.Send(ctx, "pager", notifier.Notification{Title: "x"}); !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for unknown channel, got %v", err)
	}

	if err := svc.Send(ctx, "", notifier.Notification{Title: "all"}); err != nil {
		t.Fatalf("Send broadcast: %v", err)
	}
	if len(email.sent) != 2 || len(slack.sent) != 1 {
		t.Fatalf("empty channel should reach every notifier, got slack=%d email=%d", len(slack.sent), len(email.sent))
	}
}

func TestNotificationService_NilIsNoop(t *testing.T) {
	var svc *NotificationService
	svc.Notify(context.Background(), notifier.Notification{Title: "x"})
	if err := svc.Send(context.Background(), "slack", notifier.Notification{}); err != nil {
		t.Fatalf("nil service Send: %v", err)
	}
	if svc.NotifierCount() != 0 {
		t.Fatal("nil service has no notifiers")
	}
}
