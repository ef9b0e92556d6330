package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/OpsForge/internal/port/notifier"
)

var _ notifier.Notifier = (*Notifier)(nil)

func TestSendNotConfigured(t *testing.T) {
	n := NewNotifier("")
	err := n.Send(context.Background(), notifier.Notification{Title: "test"})
	if err != notifier.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendEmbed(t *testing.T) {
	var got webhook
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	err := n.Send(context.Background(), notifier.Notification{
		Title:   "Security scan",
		Message: "2 high findings",
		Level:   notifier.LevelError,
		Source:  "security.high_risk",
		Fields:  map[string]string{"risk": "high", "deployment": "default/api"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Color != 0xE74C3C {
		t.Errorf("expected error color, got %#x", e.Color)
	}
	if e.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected timestamp %q", e.Timestamp)
	}
	if len(e.Fields) != 2 || e.Fields[0].Name != "deployment" {
		t.Errorf("unexpected fields %+v", e.Fields)
	}
	if e.Footer == nil || e.Footer.Text != "Source: security.high_risk" {
		t.Errorf("unexpected footer %+v", e.Footer)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	if err := n.Send(context.Background(), notifier.Notification{Title: "x"}); err == nil {
		t.Fatal("expected error for 429 response")
	}
}
