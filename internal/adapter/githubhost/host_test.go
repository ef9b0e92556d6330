package githubhost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/OpsForge/internal/domain"
)

func newTestHost(t *testing.T, h http.Handler) *Host {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	host, err := New("test-token", srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return host
}

func TestGetDiff(t *testing.T) {
	host := newTestHost(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/api/pulls/7" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github.v3.diff" {
			t.Errorf("unexpected accept %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth %q", got)
		}
		_, _ = w.Write([]byte("diff --git a/main.go b/main.go\n"))
	}))

	diff, err := host.GetDiff(context.Background(), "acme", "api", 7)
	if err != nil {
		t.Fatalf("GetDiff: %v", err)
	}
	if diff != "diff --git a/main.go b/main.go\n" {
		t.Fatalf("unexpected diff %q", diff)
	}
}

func TestGetFileContent(t *testing.T) {
	host := newTestHost(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/api/contents/pkg/util.go" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"file","encoding":"base64","path":"pkg/util.go","content":"cGFja2FnZSBwa2cK"}`))
	}))

	content, err := host.GetFileContent(context.Background(), "acme", "api", "pkg/util.go")
	if err != nil {
		t.Fatalf("GetFileContent: %v", err)
	}
	if content != "package pkg\n" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestGetFileContent_NotFound(t *testing.T) {
	host := newTestHost(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))

	_, err := host.GetFileContent(context.Background(), "acme", "api", "missing.go")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostComment(t *testing.T) {
	var body string
	host := newTestHost(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/api/issues/7/comments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var in struct {
			Body string `json:"body"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		body = in.Body
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))

	if err := host.PostComment(context.Background(), "acme", "api", 7, "LGTM"); err != nil {
		t.Fatalf("PostComment: %v", err)
	}
	if body != "LGTM" {
		t.Fatalf("server saw body %q", body)
	}
}

func TestServerErrorIsUpstream(t *testing.T) {
	host := newTestHost(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := host.GetDiff(context.Background(), "acme", "api", 1)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}
