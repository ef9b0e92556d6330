package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/OpsForge/internal/middleware"
	"github.com/Strob0t/OpsForge/internal/service"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *mapCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *calls)
	})
}

func post(h http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_NoHeader(t *testing.T) {
	calls := 0
	store := newMapCache()
	h := middleware.Idempotency(store, time.Hour)(countingHandler(&calls, http.StatusCreated))

	post(h, "/api/v1/deploy", "")
	post(h, "/api/v1/deploy", "")
	if calls != 2 || store.len() != 0 {
		t.Fatalf("calls=%d stored=%d", calls, store.len())
	}
}

func TestIdempotency_Replays(t *testing.T) {
	calls := 0
	store := newMapCache()
	h := middleware.Idempotency(store, time.Hour)(countingHandler(&calls, http.StatusCreated))

	first := post(h, "/api/v1/deploy", "key-1")
	second := post(h, "/api/v1/deploy", "key-1")

	if calls != 1 {
		t.Fatalf("expected handler called once, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch: %d %q vs %q", second.Code, second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" || second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected replay headers %v", second.Header())
	}
	for _, ttl := range store.ttls {
		if ttl != time.Hour {
			t.Fatalf("ttl = %v", ttl)
		}
	}
}

func TestIdempotency_KeyScopedToPath(t *testing.T) {
	calls := 0
	h := middleware.Idempotency(newMapCache(), time.Hour)(countingHandler(&calls, http.StatusOK))

	post(h, "/api/v1/deploy", "same")
	post(h, "/api/v1/rollback", "same")
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestIdempotency_KeyScopedToCaller(t *testing.T) {
	calls := 0
	h := middleware.Idempotency(newMapCache(), time.Hour)(countingHandler(&calls, http.StatusAccepted))

	postAs := func(subject string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rollback", http.NoBody)
		req.Header.Set("Idempotency-Key", "rb-key")
		req = req.WithContext(middleware.WithPrincipal(req.Context(), service.Principal{Subject: subject, Method: service.MethodJWT}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := postAs("alice")
	other := postAs("mallory")
	if other.Header().Get("Idempotent-Replayed") != "" || other.Body.String() != `{"call":2}` {
		t.Fatalf("second caller got a replay: %q", other.Body.String())
	}
	again := postAs("alice")
	if again.Header().Get("Idempotent-Replayed") != "true" || again.Body.String() != first.Body.String() {
		t.Fatalf("same caller not replayed: %q", again.Body.String())
	}
	// Anonymous requests share their own scope, apart from any principal.
	if anon := post(h, "/api/v1/rollback", "rb-key"); anon.Header().Get("Idempotent-Replayed") != "" {
		t.Fatal("anonymous caller got a principal's replay")
	}
	if calls != 3 {
		t.Fatalf("expected 3 handler calls, got %d", calls)
	}
}

func TestIdempotency_ServerErrorsNotStored(t *testing.T) {
	calls := 0
	store := newMapCache()
	h := middleware.Idempotency(store, time.Hour)(countingHandler(&calls, http.StatusBadGateway))

	post(h, "/api/v1/deploy", "key-5xx")
	post(h, "/api/v1/deploy", "key-5xx")
	if calls != 2 || store.len() != 0 {
		t.Fatalf("calls=%d stored=%d", calls, store.len())
	}
}

func TestIdempotency_GETIgnored(t *testing.T) {
	calls := 0
	store := newMapCache()
	h := middleware.Idempotency(store, time.Hour)(countingHandler(&calls, http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deployments", http.NoBody)
	req.Header.Set("Idempotency-Key", "key-get")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if calls != 1 || store.len() != 0 {
		t.Fatalf("calls=%d stored=%d", calls, store.len())
	}
}

func TestIdempotency_LookupFailureFallsThrough(t *testing.T) {
	calls := 0
	store := newMapCache()
	store.err = errors.New("kv unavailable")
	h := middleware.Idempotency(store, time.Hour)(countingHandler(&calls, http.StatusCreated))

	if rec := post(h, "/api/v1/deploy", "key-x"); rec.Code != http.StatusCreated || calls != 1 {
		t.Fatalf("code=%d calls=%d", rec.Code, calls)
	}
}
