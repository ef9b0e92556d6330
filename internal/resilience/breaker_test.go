package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Strob0t/OpsForge/internal/domain"
)

var errUnavailable = fmt.Errorf("%w: cluster api unavailable", domain.ErrUpstream)

func TestBreakerClosedAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)
	for range 3 {
		_ = b.Execute(func() error { return errUnavailable })
	}

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
}

func TestBreakerIgnoresPermanentErrors(t *testing.T) {
	b := NewBreaker(2, time.Second)
	for range 5 {
		err := b.Execute(func() error { return domain.ErrNotFound })
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound passthrough, got %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("not-found must not trip the breaker, state %s", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Execute(func() error { return errUnavailable })
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open after timeout, got %s", b.State())
	}

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("expected probe to pass, got %v", err)
	}
	if !called {
		t.Fatal("expected probe fn to run")
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Execute(func() error { return errUnavailable })
	}
	now = now.Add(2 * time.Second)

	_ = b.Execute(func() error { return errUnavailable })
	if b.State() != StateOpen {
		t.Fatalf("expected open after failed probe, got %s", b.State())
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after reopen, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	_ = b.Execute(func() error { return errUnavailable })
	_ = b.Execute(func() error { return errUnavailable })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errUnavailable })
	_ = b.Execute(func() error { return errUnavailable })

	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestBreakerCustomTripFilter(t *testing.T) {
	b := NewBreaker(1, time.Second)
	b.SetTripFilter(func(error) bool { return true })

	_ = b.Execute(func() error { return domain.ErrNotFound })
	if b.State() != StateOpen {
		t.Fatalf("custom filter should count every error, got %s", b.State())
	}
}
