package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/OpsForge/internal/config"
	"github.com/Strob0t/OpsForge/internal/domain"
)

const testAPIToken = "ops-token-0123456789abcdef"

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	hash, err := HashToken(testAPIToken)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return NewAuthService(config.Auth{Enabled: true, TokenHash: hash, JWTSecret: "test-secret-at-least-32-bytes-long!!"})
}

func TestAuthService_APIToken(t *testing.T) {
	svc := newTestAuth(t)

	p, err := svc.Authenticate(testAPIToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Method != MethodAPIToken {
		t.Fatalf("method = %q", p.Method)
	}

	for _, bad := range []string{"", "   ", "wrong-token-0123456789"} {
		if _, err := svc.Authenticate(bad); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%q: expected ErrUnauthorized, got %v", bad, err)
		}
	}
}

func TestAuthService_BearerToken(t *testing.T) {
	svc := newTestAuth(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	tok, err := svc.IssueToken("ci-pipeline", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	p, err := svc.Authenticate(tok)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Subject != "ci-pipeline" || p.Method != MethodJWT {
		t.Fatalf("unexpected principal %+v", p)
	}

	parts := strings.Split(tok, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := svc.Authenticate(tampered); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("tampered: expected ErrUnauthorized, got %v", err)
	}

	other := NewAuthService(config.Auth{JWTSecret: "another-secret-another-secret-xx"})
	if _, err := other.Authenticate(tok); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("foreign secret: expected ErrUnauthorized, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := svc.Authenticate(tok); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestAuthService_IssueTokenRequiresSecret(t *testing.T) {
	svc := NewAuthService(config.Auth{})
	if _, err := svc.IssueToken("ci", time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
	if _, err := newTestAuth(t).IssueToken("", time.Hour); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestHashTokenRejectsShortTokens(t *testing.T) {
	if _, err := HashToken("short"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
