package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/service"
)

type principalCtxKey struct{}

// publicPaths skip authentication. Webhooks carry their own signature.
var publicPaths = map[string]bool{
	"/health":                 true,
	"/api/v1/webhooks/github": true,
}

// anonymous is injected when authentication is disabled.
var anonymous = service.Principal{Subject: "anonymous", Method: "none"}

// Auth authenticates requests with an X-API-Key header or an
// Authorization: Bearer credential. WebSocket upgrades on /ws pass the
// credential as ?token= since browsers cannot set headers on them.
func Auth(svc *service.AuthService, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), anonymous)))
				return
			}
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			cred, ok := credential(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "authorization required")
				return
			}
			p, err := svc.Authenticate(cred)
			if err != nil {
				if !errors.Is(err, domain.ErrUnauthorized) {
					slog.ErrorContext(r.Context(), "authentication failed", "error", err)
				}
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func credential(r *http.Request) (string, bool) {
	if r.URL.Path == "/ws" {
		if tok := r.URL.Query().Get("token"); tok != "" {
			return tok, true
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, true
	}
	h := r.Header.Get("Authorization")
	tok, found := strings.CutPrefix(h, "Bearer ")
	if !found || strings.TrimSpace(tok) == "" {
		return "", false
	}
	return tok, true
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p service.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (service.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(service.Principal)
	return p, ok
}
