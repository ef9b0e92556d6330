package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
)

const (
	// HeaderGitHubSignature carries the HMAC-SHA256 of a GitHub delivery.
	HeaderGitHubSignature = "X-Hub-Signature-256"

	maxWebhookBody = 5 << 20
)

// WebhookHMAC verifies an HMAC-SHA256 body signature in header before the
// delivery reaches next. The body is restored for the handler.
func WebhookHMAC(secret, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusServiceUnavailable, "webhook secret not configured")
				return
			}

			sig := r.Header.Get(header)
			if sig == "" {
				writeError(w, http.StatusUnauthorized, "missing webhook signature")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			if len(body) > maxWebhookBody {
				writeError(w, http.StatusRequestEntityTooLarge, "webhook payload too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifyHMAC(body, sig, secret) {
				writeError(w, http.StatusForbidden, "invalid webhook signature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// verifyHMAC accepts raw hex or the "sha256=<hex>" form GitHub sends.
func verifyHMAC(payload []byte, signature, secret string) bool {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	return hmac.Equal(sig, SignPayload(payload, secret))
}

// SignPayload returns the HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
