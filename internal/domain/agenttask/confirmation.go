package agenttask

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// ConfirmationToken is a single-use, time-limited credential gating a destructive action.
type ConfirmationToken struct {
	Value    string        `json:"value"`
	IssuedAt time.Time     `json:"issued_at"`
	TTL      time.Duration `json:"ttl"`
}

// NewConfirmationToken issues a random token valid for ttl from now.
func NewConfirmationToken(ttl time.Duration, now time.Time) ConfirmationToken {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return ConfirmationToken{Value: hex.EncodeToString(b), IssuedAt: now, TTL: ttl}
}

// ExpiresAt returns the instant after which the token is no longer accepted.
func (c ConfirmationToken) ExpiresAt() time.Time { return c.IssuedAt.Add(c.TTL) }

// Expired reports whether the TTL has elapsed at now.
func (c ConfirmationToken) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt()) }

// Matches compares value in constant time.
func (c ConfirmationToken) Matches(value string) bool {
	return value != "" && subtle.ConstantTimeCompare([]byte(c.Value), []byte(value)) == 1
}
