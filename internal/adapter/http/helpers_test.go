package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/OpsForge/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: replicas must be >= 0", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("get prod/api: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrConfirmationMismatch, http.StatusConflict},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrConfirmationExpired, http.StatusGone},
		{domain.ErrNoPreviousRevision, http.StatusUnprocessableEntity},
		{domain.ErrRevisionImageMissing, http.StatusUnprocessableEntity},
		{domain.ErrNoFilesAvailable, http.StatusUnprocessableEntity},
		{fmt.Errorf("kubernetes: %w", domain.ErrUpstream), http.StatusBadGateway},
		{domain.ErrTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteDomainErrorHidesServerDetailsInProduction(t *testing.T) {
	err := fmt.Errorf("dial tcp 10.0.0.7:6443: %w", domain.ErrUpstream)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deployments", http.NoBody)

	for _, production := range []bool{false, true} {
		rec := httptest.NewRecorder()
		(&Handlers{production: production}).writeDomainError(rec, req, err)

		var body errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		leaked := body.Error == err.Error()
		if production == leaked || body.Timestamp == "" {
			t.Fatalf("production=%v: body %+v", production, body)
		}
	}
}

func TestWriteDomainErrorStripsValidationPrefix(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deploy", http.NoBody)
	(&Handlers{production: true}).writeDomainError(rec, req, fmt.Errorf("%w: image is required", domain.ErrValidation))

	var body errorResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != http.StatusBadRequest || body.Error != "image is required" {
		t.Fatalf("code=%d body=%+v", rec.Code, body)
	}
}
