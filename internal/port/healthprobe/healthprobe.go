// Package healthprobe defines the measurement interface used by the monitor workflow.
package healthprobe

import (
	"context"
	"time"
)

// Target identifies what to measure.
type Target struct {
	DeploymentID string
	URL          string
}

// Sample is one health measurement.
type Sample struct {
	Healthy    bool      `json:"healthy"`
	StatusCode int       `json:"status_code,omitempty"`
	LatencyMS  int64     `json:"latency_ms"`
	ErrorRate  float64   `json:"error_rate"`
	SampledAt  time.Time `json:"sampled_at"`
}

// Prober takes a single health sample. A measurement that could not be
// taken is an error, not an unhealthy sample.
type Prober interface {
	Probe(ctx context.Context, target Target) (Sample, error)
}
