// Package httpprobe implements healthprobe.Prober with plain HTTP GET requests
// against a service's health endpoint.
package httpprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/port/healthprobe"
)

const (
	defaultSamples = 3
	defaultTimeout = 5 * time.Second
)

// Prober sends a short burst of GET requests and summarizes them into one Sample.
type Prober struct {
	client  *http.Client
	samples int
	now     func() time.Time
}

var _ healthprobe.Prober = (*Prober)(nil)

// New creates a Prober. samples <= 0 uses 3 requests per cycle; a nil client
// gets a 5s timeout.
func New(client *http.Client, samples int) *Prober {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if samples <= 0 {
		samples = defaultSamples
	}
	return &Prober{client: client, samples: samples, now: time.Now}
}

// Probe measures target.URL. A response with status >= 500 counts as an
// error; a transport failure on every request means no measurement was taken.
func (p *Prober) Probe(ctx context.Context, target healthprobe.Target) (healthprobe.Sample, error) {
	if target.URL == "" {
		return healthprobe.Sample{}, fmt.Errorf("%w: no health url for %s", domain.ErrValidation, target.DeploymentID)
	}

	var (
		failures   int
		reached    int
		lastStatus int
		total      time.Duration
		lastErr    error
	)
	for range p.samples {
		status, d, err := p.once(ctx, target.URL)
		if err != nil {
			if ctx.Err() != nil {
				return healthprobe.Sample{}, fmt.Errorf("%w: probe %s: %w", domain.ErrTimeout, target.URL, ctx.Err())
			}
			lastErr = err
			failures++
			continue
		}
		reached++
		total += d
		lastStatus = status
		if status >= http.StatusInternalServerError {
			failures++
		}
	}

	if reached == 0 {
		return healthprobe.Sample{}, fmt.Errorf("%w: probe %s: %w", domain.ErrUpstream, target.URL, lastErr)
	}

	errRate := float64(failures) / float64(p.samples)
	return healthprobe.Sample{
		Healthy:    failures == 0,
		StatusCode: lastStatus,
		LatencyMS:  (total / time.Duration(reached)).Milliseconds(),
		ErrorRate:  errRate,
		SampledAt:  p.now().UTC(),
	}, nil
}

func (p *Prober) once(ctx context.Context, url string) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, 0, errors.Join(domain.ErrValidation, err)
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return resp.StatusCode, time.Since(start), nil
}
