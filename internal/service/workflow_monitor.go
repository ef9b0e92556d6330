package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/domain/analysis"
	"github.com/Strob0t/OpsForge/internal/domain/deployment"
	"github.com/Strob0t/OpsForge/internal/port/healthprobe"
	"github.com/Strob0t/OpsForge/internal/port/notifier"
)

// Health statuses reported by the monitor workflow.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthPending  = "pending"
	HealthUnknown  = "unknown"
)

var errNoProbeURL = errors.New("no service url to probe")

// MonitorSnapshot is the result of one monitor sampling cycle.
type MonitorSnapshot struct {
	DeploymentID      string            `json:"deployment_id"`
	HealthStatus      string            `json:"health_status"`
	Status            deployment.Status `json:"status"`
	Replicas          int32             `json:"replicas"`
	ReadyReplicas     int32             `json:"ready_replicas"`
	AvailableReplicas int32             `json:"available_replicas"`
	LatencyMS         int64             `json:"latency_ms"`
	ErrorRate         float64           `json:"error_rate"`
	StatusCode        int               `json:"status_code,omitempty"`
	Probed            bool              `json:"probed"`
	ProbeError        string            `json:"probe_error,omitempty"`
	SampledAt         time.Time         `json:"sampled_at"`
}

func (p *PipelineService) planMonitor(x *execution) (*plan, error) {
	var in MonitorInput
	if err := decodeInput(x.task.Input, &in); err != nil {
		return nil, err
	}
	ns, name, err := deployment.ParseID(in.DeploymentID, p.defaultNS)
	if err != nil {
		return nil, err
	}
	id := deployment.Key(ns, name)
	url := in.ServiceURL
	if url == "" {
		url = p.healthURL(name, ns)
	}

	res := &MonitorSnapshot{DeploymentID: id, HealthStatus: HealthUnknown}

	return &plan{
		steps: []Step{
			fetchStep("fetch_status", func(ctx context.Context) error {
				snap, err := p.deployments.Status(ctx, name, ns)
				if err != nil {
					return err
				}
				res.Status = snap.Status
				res.Replicas = snap.Replicas
				res.ReadyReplicas = snap.ReadyReplicas
				res.AvailableReplicas = snap.AvailableReplicas
				return nil
			}),
			{
				Name:   "probe",
				Kind:   agenttask.StepAct,
				Absorb: true,
				Run: func(ctx context.Context) error {
					res.SampledAt = p.now().UTC()
					if url == "" || p.prober == nil {
						res.ProbeError = errNoProbeURL.Error()
						return nil
					}
					s, err := p.prober.Probe(ctx, healthprobe.Target{DeploymentID: id, URL: url})
					if err != nil {
						res.ProbeError = err.Error()
						return err
					}
					res.Probed = true
					res.LatencyMS = s.LatencyMS
					res.ErrorRate = s.ErrorRate
					res.StatusCode = s.StatusCode
					res.SampledAt = s.SampledAt
					return nil
				},
			},
			analyzeStep("assess", func(context.Context) error {
				res.HealthStatus = assessHealth(res)
				return nil
			}),
			notifyStep("notify_unhealthy", func(ctx context.Context) error {
				if res.HealthStatus != HealthDegraded {
					return nil
				}
				p.notifier.Notify(ctx, notifier.Notification{
					Title: "Deployment degraded: " + id,
					Message: fmt.Sprintf("%d/%d replicas available, error rate %.0f%%, response time %dms",
						res.AvailableReplicas, res.Replicas, res.ErrorRate*100, res.LatencyMS),
					Level:  notifier.LevelWarning,
					Source: SourceMonitorUnhealthy,
				})
				return nil
			}),
		},
		result: func() any { return res },
	}, nil
}

// assessHealth combines the replica status with the probe sample.
func assessHealth(s *MonitorSnapshot) string {
	switch {
	case s.Status == deployment.StatusPending:
		return HealthPending
	case s.Status == deployment.StatusDegraded:
		return HealthDegraded
	case s.Probed && s.ErrorRate > 0:
		return HealthDegraded
	case s.Probed:
		return HealthHealthy
	case s.Replicas == 0:
		return HealthHealthy
	default:
		return HealthUnknown
	}
}

// CostResult is the result of a cost task.
type CostResult struct {
	DeploymentID string `json:"deployment_id"`
	Replicas     int32  `json:"replicas"`
	Image        string `json:"image"`
	analysis.CostReport
	Structured  bool   `json:"structured"`
	RawAnalysis string `json:"raw_analysis,omitempty"`
}

func (p *PipelineService) planCost(x *execution) (*plan, error) {
	var in CostInput
	if err := decodeInput(x.task.Input, &in); err != nil {
		return nil, err
	}
	ns, name, err := deployment.ParseID(in.DeploymentID, p.defaultNS)
	if err != nil {
		return nil, err
	}
	id := deployment.Key(ns, name)

	res := &CostResult{DeploymentID: id, CostReport: analysis.CostReport{Recommendations: []string{}}}
	var snap deployment.Snapshot

	return &plan{
		steps: []Step{
			fetchStep("fetch_status", func(ctx context.Context) error {
				s, err := p.deployments.Status(ctx, name, ns)
				snap = s
				res.Replicas = s.Replicas
				res.Image = s.Image
				return err
			}),
			analyzeStep("cost_analysis", func(ctx context.Context) error {
				prompt, err := render("cost", struct {
					DeploymentID, Image, CPURequest, MemoryRequest string
					Replicas, AvailableReplicas                   int32
				}{id, snap.Image, deployment.CPURequest, deployment.MemoryRequest, snap.Replicas, snap.AvailableReplicas})
				if err != nil {
					return err
				}
				text, err := p.complete(ctx, in.Model, prompt)
				if err != nil {
					return err
				}
				out := analysis.Parse[analysis.CostReport](text)
				if report, ok := out.Value(); ok {
					res.CostReport = report
					res.Structured = true
				} else {
					res.Summary = "The cost analysis could not be decoded; see raw_analysis."
					res.RawAnalysis = out.Raw()
				}
				if res.Recommendations == nil {
					res.Recommendations = []string{}
				}
				return nil
			}),
		},
		result: func() any { return res },
	}, nil
}
