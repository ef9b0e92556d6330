package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	ofotel "github.com/Strob0t/OpsForge/internal/adapter/otel"
	"github.com/Strob0t/OpsForge/internal/adapter/ws"
	"github.com/Strob0t/OpsForge/internal/domain/deployment"
	"github.com/Strob0t/OpsForge/internal/domain/event"
	"github.com/Strob0t/OpsForge/internal/port/broadcast"
	"github.com/Strob0t/OpsForge/internal/port/cache"
	"github.com/Strob0t/OpsForge/internal/port/eventlog"
	"github.com/Strob0t/OpsForge/internal/port/lease"
	"github.com/Strob0t/OpsForge/internal/port/orchestrator"
	"github.com/Strob0t/OpsForge/internal/resilience"
)

// DeploymentService is the deployment lifecycle controller. Every mutation of
// a deployment runs under that deployment's exclusive lease.
type DeploymentService struct {
	orch      orchestrator.Client
	leaser    lease.Leaser
	mode      lease.Mode
	policy    resilience.Policy
	events    eventlog.Log
	hub       broadcast.Broadcaster
	cache     cache.Cache
	statusTTL time.Duration
	metrics   *ofotel.Metrics
}

// NewDeploymentService creates a DeploymentService.
func NewDeploymentService(orch orchestrator.Client, leaser lease.Leaser, mode lease.Mode, policy resilience.Policy, events eventlog.Log) *DeploymentService {
	return &DeploymentService{
		orch:   orch,
		leaser: leaser,
		mode:   mode,
		policy: policy,
		events: events,
	}
}

// SetHub attaches the real-time broadcaster.
func (s *DeploymentService) SetHub(h broadcast.Broadcaster) { s.hub = h }

// SetStatusCache enables caching of Status snapshots for ttl.
func (s *DeploymentService) SetStatusCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.statusTTL = ttl
}

// SetMetrics attaches otel instruments.
func (s *DeploymentService) SetMetrics(m *ofotel.Metrics) { s.metrics = m }

// Deploy converges the deployment to req.Image and req.Replicas. A deployment
// that already matches is returned without a mutating call.
func (s *DeploymentService) Deploy(ctx context.Context, req deployment.DeployRequest) (_ deployment.DeployResult, err error) {
	if err := req.Validate(); err != nil {
		return deployment.DeployResult{}, err
	}
	key := deployment.Key(req.Namespace, req.Name)
	ctx, span := ofotel.StartMutationSpan(ctx, "deploy", key)
	defer func() { ofotel.EndSpan(span, err) }()

	var changed bool
	d, err := withLease(ctx, s.leaser, s.mode, key, func(ctx context.Context) (*deployment.Deployment, error) {
		cur, err := s.get(ctx, req.Name, req.Namespace)
		if err == nil && cur.Matches(req.Image, req.Replicas) {
			return cur, nil
		}
		if err != nil && !isNotFound(err) {
			return nil, err
		}
		changed = true
		return resilience.RetryOnConflict(ctx, s.policy, "deploy "+key, func() (*deployment.Deployment, error) {
			return s.orch.CreateOrUpdate(ctx, req.Name, req.Namespace, req.Image, req.Replicas)
		})
	})
	if err != nil {
		s.metrics.Mutation(ctx, "deploy", "error")
		return deployment.DeployResult{}, fmt.Errorf("deploy %s: %w", key, err)
	}

	res := deployment.DeployResult{
		DeploymentID: key,
		Status:       deployment.ResultDeployed,
		Replicas:     req.Replicas,
		Image:        req.Image,
		Namespace:    req.Namespace,
	}

	if !changed {
		s.metrics.Mutation(ctx, "deploy", "unchanged")
		s.record(ctx, key, event.TypeDeployUnchanged, "deployment already at desired state", res)
		return res, nil
	}

	s.metrics.Mutation(ctx, "deploy", "ok")
	s.invalidate(ctx, key)
	s.record(ctx, key, event.TypeDeployApplied, "deployment applied", res)
	s.announce(ctx, ws.DeploymentEvent{DeploymentID: key, Action: deployment.ResultDeployed, Image: d.Image, Replicas: d.Replicas})
	slog.InfoContext(ctx, "deployment applied", "deployment", key, "image", req.Image, "replicas", req.Replicas)
	return res, nil
}

// Status returns the replica counts and conditions of a deployment.
func (s *DeploymentService) Status(ctx context.Context, name, namespace string) (deployment.Snapshot, error) {
	if err := deployment.ValidateName(namespace, name); err != nil {
		return deployment.Snapshot{}, err
	}
	key := deployment.Key(namespace, name)

	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, statusKey(key)); err != nil {
			slog.WarnContext(ctx, "status cache read failed", "deployment", key, "error", err)
		} else if ok {
			var snap deployment.Snapshot
			if err := json.Unmarshal(data, &snap); err == nil {
				return snap, nil
			}
		}
	}

	d, err := s.get(ctx, name, namespace)
	if err != nil {
		return deployment.Snapshot{}, fmt.Errorf("status %s: %w", key, err)
	}
	snap := deployment.SnapshotOf(d)

	if s.cache != nil {
		if data, err := json.Marshal(snap); err == nil {
			if err := s.cache.Set(ctx, statusKey(key), data, s.statusTTL); err != nil {
				slog.WarnContext(ctx, "status cache write failed", "deployment", key, "error", err)
			}
		}
	}
	return snap, nil
}

// Scale changes only the replica count.
func (s *DeploymentService) Scale(ctx context.Context, name, namespace string, replicas int32) (_ deployment.ScaleResult, err error) {
	if err := deployment.ValidateName(namespace, name); err != nil {
		return deployment.ScaleResult{}, err
	}
	if err := deployment.ValidateReplicas(replicas); err != nil {
		return deployment.ScaleResult{}, err
	}
	key := deployment.Key(namespace, name)
	ctx, span := ofotel.StartMutationSpan(ctx, "scale", key)
	defer func() { ofotel.EndSpan(span, err) }()

	d, err := withLease(ctx, s.leaser, s.mode, key, func(ctx context.Context) (*deployment.Deployment, error) {
		return resilience.RetryOnConflict(ctx, s.policy, "scale "+key, func() (*deployment.Deployment, error) {
			return s.orch.PatchReplicas(ctx, name, namespace, replicas)
		})
	})
	if err != nil {
		s.metrics.Mutation(ctx, "scale", "error")
		return deployment.ScaleResult{}, fmt.Errorf("scale %s: %w", key, err)
	}

	res := deployment.ScaleResult{DeploymentID: key, Status: deployment.ResultScaled, Replicas: d.Replicas}
	s.metrics.Mutation(ctx, "scale", "ok")
	s.invalidate(ctx, key)
	s.record(ctx, key, event.TypeDeployScaled, fmt.Sprintf("scaled to %d replicas", d.Replicas), res)
	s.announce(ctx, ws.DeploymentEvent{DeploymentID: key, Action: deployment.ResultScaled, Replicas: d.Replicas})
	return res, nil
}

// Rollback reverts the deployment to its second-most-recent revision.
func (s *DeploymentService) Rollback(ctx context.Context, name, namespace string) (_ deployment.RollbackResult, err error) {
	if err := deployment.ValidateName(namespace, name); err != nil {
		return deployment.RollbackResult{}, err
	}
	key := deployment.Key(namespace, name)
	ctx, span := ofotel.StartMutationSpan(ctx, "rollback", key)
	defer func() { ofotel.EndSpan(span, err) }()

	plan, err := withLease(ctx, s.leaser, s.mode, key, func(ctx context.Context) (deployment.RollbackPlan, error) {
		revs, err := resilience.RetryTransient(ctx, s.policy, "list revisions "+key, func() ([]deployment.Revision, error) {
			return s.orch.ListRevisions(ctx, name, namespace)
		})
		if err != nil {
			return deployment.RollbackPlan{}, err
		}
		plan, err := deployment.SelectRollbackTarget(revs)
		if err != nil {
			return deployment.RollbackPlan{}, err
		}
		_, err = resilience.RetryOnConflict(ctx, s.policy, "rollback "+key, func() (*deployment.Deployment, error) {
			return s.orch.PatchImage(ctx, name, namespace, plan.TargetImage)
		})
		return plan, err
	})
	if err != nil {
		s.metrics.Mutation(ctx, "rollback", "error")
		return deployment.RollbackResult{}, fmt.Errorf("rollback %s: %w", key, err)
	}

	res := plan.Result(key)
	s.metrics.Mutation(ctx, "rollback", "ok")
	s.invalidate(ctx, key)
	s.record(ctx, key, event.TypeDeployRolledBack,
		fmt.Sprintf("rolling back from %s to revision %d", plan.PreviousImage, plan.Target.Number), res)
	s.announce(ctx, ws.DeploymentEvent{DeploymentID: key, Action: deployment.ResultRollingBack, Image: plan.TargetImage})
	slog.InfoContext(ctx, "deployment rolling back",
		"deployment", key, "from", plan.PreviousImage, "to", plan.TargetImage, "revision", plan.Target.Number)
	return res, nil
}

// List returns deployments managed by OpsForge in namespace ("" = all).
func (s *DeploymentService) List(ctx context.Context, namespace string) ([]deployment.Snapshot, error) {
	ds, err := resilience.RetryTransient(ctx, s.policy, "list deployments", func() ([]deployment.Deployment, error) {
		return s.orch.ListManaged(ctx, namespace)
	})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	out := make([]deployment.Snapshot, 0, len(ds))
	for i := range ds {
		out = append(out, deployment.SnapshotOf(&ds[i]))
	}
	return out, nil
}

func (s *DeploymentService) get(ctx context.Context, name, namespace string) (*deployment.Deployment, error) {
	return resilience.RetryTransient(ctx, s.policy, "get "+deployment.Key(namespace, name), func() (*deployment.Deployment, error) {
		return s.orch.Get(ctx, name, namespace)
	})
}

func statusKey(id string) string { return "status:" + id }

func (s *DeploymentService) invalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statusKey(key)); err != nil {
		slog.WarnContext(ctx, "status cache invalidation failed", "deployment", key, "error", err)
	}
}

func (s *DeploymentService) record(ctx context.Context, subject string, typ event.Type, msg string, payload any) {
	appendEvent(ctx, s.events, &event.Event{Subject: subject, Type: typ, Message: msg}, payload)
}

func (s *DeploymentService) announce(ctx context.Context, ev ws.DeploymentEvent) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, broadcast.EventDeployment, ev)
	}
}
