package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/domain/deployment"
	"github.com/Strob0t/OpsForge/internal/logger"
	"github.com/Strob0t/OpsForge/internal/port/messagequeue"
	"github.com/Strob0t/OpsForge/internal/port/notifier"
)

// DeployTaskResult is the result of a deploy task.
type DeployTaskResult struct {
	deployment.DeployResult
	Environment      string `json:"environment"`
	DeploymentURL    string `json:"deployment_url,omitempty"`
	MonitorScheduled bool   `json:"monitor_scheduled"`
}

func (p *PipelineService) planDeploy(x *execution) (*plan, error) {
	var in DeployInput
	if err := decodeInput(x.task.Input, &in); err != nil {
		return nil, err
	}
	req, err := in.Request()
	if err != nil {
		return nil, err
	}
	env := in.Environment
	if env == "" {
		env = EnvStaging
	}
	serviceURL := in.ServiceURL
	if serviceURL == "" {
		serviceURL = p.healthURL(req.Name, req.Namespace)
	}

	res := &DeployTaskResult{Environment: env, DeploymentURL: serviceURL}
	taskID := x.task.ID

	return &plan{
		steps: []Step{
			actStep("deploy", func(ctx context.Context) error {
				r, err := p.deployments.Deploy(ctx, req)
				res.DeployResult = r
				return err
			}),
			{
				Name:   "schedule_monitor",
				Kind:   agenttask.StepAct,
				Absorb: true,
				Run: func(ctx context.Context) error {
					if err := p.scheduleMonitor(ctx, taskID, res.DeploymentID, serviceURL); err != nil {
						return err
					}
					res.MonitorScheduled = true
					return nil
				},
			},
			notifyStep("notify", func(ctx context.Context) error {
				p.notifier.Notify(ctx, notifier.Notification{
					Title:   "Deployment applied: " + res.DeploymentID,
					Message: fmt.Sprintf("%s running %s with %d replicas", res.DeploymentID, res.Image, res.Replicas),
					Level:   notifier.LevelSuccess,
					Source:  SourceDeployCompleted,
					Fields:  map[string]string{"environment": env, "task_id": taskID},
				})
				return nil
			}),
		},
		result: func() any { return res },
	}, nil
}

// scheduleMonitor starts the dependent monitor task without waiting for it.
func (p *PipelineService) scheduleMonitor(ctx context.Context, parentID, deploymentID, serviceURL string) error {
	if p.queue != nil {
		payload := mustJSON(messagequeue.MonitorRequestPayload{
			ParentTaskID: parentID,
			DeploymentID: deploymentID,
			ServiceURL:   serviceURL,
			RequestID:    logger.RequestID(ctx),
		})
		if err := p.queue.Publish(ctx, messagequeue.SubjectTaskMonitor, payload); err != nil {
			return fmt.Errorf("publish monitor request: %w", err)
		}
		return nil
	}
	input := mustJSON(MonitorInput{DeploymentID: deploymentID, ServiceURL: serviceURL})
	_, err := p.Submit(ctx, agenttask.KindMonitor, input, parentID)
	return err
}

// healthURL expands the configured health URL pattern, or returns "".
func (p *PipelineService) healthURL(name, namespace string) string {
	if p.cfg.HealthURLPattern == "" {
		return ""
	}
	return strings.NewReplacer("{name}", name, "{namespace}", namespace).Replace(p.cfg.HealthURLPattern)
}

// RollbackTaskResult is the result of a rollback task. While the task is
// suspended only the confirmation fields are set.
type RollbackTaskResult struct {
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
	Message              string `json:"message,omitempty"`
	RollbackID           string `json:"rollback_id,omitempty"`
	DeploymentID         string `json:"deployment_id"`
	Status               string `json:"status,omitempty"`
	PreviousVersion      string `json:"previous_version,omitempty"`
	TargetRevision       int64  `json:"target_revision,omitempty"`
	Strategy             string `json:"rollback_strategy,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

func (p *PipelineService) planRollback(x *execution) (*plan, error) {
	var in RollbackInput
	if err := decodeInput(x.task.Input, &in); err != nil {
		return nil, err
	}
	ns, name, err := deployment.ParseID(in.DeploymentID, p.defaultNS)
	if err != nil {
		return nil, err
	}
	id := deployment.Key(ns, name)
	strategy := in.Strategy
	if strategy == "" {
		strategy = "previous_revision"
	}

	res := &RollbackTaskResult{DeploymentID: id, Strategy: strategy, Reason: in.Reason}

	return &plan{
		steps: []Step{
			actStep("confirmation_gate", func(context.Context) error {
				if !in.ConfirmationRequired || x.resumed {
					res.RequiresConfirmation = false
					res.Message = ""
					return nil
				}
				res.RequiresConfirmation = true
				res.Message = fmt.Sprintf("Confirm rollback of %s to its previous revision.", id)
				return errAwaitConfirmation
			}),
			actStep("rollback", func(ctx context.Context) error {
				r, err := p.deployments.Rollback(ctx, name, ns)
				if err != nil {
					return err
				}
				res.RollbackID = uuid.NewString()
				res.Status = r.Status
				res.PreviousVersion = r.PreviousImage
				res.TargetRevision = r.TargetRevision
				return nil
			}),
			notifyStep("notify", func(ctx context.Context) error {
				p.notifier.Notify(ctx, notifier.Notification{
					Title:   "Rollback started: " + id,
					Message: fmt.Sprintf("%s is rolling back to %s (revision %d)", id, res.PreviousVersion, res.TargetRevision),
					Level:   notifier.LevelWarning,
					Source:  SourceRollbackCompleted,
					Fields:  map[string]string{"reason": in.Reason, "strategy": strategy},
				})
				return nil
			}),
		},
		result: func() any { return res },
	}, nil
}

// IncidentResult is the result of an incident task.
type IncidentResult struct {
	IncidentID   string   `json:"incident_id"`
	DeploymentID string   `json:"deployment_id"`
	IncidentType string   `json:"incident_type"`
	Severity     string   `json:"severity"`
	Status       string   `json:"status"`
	ActionsTaken []string `json:"actions_taken"`
	ScaledTo     *int32   `json:"scaled_to,omitempty"`
	OnCallNotice bool     `json:"on_call_notified"`
}

// maxIncidentReplicas caps automatic scale-up during remediation.
const maxIncidentReplicas = 20

func (p *PipelineService) planIncident(x *execution) (*plan, error) {
	var in IncidentInput
	if err := decodeInput(x.task.Input, &in); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	ns, name, err := deployment.ParseID(in.DeploymentID, p.defaultNS)
	if err != nil {
		return nil, err
	}
	id := deployment.Key(ns, name)

	res := &IncidentResult{
		IncidentID:   uuid.NewString(),
		DeploymentID: id,
		IncidentType: in.IncidentType,
		Severity:     in.Severity,
		Status:       "responding",
		ActionsTaken: []string{},
	}
	var snap deployment.Snapshot

	return &plan{
		steps: []Step{
			fetchStep("fetch_status", func(ctx context.Context) error {
				s, err := p.deployments.Status(ctx, name, ns)
				snap = s
				return err
			}),
			actStep("remediate", func(ctx context.Context) error {
				if !in.AutoRemediation {
					return nil
				}
				target := snap.Replicas + 1
				if target > maxIncidentReplicas {
					slog.WarnContext(ctx, "incident scale-up capped", "deployment", id, "replicas", snap.Replicas)
					return nil
				}
				r, err := p.deployments.Scale(ctx, name, ns, target)
				if err != nil {
					return err
				}
				res.ScaledTo = &r.Replicas
				res.ActionsTaken = append(res.ActionsTaken, fmt.Sprintf("scaled %s from %d to %d replicas", id, snap.Replicas, r.Replicas))
				return nil
			}),
			notifyStep("page_on_call", func(ctx context.Context) error {
				if p.notifier.NotifierCount() == 0 {
					return nil
				}
				err := p.notifier.Send(ctx, p.cfg.NotifyChannel, notifier.Notification{
					Title:   fmt.Sprintf("[%s] %s incident on %s", strings.ToUpper(in.Severity), in.IncidentType, id),
					Message: incidentMessage(in, snap),
					Level:   incidentLevel(in.Severity),
					Source:  SourceIncidentOpened,
					Fields:  map[string]string{"incident_id": res.IncidentID, "replicas": fmt.Sprint(snap.Replicas)},
				})
				if err != nil {
					return err
				}
				res.OnCallNotice = true
				res.ActionsTaken = append(res.ActionsTaken, "alerted on-call via "+channelName(p.cfg.NotifyChannel))
				return nil
			}),
		},
		result: func() any { return res },
	}, nil
}

func incidentMessage(in IncidentInput, snap deployment.Snapshot) string {
	msg := fmt.Sprintf("%d/%d replicas available, status %s.", snap.AvailableReplicas, snap.Replicas, snap.Status)
	if in.Description != "" {
		msg = in.Description + "\n" + msg
	}
	return msg
}

func incidentLevel(severity string) string {
	if severity == "high" || severity == "critical" {
		return notifier.LevelError
	}
	return notifier.LevelWarning
}

func channelName(ch string) string {
	if ch == "" {
		return "all channels"
	}
	return ch
}
