package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/domain/intent"
)

// RequestResult is the reply to a conversational request.
type RequestResult struct {
	Intent        intent.Result   `json:"intent"`
	Dispatched    bool            `json:"dispatched"`
	Task          *agenttask.Task `json:"task,omitempty"`
	Clarification string          `json:"clarification,omitempty"`
}

// RequestService turns free-text requests into agent tasks: it routes the
// message and either dispatches the matching workflow or asks for clarification.
type RequestService struct {
	router   *IntentRouter
	pipeline *PipelineService
}

// NewRequestService creates a RequestService.
func NewRequestService(router *IntentRouter, pipeline *PipelineService) *RequestService {
	return &RequestService{router: router, pipeline: pipeline}
}

// Handle routes message and dispatches the workflow it names.
func (s *RequestService) Handle(ctx context.Context, message, topic string) (RequestResult, error) {
	res, err := s.router.Route(ctx, message, topic)
	if err != nil {
		return RequestResult{}, err
	}
	out := RequestResult{Intent: res}

	if res.NeedsClarification {
		out.Clarification = "I am not sure what you want to do. Could you rephrase, naming the repository or deployment?"
		return out, nil
	}
	kind, ok := intent.KindFor(res.Intent)
	if !ok {
		out.Clarification = fmt.Sprintf("I cannot act on %q requests yet.", res.Intent)
		return out, nil
	}

	input := inputFromEntities(kind, res)
	t, err := s.pipeline.Dispatch(ctx, kind, input, "")
	if t == nil && errors.Is(err, domain.ErrValidation) {
		out.Clarification = "Some details are missing: " + strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
		return out, nil
	}
	if t == nil {
		return out, err
	}
	out.Dispatched = true
	out.Task = t
	return out, err
}

// inputFromEntities builds a task input from routed entities.
func inputFromEntities(kind agenttask.Kind, r intent.Result) json.RawMessage {
	deploymentID := firstNonEmpty(r.StringEntity("deployment_id"), r.StringEntity("service"))
	pr, _ := r.IntEntity("pr_number")

	switch kind {
	case agenttask.KindCodeReview, agenttask.KindSecurity:
		return mustJSON(CodeReviewInput{Repository: r.StringEntity("repository"), PRNumber: pr})
	case agenttask.KindTestWriter:
		return mustJSON(TestWriterInput{
			Repository:   r.StringEntity("repository"),
			PRNumber:     pr,
			ChangedFiles: stringList(r.Entities["changed_files"]),
		})
	case agenttask.KindDeploy:
		return mustJSON(DeployInput{
			Repository:  r.StringEntity("repository"),
			ImageTag:    firstNonEmpty(r.StringEntity("image_tag"), r.StringEntity("image"), r.StringEntity("version")),
			Environment: normalizeEnvironment(r.StringEntity("environment")),
		})
	case agenttask.KindRollback:
		// Destructive actions requested in free text are always confirmed first.
		return mustJSON(RollbackInput{
			DeploymentID:         deploymentID,
			Reason:               r.StringEntity("reason"),
			ConfirmationRequired: true,
		})
	case agenttask.KindMonitor:
		return mustJSON(MonitorInput{DeploymentID: deploymentID, ServiceURL: r.StringEntity("service_url")})
	case agenttask.KindCost:
		return mustJSON(CostInput{DeploymentID: deploymentID})
	case agenttask.KindIncident:
		return mustJSON(IncidentInput{
			DeploymentID: deploymentID,
			IncidentType: firstNonEmpty(r.StringEntity("incident_type"), "unspecified"),
			Severity:     firstNonEmpty(strings.ToLower(r.StringEntity("severity")), "medium"),
		})
	default:
		return json.RawMessage(`{}`)
	}
}

func normalizeEnvironment(env string) string {
	switch strings.ToLower(env) {
	case "prod", "production":
		return EnvProduction
	default:
		return EnvStaging
	}
}

func stringList(v any) []string {
	switch vv := v.(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(vv, ",")
	default:
		return nil
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
