package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	ofotel "github.com/Strob0t/OpsForge/internal/adapter/otel"
	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/domain/deployment"
	"github.com/Strob0t/OpsForge/internal/domain/event"
	"github.com/Strob0t/OpsForge/internal/domain/intent"
	"github.com/Strob0t/OpsForge/internal/port/llm"
)

func TestIntentRouter_Route(t *testing.T) {
	tests := []struct {
		name          string
		reply         string
		wantIntent    string
		wantConf      float64
		clarification bool
	}{
		{
			name:       "structured",
			reply:      `{"intent":"deploy","entities":{"repository":"acme/api","environment":"staging"},"confidence":0.92,"suggested_actions":["deploy acme/api"]}`,
			wantIntent: "deploy", wantConf: 0.92,
		},
		{
			name:       "fenced with prose",
			reply:      "Sure.\n```json\n{\"intent\":\"Rollback\",\"entities\":{},\"confidence\":0.8}\n```",
			wantIntent: "rollback", wantConf: 0.8,
		},
		{
			name:       "low confidence",
			reply:      `{"intent":"monitor","entities":{},"confidence":0.2}`,
			wantIntent: "monitor", wantConf: 0.2, clarification: true,
		},
		{
			name:       "confidence out of range",
			reply:      `{"intent":"cost","confidence":7}`,
			wantIntent: "cost", wantConf: 1,
		},
		{
			name:       "prose only",
			reply:      "I think you want to deploy something.",
			wantIntent: intent.Unknown, wantConf: intent.FallbackConfidence, clarification: true,
		},
		{
			name:       "missing intent",
			reply:      `{"entities":{"repository":"acme/api"},"confidence":0.9}`,
			wantIntent: intent.Unknown, wantConf: intent.FallbackConfidence, clarification: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeLLM{respond: replyWith(tt.reply)}
			r := NewIntentRouter(c, "gpt-4", 0, nil)

			res, err := r.Route(context.Background(), "ship acme/api to staging", "")
			if err != nil {
				t.Fatalf("route: %v", err)
			}
			if res.Intent != tt.wantIntent || res.Confidence != tt.wantConf || res.NeedsClarification != tt.clarification {
				t.Fatalf("got %+v", res)
			}
			if res.Entities == nil || res.SuggestedActions == nil {
				t.Fatal("collections must be empty, not null")
			}
		})
	}
}

func TestIntentRouter_PromptCarriesMessageAndContext(t *testing.T) {
	c := &fakeLLM{respond: replyWith(`{"intent":"review","confidence":0.9}`)}
	r := NewIntentRouter(c, "", 0, nil)

	if _, err := r.Route(context.Background(), "  review PR 12 on acme/api  ", "code"); err != nil {
		t.Fatal(err)
	}
	if !containsAll(c.prompts[0], `"review PR 12 on acme/api"`, "Context: code") {
		t.Fatalf("unexpected prompt %q", c.prompts[0])
	}
}

func TestIntentRouter_Errors(t *testing.T) {
	r := NewIntentRouter(&fakeLLM{respond: replyWith(`{}`)}, "", 0, nil)
	ctx := context.Background()

	if _, err := r.Route(ctx, "   ", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty message: expected ErrValidation, got %v", err)
	}
	if _, err := r.Route(ctx, strings.Repeat("x", maxMessageLen+1), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("long message: expected ErrValidation, got %v", err)
	}

	failing := NewIntentRouter(&fakeLLM{respond: func(llm.Request) (string, error) {
		return "", fmt.Errorf("litellm: %w", domain.ErrUpstream)
	}}, "", 0, nil)
	if _, err := failing.Route(ctx, "deploy", ""); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestIntentRouter_RecordsEventAndMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := ofotel.NewMetricsWith(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t)
	r := NewIntentRouter(&fakeLLM{respond: replyWith(`{"intent":"incident","confidence":0.7}`)}, "", 0.5, h.events)
	r.SetMetrics(m)
	ctx := context.Background()

	if _, err := r.Route(ctx, "the api is down", ""); err != nil {
		t.Fatal(err)
	}

	evs, _ := h.events.List(ctx, event.Filter{Types: []event.Type{event.TypeIntentRouted}})
	if len(evs) != 1 {
		t.Fatalf("expected one routed event, got %d", len(evs))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					counts[md.Name] += dp.Value
				}
			}
		}
	}
	if counts["opsforge.intents.routed"] != 1 || counts["opsforge.llm.calls"] != 1 {
		t.Fatalf("unexpected counters %v", counts)
	}
}

// --- request service ---

func newRequestHarness(t *testing.T, reply string) (*harness, *RequestService) {
	t.Helper()
	h := newHarness(t)
	router := NewIntentRouter(&fakeLLM{respond: replyWith(reply)}, "", 0.3, h.events)
	h.pipeline.SetQueue(newFakeQueue())
	return h, NewRequestService(router, h.pipeline)
}

func TestRequestService_DispatchesDeploy(t *testing.T) {
	h, svc := newRequestHarness(t,
		`{"intent":"deploy","entities":{"repository":"acme/shop","image_tag":"shop:3.1.0","environment":"prod"},"confidence":0.9}`)

	out, err := svc.Handle(context.Background(), "deploy shop 3.1.0 to prod", "")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !out.Dispatched || out.Task == nil || out.Task.Kind != agenttask.KindDeploy || out.Task.State != agenttask.StateSucceeded {
		t.Fatalf("unexpected result %+v", out)
	}
	d := h.orch.current("prod", "shop")
	if d.Image != "shop:3.1.0" || d.Replicas != 3 {
		t.Fatalf("unexpected deployment %+v", d)
	}
}

func TestRequestService_RollbackAlwaysAsksForConfirmation(t *testing.T) {
	h, svc := newRequestHarness(t,
		`{"intent":"rollback","entities":{"deployment_id":"prod/api","reason":"5xx spike"},"confidence":0.95}`)
	h.orch.seed("prod", "api", "api:2", 2,
		deployment.Revision{Number: 1, Image: "api:1"},
		deployment.Revision{Number: 2, Image: "api:2"},
	)

	out, err := svc.Handle(context.Background(), "roll back the api", "")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Task == nil || out.Task.State != agenttask.StateSuspended {
		t.Fatalf("expected suspended rollback, got %+v", out.Task)
	}
	if h.orch.mutatingCalls() != 0 {
		t.Fatal("conversational rollback ran without confirmation")
	}
}

func TestRequestService_Clarification(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"low confidence", `{"intent":"deploy","confidence":0.1}`},
		{"unusable output", `no idea`},
		{"no workflow", `{"intent":"weather","confidence":0.9}`},
		{"missing entities", `{"intent":"review","entities":{},"confidence":0.9}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newRequestHarness(t, tt.reply)

			out, err := svc.Handle(context.Background(), "do the thing", "")
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if out.Dispatched || out.Task != nil || out.Clarification == "" {
				t.Fatalf("expected clarification, got %+v", out)
			}
			if h.orch.mutatingCalls() != 0 {
				t.Fatal("clarification must not act")
			}
		})
	}
}

func TestRequestService_FailedTaskIsReturned(t *testing.T) {
	h, svc := newRequestHarness(t, `{"intent":"review","entities":{"repository":"acme/api","pr_number":"#5"},"confidence":0.9}`)
	h.host.diffErr = fmt.Errorf("pr 5: %w", domain.ErrNotFound)

	out, err := svc.Handle(context.Background(), "review #5", "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !out.Dispatched || out.Task == nil || out.Task.State != agenttask.StateFailed {
		t.Fatalf("expected the failed task, got %+v", out)
	}
}

func TestInputFromEntities(t *testing.T) {
	r := intent.Result{Entities: map[string]any{
		"repository":    "acme/api",
		"pr_number":     float64(17),
		"changed_files": []any{"a.go", "b.go"},
		"service":       "prod/web",
		"severity":      "HIGH",
	}}

	var tw TestWriterInput
	_ = json.Unmarshal(inputFromEntities(agenttask.KindTestWriter, r), &tw)
	if tw.PRNumber != 17 || fmt.Sprint(tw.ChangedFiles) != "[a.go b.go]" {
		t.Fatalf("test writer input %+v", tw)
	}

	var inc IncidentInput
	_ = json.Unmarshal(inputFromEntities(agenttask.KindIncident, r), &inc)
	if inc.DeploymentID != "prod/web" || inc.Severity != "high" || inc.IncidentType != "unspecified" {
		t.Fatalf("incident input %+v", inc)
	}
}
