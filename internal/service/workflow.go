package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ofotel "github.com/Strob0t/OpsForge/internal/adapter/otel"
	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/domain/event"
)

// Step is one typed unit of a workflow.
type Step struct {
	Name string
	Kind agenttask.StepKind
	Run  func(ctx context.Context) error
	// Absorb records a failure on the task and continues with the next step.
	Absorb bool
}

func fetchStep(name string, run func(context.Context) error) Step {
	return Step{Name: name, Kind: agenttask.StepFetchContext, Run: run}
}

func analyzeStep(name string, run func(context.Context) error) Step {
	return Step{Name: name, Kind: agenttask.StepAnalyze, Run: run}
}

func actStep(name string, run func(context.Context) error) Step {
	return Step{Name: name, Kind: agenttask.StepAct, Run: run}
}

// notifyStep failures never fail a task.
func notifyStep(name string, run func(context.Context) error) Step {
	return Step{Name: name, Kind: agenttask.StepNotify, Run: run, Absorb: true}
}

// execution is the per-run context handed to a planner.
type execution struct {
	task    *agenttask.Task
	resumed bool // the run follows a successful confirmation
}

// plan is an ordered list of steps and the value the task result is read from
// once they have run.
type plan struct {
	steps  []Step
	result func() any
}

// planFunc decodes a task's input and builds its workflow. Input errors wrap
// domain.ErrValidation and are reported before the task is stored.
type planFunc func(x *execution) (*plan, error)

// decodeInput unmarshals a task input, rejecting unknown shapes.
func decodeInput(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: decode input: %w", domain.ErrValidation, err)
	}
	return nil
}

// runSteps executes steps in order, appending a record per step to t.
// It stops at the first failing step that is not absorbed, and at a gate
// step returning errAwaitConfirmation.
func (p *PipelineService) runSteps(ctx context.Context, t *agenttask.Task, steps []Step) error {
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		sctx, span := ofotel.StartStepSpan(ctx, st.Name, string(st.Kind))
		start := p.now()
		err := st.Run(sctx)
		rec := agenttask.StepRecord{
			Name:       st.Name,
			Kind:       st.Kind,
			Status:     agenttask.StepOK,
			DurationMS: p.now().Sub(start).Milliseconds(),
			At:         start.UTC(),
		}

		switch {
		case err == nil:
		case errors.Is(err, errAwaitConfirmation):
			rec.Status = agenttask.StepParked
			ofotel.EndSpan(span, nil)
			t.Steps = append(t.Steps, rec)
			return err
		case st.Absorb:
			rec.Status = agenttask.StepAbsorbed
			rec.Error = err.Error()
			slog.WarnContext(ctx, "step failed, continuing", "step", st.Name, "error", err)
		default:
			rec.Status = agenttask.StepFailed
			rec.Error = err.Error()
			ofotel.EndSpan(span, err)
			t.Steps = append(t.Steps, rec)
			p.emit(ctx, t, event.TypeTaskStep, event.LevelWarn, st.Name+" failed")
			return fmt.Errorf("%s: %w", st.Name, err)
		}

		ofotel.EndSpan(span, err)
		t.Steps = append(t.Steps, rec)
		slog.DebugContext(ctx, "step finished", "step", st.Name, "status", rec.Status,
			"duration", time.Duration(rec.DurationMS)*time.Millisecond)
	}
	return nil
}
