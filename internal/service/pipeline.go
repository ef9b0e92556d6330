package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	ofotel "github.com/Strob0t/OpsForge/internal/adapter/otel"
	"github.com/Strob0t/OpsForge/internal/adapter/ws"
	"github.com/Strob0t/OpsForge/internal/config"
	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/domain/event"
	"github.com/Strob0t/OpsForge/internal/logger"
	"github.com/Strob0t/OpsForge/internal/port/broadcast"
	"github.com/Strob0t/OpsForge/internal/port/codehost"
	"github.com/Strob0t/OpsForge/internal/port/eventlog"
	"github.com/Strob0t/OpsForge/internal/port/healthprobe"
	"github.com/Strob0t/OpsForge/internal/port/llm"
	"github.com/Strob0t/OpsForge/internal/port/messagequeue"
	"github.com/Strob0t/OpsForge/internal/port/notifier"
	"github.com/Strob0t/OpsForge/internal/port/taskstore"
)

// errAwaitConfirmation is returned by a gate step to park the task until a
// confirmation token is presented.
var errAwaitConfirmation = errors.New("awaiting confirmation")

// PipelineService runs agent tasks through their workflows and owns the task
// state machine.
type PipelineService struct {
	store       taskstore.Store
	deployments *DeploymentService
	host        codehost.Host
	llm         llm.Completer
	prober      healthprobe.Prober
	cfg         config.Pipeline
	defaultNS   string

	queue    messagequeue.Queue
	notifier *NotificationService
	events   eventlog.Log
	hub      broadcast.Broadcaster
	metrics  *ofotel.Metrics

	planners map[agenttask.Kind]planFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup

	// base parents every background task; stop cancels it at shutdown.
	base context.Context
	stop context.CancelFunc

	now func() time.Time
}

// NewPipelineService creates a PipelineService. defaultNamespace resolves
// deployment IDs given without a namespace.
func NewPipelineService(
	store taskstore.Store,
	deployments *DeploymentService,
	host codehost.Host,
	completer llm.Completer,
	prober healthprobe.Prober,
	cfg config.Pipeline,
	defaultNamespace string,
) *PipelineService {
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 5
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 5 * time.Minute
	}
	if defaultNamespace == "" {
		defaultNamespace = namespaceStaging
	}
	p := &PipelineService{
		store:       store,
		deployments: deployments,
		host:        host,
		llm:         completer,
		prober:      prober,
		cfg:         cfg,
		defaultNS:   defaultNamespace,
		running:     make(map[string]context.CancelFunc),
		now:         time.Now,
	}
	p.base, p.stop = context.WithCancel(context.Background())
	p.planners = map[agenttask.Kind]planFunc{
		agenttask.KindCodeReview: p.planCodeReview,
		agenttask.KindTestWriter: p.planTestWriter,
		agenttask.KindDeploy:     p.planDeploy,
		agenttask.KindRollback:   p.planRollback,
		agenttask.KindMonitor:    p.planMonitor,
		agenttask.KindSecurity:   p.planSecurity,
		agenttask.KindCost:       p.planCost,
		agenttask.KindIncident:   p.planIncident,
	}
	return p
}

// SetQueue routes dependent monitor tasks through the message queue.
// Without a queue they run in-process.
func (p *PipelineService) SetQueue(q messagequeue.Queue) { p.queue = q }

// SetNotifier attaches the notification fan-out.
func (p *PipelineService) SetNotifier(n *NotificationService) { p.notifier = n }

// SetEventLog attaches the event log.
func (p *PipelineService) SetEventLog(l eventlog.Log) { p.events = l }

// SetHub attaches the real-time broadcaster.
func (p *PipelineService) SetHub(h broadcast.Broadcaster) { p.hub = h }

// SetMetrics attaches otel instruments.
func (p *PipelineService) SetMetrics(m *ofotel.Metrics) { p.metrics = m }

// Dispatch creates a task and runs it to completion, suspension or failure on
// the caller's goroutine. A failed task is returned together with the error
// that failed it.
func (p *PipelineService) Dispatch(ctx context.Context, kind agenttask.Kind, input json.RawMessage, parentID string) (*agenttask.Task, error) {
	t, pl, err := p.create(ctx, kind, input, parentID)
	if err != nil {
		return nil, err
	}
	return p.execute(ctx, t, pl)
}

// Submit creates a task and runs it in the background. The queued task is returned.
func (p *PipelineService) Submit(ctx context.Context, kind agenttask.Kind, input json.RawMessage, parentID string) (*agenttask.Task, error) {
	t, pl, err := p.create(ctx, kind, input, parentID)
	if err != nil {
		return nil, err
	}
	queued := t.Clone()
	// The task outlives the request but not the service: it keeps the
	// request's values and is cancelled by Shutdown.
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unlink := context.AfterFunc(p.base, cancel)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		defer unlink()
		if _, err := p.execute(bg, t, pl); err != nil {
			slog.WarnContext(logger.WithTaskID(bg, t.ID), "background task failed", "kind", t.Kind, "error", err)
		}
	}()
	return queued, nil
}

// Wait blocks until every background task has finished.
func (p *PipelineService) Wait() { p.wg.Wait() }

// Shutdown cancels the background tasks and waits until they have persisted
// their final state or ctx is done. Tasks submitted afterwards start cancelled.
func (p *PipelineService) Shutdown(ctx context.Context) error {
	p.stop()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline shutdown: %w", ctx.Err())
	}
}

// Get returns a task by ID.
func (p *PipelineService) Get(ctx context.Context, id string) (*agenttask.Task, error) {
	return p.store.Get(ctx, id)
}

func (p *PipelineService) create(ctx context.Context, kind agenttask.Kind, input json.RawMessage, parentID string) (*agenttask.Task, *plan, error) {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	t, err := agenttask.New(uuid.NewString(), kind, input, p.now().UTC())
	if err != nil {
		return nil, nil, err
	}
	t.ParentID = parentID

	pl, err := p.plan(t, false)
	if err != nil {
		return nil, nil, err
	}
	if err := p.store.Create(ctx, t); err != nil {
		return nil, nil, fmt.Errorf("create task: %w", err)
	}
	p.emit(logger.WithTaskID(ctx, t.ID), t, event.TypeTaskQueued, event.LevelInfo, "task queued")
	return t, pl, nil
}

func (p *PipelineService) plan(t *agenttask.Task, resumed bool) (*plan, error) {
	planner, ok := p.planners[t.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no workflow for kind %q", domain.ErrValidation, t.Kind)
	}
	return planner(&execution{task: t, resumed: resumed})
}

// execute drives t through pl and persists the outcome.
func (p *PipelineService) execute(ctx context.Context, t *agenttask.Task, pl *plan) (*agenttask.Task, error) {
	ctx = logger.WithTaskID(ctx, t.ID)
	ctx, span := ofotel.StartTaskSpan(ctx, t.ID, string(t.Kind))
	runCtx, cancel := p.taskContext(ctx)
	p.track(t.ID, cancel)
	defer func() {
		p.untrack(t.ID)
		cancel()
	}()
	persistCtx := context.WithoutCancel(ctx)

	start := p.now()
	if t.State == agenttask.StateQueued {
		if err := t.Start(start.UTC()); err != nil {
			ofotel.EndSpan(span, err)
			return t, err
		}
		if err := p.store.Update(persistCtx, t); err != nil {
			ofotel.EndSpan(span, err)
			return p.reload(persistCtx, t, err)
		}
		p.metrics.TaskStarted(ctx, string(t.Kind))
		p.emit(ctx, t, event.TypeTaskStarted, event.LevelInfo, "task started")
	}

	runErr := p.runSteps(runCtx, t, pl.steps)
	now := p.now().UTC()

	var evType event.Type
	switch {
	case errors.Is(runErr, errAwaitConfirmation):
		tok := agenttask.NewConfirmationToken(p.cfg.ConfirmationTTL, now)
		if err := t.Suspend(tok, mustJSON(pl.result()), now); err != nil {
			runErr = err
			_ = t.Fail(agenttask.ReasonError, err.Error(), now)
			evType = event.TypeTaskFailed
			break
		}
		runErr = nil
		evType = event.TypeTaskSuspended
	case runErr != nil:
		_ = t.Fail(reasonFor(runErr), runErr.Error(), now)
		evType = event.TypeTaskFailed
	default:
		_ = t.Succeed(mustJSON(pl.result()), now)
		evType = event.TypeTaskSucceeded
	}

	if err := p.store.Update(persistCtx, t); err != nil {
		ofotel.EndSpan(span, err)
		return p.reload(persistCtx, t, err)
	}
	ofotel.EndSpan(span, runErr)

	switch evType {
	case event.TypeTaskSuspended:
		p.emit(ctx, t, evType, event.LevelInfo, "task awaiting confirmation")
		p.notifier.Notify(ctx, notifier.Notification{
			Title:   fmt.Sprintf("%s task awaiting confirmation", t.Kind),
			Message: "Confirm with the task ID and the issued token before it expires.",
			Level:   notifier.LevelWarning,
			Source:  SourceRollbackConfirmation,
			Fields:  map[string]string{"task_id": t.ID, "expires_at": t.ExpiresAt().Format(time.RFC3339)},
		})
	case event.TypeTaskFailed:
		p.metrics.TaskFinished(ctx, string(t.Kind), string(t.State), p.now().Sub(start))
		p.emit(ctx, t, evType, event.LevelError, t.Error)
		p.notifier.Notify(ctx, notifier.Notification{
			Title:   fmt.Sprintf("%s task failed", t.Kind),
			Message: t.Error,
			Level:   notifier.LevelError,
			Source:  SourceTaskFailed,
			Fields:  map[string]string{"task_id": t.ID, "reason": string(t.Reason)},
		})
	default:
		p.metrics.TaskFinished(ctx, string(t.Kind), string(t.State), p.now().Sub(start))
		p.emit(ctx, t, evType, event.LevelInfo, "task succeeded")
	}
	return t, runErr
}

// reload resolves a failed state write. A version conflict means another
// writer (abort, sweeper) finished the task first; its state wins.
func (p *PipelineService) reload(ctx context.Context, t *agenttask.Task, writeErr error) (*agenttask.Task, error) {
	if !errors.Is(writeErr, domain.ErrConflict) {
		return t, fmt.Errorf("persist task %s: %w", t.ID, writeErr)
	}
	cur, err := p.store.Get(ctx, t.ID)
	if err != nil {
		return t, fmt.Errorf("reload task %s: %w", t.ID, err)
	}
	slog.InfoContext(ctx, "task changed concurrently", "state", cur.State, "reason", cur.Reason)
	return cur, nil
}

func (p *PipelineService) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.TaskTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.TaskTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *PipelineService) track(id string, cancel context.CancelFunc) {
	p.mu.Lock()
	p.running[id] = cancel
	p.mu.Unlock()
}

func (p *PipelineService) untrack(id string) {
	p.mu.Lock()
	delete(p.running, id)
	p.mu.Unlock()
}

// Confirm presents a confirmation token to a suspended task. A matching,
// unexpired token resumes the task and runs the gated action. A mismatch
// leaves the task suspended; an expired token fails it.
func (p *PipelineService) Confirm(ctx context.Context, id, token string) (*agenttask.Task, error) {
	t, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithTaskID(ctx, t.ID)

	if err := t.Confirm(token, p.now().UTC()); err != nil {
		switch {
		case errors.Is(err, domain.ErrConfirmationExpired):
			p.metrics.Confirmation(ctx, "expired")
			if uerr := p.store.Update(ctx, t); uerr != nil && !errors.Is(uerr, domain.ErrConflict) {
				return nil, fmt.Errorf("persist task %s: %w", t.ID, uerr)
			}
			p.emit(ctx, t, event.TypeTaskFailed, event.LevelWarn, t.Error)
		case errors.Is(err, domain.ErrConfirmationMismatch):
			p.metrics.Confirmation(ctx, "mismatch")
			slog.WarnContext(ctx, "confirmation token mismatch")
		}
		return nil, err
	}

	// The version check makes the token single use under concurrent confirms.
	if err := p.store.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("resume task %s: %w", t.ID, err)
	}
	p.metrics.Confirmation(ctx, "confirmed")
	p.emit(ctx, t, event.TypeTaskStarted, event.LevelInfo, "task resumed after confirmation")

	pl, err := p.plan(t, true)
	if err != nil {
		return nil, err
	}
	return p.execute(ctx, t, pl)
}

// Abort cancels a task that has not finished. A running task's context is
// cancelled as well.
func (p *PipelineService) Abort(ctx context.Context, id string) (*agenttask.Task, error) {
	for attempt := 0; ; attempt++ {
		t, err := p.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := t.Abort(p.now().UTC()); err != nil {
			return nil, err
		}
		err = p.store.Update(ctx, t)
		if errors.Is(err, domain.ErrConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("abort task %s: %w", id, err)
		}

		p.mu.Lock()
		cancel := p.running[id]
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		ctx = logger.WithTaskID(ctx, id)
		p.emit(ctx, t, event.TypeTaskFailed, event.LevelWarn, "task cancelled")
		return t, nil
	}
}

// SweepExpired fails suspended tasks whose confirmation token has expired.
func (p *PipelineService) SweepExpired(ctx context.Context) (int, error) {
	tasks, err := p.store.ListByState(ctx, agenttask.StateSuspended, 500)
	if err != nil {
		return 0, fmt.Errorf("list suspended tasks: %w", err)
	}
	now := p.now().UTC()
	expired := 0
	for i := range tasks {
		t := &tasks[i]
		if !t.ExpireIfDue(now) {
			continue
		}
		if err := p.store.Update(ctx, t); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return expired, fmt.Errorf("expire task %s: %w", t.ID, err)
		}
		expired++
		p.metrics.Confirmation(ctx, "expired")
		p.emit(logger.WithTaskID(ctx, t.ID), t, event.TypeTaskFailed, event.LevelWarn, "confirmation expired")
	}
	return expired, nil
}

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
func (p *PipelineService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.SweepExpired(ctx); err != nil {
				slog.WarnContext(ctx, "confirmation sweep failed", "error", err)
			} else if n > 0 {
				slog.InfoContext(ctx, "expired suspended tasks", "count", n)
			}
		}
	}
}

// StartMonitorConsumer runs dependent monitor tasks received on the queue.
func (p *PipelineService) StartMonitorConsumer(ctx context.Context, q messagequeue.Queue) (func(), error) {
	return q.Subscribe(ctx, messagequeue.SubjectTaskMonitor, func(ctx context.Context, _ string, data []byte) error {
		var msg messagequeue.MonitorRequestPayload
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode monitor request: %w", err)
		}
		if msg.RequestID != "" && logger.RequestID(ctx) == "" {
			ctx = logger.WithRequestID(ctx, msg.RequestID)
		}
		input := mustJSON(MonitorInput{DeploymentID: msg.DeploymentID, ServiceURL: msg.ServiceURL})
		t, err := p.Dispatch(ctx, agenttask.KindMonitor, input, msg.ParentTaskID)
		if t == nil && err != nil && !errors.Is(err, domain.ErrValidation) {
			return err
		}
		return nil
	})
}

// emit records a task state change in the event log, on the websocket hub
// and on the tasks.status subject.
func (p *PipelineService) emit(ctx context.Context, t *agenttask.Task, typ event.Type, level event.Level, msg string) {
	appendEvent(ctx, p.events, &event.Event{
		TaskID:  t.ID,
		Type:    typ,
		Level:   level,
		Message: msg,
	}, map[string]string{"kind": string(t.Kind), "state": string(t.State), "reason": string(t.Reason)})

	if p.hub != nil {
		ev := ws.TaskStatusEvent{TaskID: t.ID, Kind: string(t.Kind), State: string(t.State), Reason: string(t.Reason)}
		if exp := t.ExpiresAt(); !exp.IsZero() {
			ev.ExpiresAt = exp.Format(time.RFC3339)
		}
		p.hub.BroadcastEvent(ctx, broadcast.EventTaskStatus, ev)
	}

	if p.queue != nil {
		payload := mustJSON(messagequeue.TaskStatusPayload{
			TaskID: t.ID, Kind: string(t.Kind), State: string(t.State), Reason: string(t.Reason),
		})
		if err := p.queue.Publish(ctx, messagequeue.SubjectTaskStatus, payload); err != nil {
			slog.DebugContext(ctx, "task status publish failed", "error", err)
		}
	}
}

func reasonFor(err error) agenttask.Reason {
	switch {
	case errors.Is(err, domain.ErrNoFilesAvailable):
		return agenttask.ReasonNoFilesAvailable
	case errors.Is(err, domain.ErrConfirmationExpired):
		return agenttask.ReasonConfirmationExpired
	case errors.Is(err, context.Canceled):
		return agenttask.ReasonCancelled
	default:
		return agenttask.ReasonError
	}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return data
}
