package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/OpsForge/internal/adapter/memory"
	"github.com/Strob0t/OpsForge/internal/config"
	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/deployment"
	"github.com/Strob0t/OpsForge/internal/port/healthprobe"
	"github.com/Strob0t/OpsForge/internal/port/lease"
	"github.com/Strob0t/OpsForge/internal/port/llm"
	"github.com/Strob0t/OpsForge/internal/port/messagequeue"
	"github.com/Strob0t/OpsForge/internal/port/notifier"
	"github.com/Strob0t/OpsForge/internal/port/orchestrator"
	"github.com/Strob0t/OpsForge/internal/resilience"
)

// --- orchestrator ---

// fakeOrchestrator keeps deployments in memory. It counts mutating calls and
// records whether two mutations of the same deployment ever overlapped.
type fakeOrchestrator struct {
	mu          sync.Mutex
	deployments map[string]*deployment.Deployment
	revisions   map[string][]deployment.Revision

	mutations     int
	getCalls      int
	patchedImages []string
	conflicts     int           // remaining mutating calls that fail with ErrConflict
	getErr        error         // returned by every Get when set
	delay         time.Duration // held inside each mutating call

	inFlight map[string]int
	overlap  bool
}

var _ orchestrator.Client = (*fakeOrchestrator)(nil)

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{
		deployments: make(map[string]*deployment.Deployment),
		revisions:   make(map[string][]deployment.Revision),
		inFlight:    make(map[string]int),
	}
}

func (f *fakeOrchestrator) seed(ns, name, image string, replicas int32, revs ...deployment.Revision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := deployment.Key(ns, name)
	f.deployments[key] = &deployment.Deployment{
		Name: name, Namespace: ns, Image: image, Replicas: replicas,
		ReadyReplicas: replicas, AvailableReplicas: replicas,
		Status: deployment.ObservedStatus(replicas, replicas),
	}
	f.revisions[key] = revs
}

func (f *fakeOrchestrator) setAvailable(ns, name string, available int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.deployments[deployment.Key(ns, name)]
	d.AvailableReplicas = available
	d.ReadyReplicas = available
	d.Status = deployment.ObservedStatus(d.Replicas, available)
}

func (f *fakeOrchestrator) mutatingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

func (f *fakeOrchestrator) gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeOrchestrator) sawOverlap() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}

func (f *fakeOrchestrator) current(ns, name string) deployment.Deployment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.deployments[deployment.Key(ns, name)]
}

// mutate runs apply as one mutating call on key.
func (f *fakeOrchestrator) mutate(key string, apply func() (*deployment.Deployment, error)) (*deployment.Deployment, error) {
	f.mu.Lock()
	f.mutations++
	f.inFlight[key]++
	if f.inFlight[key] > 1 {
		f.overlap = true
	}
	delay := f.delay
	f.mu.Unlock()

	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight[key]--
	if f.conflicts > 0 {
		f.conflicts--
		return nil, fmt.Errorf("%s modified concurrently: %w", key, domain.ErrConflict)
	}
	d, err := apply()
	if err != nil {
		return nil, err
	}
	c := *d
	return &c, nil
}

func (f *fakeOrchestrator) Get(_ context.Context, name, namespace string) (*deployment.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.deployments[deployment.Key(namespace, name)]
	if !ok {
		return nil, fmt.Errorf("deployment %s/%s: %w", namespace, name, domain.ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (f *fakeOrchestrator) CreateOrUpdate(_ context.Context, name, namespace, image string, replicas int32) (*deployment.Deployment, error) {
	key := deployment.Key(namespace, name)
	return f.mutate(key, func() (*deployment.Deployment, error) {
		d, ok := f.deployments[key]
		if !ok {
			d = &deployment.Deployment{Name: name, Namespace: namespace}
			f.deployments[key] = d
		}
		d.Image = image
		d.Replicas = replicas
		d.Status = deployment.ObservedStatus(replicas, d.AvailableReplicas)
		revs := f.revisions[key]
		f.revisions[key] = append(revs, deployment.Revision{Number: int64(len(revs) + 1), Image: image})
		return d, nil
	})
}

func (f *fakeOrchestrator) PatchImage(_ context.Context, name, namespace, image string) (*deployment.Deployment, error) {
	key := deployment.Key(namespace, name)
	return f.mutate(key, func() (*deployment.Deployment, error) {
		d, ok := f.deployments[key]
		if !ok {
			return nil, fmt.Errorf("deployment %s: %w", key, domain.ErrNotFound)
		}
		d.Image = image
		f.patchedImages = append(f.patchedImages, image)
		return d, nil
	})
}

func (f *fakeOrchestrator) PatchReplicas(_ context.Context, name, namespace string, replicas int32) (*deployment.Deployment, error) {
	key := deployment.Key(namespace, name)
	return f.mutate(key, func() (*deployment.Deployment, error) {
		d, ok := f.deployments[key]
		if !ok {
			return nil, fmt.Errorf("deployment %s: %w", key, domain.ErrNotFound)
		}
		d.Replicas = replicas
		d.Status = deployment.ObservedStatus(replicas, d.AvailableReplicas)
		return d, nil
	})
}

func (f *fakeOrchestrator) ListRevisions(_ context.Context, name, namespace string) ([]deployment.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := deployment.Key(namespace, name)
	if _, ok := f.deployments[key]; !ok {
		return nil, fmt.Errorf("deployment %s: %w", key, domain.ErrNotFound)
	}
	return append([]deployment.Revision(nil), f.revisions[key]...), nil
}

func (f *fakeOrchestrator) ListManaged(_ context.Context, namespace string) ([]deployment.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []deployment.Deployment{}
	for _, d := range f.deployments {
		if namespace == "" || d.Namespace == namespace {
			out = append(out, *d)
		}
	}
	return out, nil
}

// --- code host ---

type fakeHost struct {
	mu         sync.Mutex
	diff       string
	diffErr    error
	files      map[string]string
	fileErrs   map[string]error
	commentErr error
	comments   []string

	delay     time.Duration
	active    int
	maxActive int
}

func (h *fakeHost) GetDiff(context.Context, string, string, int) (string, error) {
	return h.diff, h.diffErr
}

func (h *fakeHost) GetFileContent(_ context.Context, _, _, path string) (string, error) {
	h.mu.Lock()
	h.active++
	h.maxActive = max(h.maxActive, h.active)
	h.mu.Unlock()

	time.Sleep(h.delay)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.active--
	if err := h.fileErrs[path]; err != nil {
		return "", err
	}
	content, ok := h.files[path]
	if !ok {
		return "", fmt.Errorf("file %s: %w", path, domain.ErrNotFound)
	}
	return content, nil
}

func (h *fakeHost) PostComment(_ context.Context, _, _ string, _ int, body string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.commentErr != nil {
		return h.commentErr
	}
	h.comments = append(h.comments, body)
	return nil
}

func (h *fakeHost) posted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.comments...)
}

// --- llm ---

type fakeLLM struct {
	mu      sync.Mutex
	respond func(req llm.Request) (string, error)
	prompts []string

	// hang, when set, is signalled on each call and the call then blocks
	// until its context is done.
	hang chan struct{}
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	respond, hang := f.respond, f.hang
	f.mu.Unlock()

	if hang != nil {
		select {
		case hang <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	if respond == nil {
		return llm.Response{}, fmt.Errorf("no response configured: %w", domain.ErrUpstream)
	}
	text, err := respond(req)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Content: text, Model: "test-model", Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// replyWith returns a responder that always answers text.
func replyWith(text string) func(llm.Request) (string, error) {
	return func(llm.Request) (string, error) { return text, nil }
}

// --- prober ---

type fakeProber struct {
	sample healthprobe.Sample
	err    error
	urls   []string
}

func (p *fakeProber) Probe(_ context.Context, target healthprobe.Target) (healthprobe.Sample, error) {
	p.urls = append(p.urls, target.URL)
	return p.sample, p.err
}

// --- queue ---

type fakeQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{published: make(map[string][][]byte), handlers: make(map[string]messagequeue.Handler)}
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		delete(q.handlers, subject)
		q.mu.Unlock()
	}, nil
}

func (q *fakeQueue) messages(subject string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.published[subject]...)
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

// --- cache ---

type mapCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{m: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// --- harness ---

var testPolicy = resilience.Policy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

type harness struct {
	orch        *fakeOrchestrator
	host        *fakeHost
	llm         *fakeLLM
	prober      *fakeProber
	store       *memory.TaskStore
	events      *memory.EventLog
	leaser      *memory.Leaser
	slack       *mockNotifier
	clock       *fakeClock
	deployments *DeploymentService
	pipeline    *PipelineService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		orch:   newFakeOrchestrator(),
		host:   &fakeHost{files: map[string]string{}, fileErrs: map[string]error{}},
		llm:    &fakeLLM{},
		prober: &fakeProber{},
		store:  memory.NewTaskStore(),
		events: memory.NewEventLog(),
		leaser: memory.NewLeaser(),
		slack:  &mockNotifier{name: "slack"},
		clock:  &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.deployments = NewDeploymentService(h.orch, h.leaser, lease.Block, testPolicy, h.events)

	cfg := config.Pipeline{
		FetchConcurrency: 5,
		ConfirmationTTL:  5 * time.Minute,
		TaskTimeout:      10 * time.Second,
		NotifyChannel:    "slack",
	}
	h.pipeline = NewPipelineService(h.store, h.deployments, h.host, h.llm, h.prober, cfg, "staging")
	h.pipeline.SetNotifier(NewNotificationService([]notifier.Notifier{h.slack}, nil))
	h.pipeline.SetEventLog(h.events)
	h.pipeline.now = h.clock.Now
	t.Cleanup(h.pipeline.Wait)
	return h
}

// containsAll reports whether s contains every part.
func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
