package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/interop/jobgather/config"
	"github.com/interop/jobgather/internal/domain/model"
	"github.com/interop/jobgather/internal/observability/notify"
	"github.com/interop/jobgather/internal/observability/statsd"
	"github.com/interop/jobgather/internal/testutil"
)

type recordingWebhooks struct {
	mu      sync.Mutex
	changes []model.StatusChange
	err     error
}

func (w *recordingWebhooks) SendStatusChange(_ context.Context, change model.StatusChange) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changes = append(w.changes, change)
	return w.err
}

func (w *recordingWebhooks) Changes() []model.StatusChange {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.StatusChange(nil), w.changes...)
}

type recordingAlerter struct {
	mu       sync.Mutex
	payloads []notify.AnomalyPayload
}

func (a *recordingAlerter) NotifyAnomaly(_ context.Context, p notify.AnomalyPayload) {
	a.mu.Lock()
	a.payloads = append(a.payloads, p)
	a.mu.Unlock()
}

func (a *recordingAlerter) Kinds() []notify.AnomalyKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]notify.AnomalyKind, 0, len(a.payloads))
	for _, p := range a.payloads {
		out = append(out, p.Kind)
	}
	return out
}

func (a *recordingAlerter) Last() notify.AnomalyPayload {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.payloads) == 0 {
		return notify.AnomalyPayload{}
	}
	return a.payloads[len(a.payloads)-1]
}

type countingFinisher struct {
	mu    sync.Mutex
	calls []string
	errFn func(attempt int) error
}

func (f *countingFinisher) NotifyJobFinished(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobID)
	if f.errFn != nil {
		return f.errFn(len(f.calls))
	}
	return nil
}

func (f *countingFinisher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// harness wires the completion path against in-memory stores.
type harness struct {
	store       *testutil.MemoryJobStore
	units       *testutil.MemoryUnitStore
	webhooks    *recordingWebhooks
	alerts      *recordingAlerter
	finisher    *countingFinisher
	metrics     *statsd.Recorder
	jobs        *JobService
	tracker     *ProgressTracker
	trigger     *BestEffortTrigger
	coordinator *Coordinator
}

func fastTriggerConfig() config.TriggerConfig {
	return config.TriggerConfig{
		Mode:            "amqp",
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Timeout:         time.Second,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    testutil.NewMemoryJobStore(),
		units:    testutil.NewMemoryUnitStore(),
		webhooks: &recordingWebhooks{},
		alerts:   &recordingAlerter{},
		finisher: &countingFinisher{},
		metrics:  &statsd.Recorder{},
	}

	var err error
	h.jobs, err = NewJobService(JobServiceOptions{Repo: h.store, Webhooks: h.webhooks, Metrics: h.metrics})
	require.NoError(t, err)
	h.tracker, err = NewProgressTracker(ProgressTrackerOptions{Store: h.store, Metrics: h.metrics})
	require.NoError(t, err)
	h.trigger = NewBestEffortTrigger(BestEffortTriggerOptions{
		Finisher: h.finisher,
		Config:   fastTriggerConfig(),
		Metrics:  h.metrics,
		Alerter:  h.alerts,
	})
	h.coordinator, err = NewCoordinator(CoordinatorOptions{
		Tracker:            h.tracker,
		Jobs:               h.jobs,
		Trigger:            h.trigger,
		Alerter:            h.alerts,
		TransitionAttempts: 3,
		RetryInterval:      time.Millisecond,
	})
	require.NoError(t, err)
	return h
}

// processingJob creates a job with the given total and moves it to processing.
func (h *harness) processingJob(t *testing.T, b *testutil.JobRequestBuilder) *model.Job {
	t.Helper()
	ctx := context.Background()
	job, err := h.jobs.Create(ctx, b.Build())
	require.NoError(t, err)
	job, err = h.jobs.Initialize(ctx, job.ID)
	require.NoError(t, err)
	return job
}

func (h *harness) mustGet(t *testing.T, id string) *model.Job {
	t.Helper()
	job, err := h.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return job
}
