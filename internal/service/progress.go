package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
	"github.com/interop/jobgather/internal/observability/metrics"
	"github.com/interop/jobgather/internal/observability/statsd"
)

// ProgressTrackerOptions groups dependencies for ProgressTracker.
type ProgressTrackerOptions struct {
	Store   core.ProgressStore // Required
	Logger  *slog.Logger       // Optional
	Metrics statsd.Sink        // Optional
}

// ProgressTracker records unit outcomes against a job's counters.
type ProgressTracker struct {
	store   core.ProgressStore
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewProgressTracker constructs a ProgressTracker.
func NewProgressTracker(opts ProgressTrackerOptions) (*ProgressTracker, error) {
	if opts.Store == nil {
		return nil, errors.New("ProgressStore is required")
	}
	return &ProgressTracker{
		store:   opts.Store,
		logger:  componentLogger(opts.Logger, "progress_tracker"),
		metrics: opts.Metrics,
	}, nil
}

// Increment counts one outcome and returns the counters as they stood right after this
// increment. The store call is the only side effect and is never retried here.
func (t *ProgressTracker) Increment(
	ctx context.Context,
	jobID string,
	outcome model.UnitOutcome,
) (model.ProgressSnapshot, error) {
	if jobID == "" {
		return model.ProgressSnapshot{}, apperrors.ValidationField("job_id", "job id is required")
	}
	if !outcome.Valid() {
		return model.ProgressSnapshot{}, apperrors.ValidationField("outcome", "unknown outcome "+string(outcome))
	}

	snap, err := t.store.IncrementAndReturn(ctx, jobID, outcome.Deltas())
	if err != nil {
		return model.ProgressSnapshot{}, err
	}
	metrics.EmitUnitResult(t.metrics, string(outcome))
	t.logger.DebugContext(ctx, "unit counted",
		"job_id", jobID,
		"outcome", outcome,
		"successful", snap.Successful,
		"failed", snap.Failed,
		"total", snap.Total,
	)
	return snap, nil
}
