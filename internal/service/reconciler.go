package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/lthibault/jitterbug/v2"

	"github.com/interop/jobgather/config"
	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
	"github.com/interop/jobgather/internal/observability/metrics"
	"github.com/interop/jobgather/internal/observability/notify"
	"github.com/interop/jobgather/internal/observability/statsd"
	"github.com/interop/jobgather/internal/util"
)

// ReconcilerOptions groups dependencies for Reconciler.
type ReconcilerOptions struct {
	Repo        core.ReconcilerRepository // Required
	Coordinator *Coordinator              // Required
	Config      config.ReconcilerConfig
	Logger      *slog.Logger
	Metrics     statsd.Sink
	Alerter     notify.Alerter
	Now         func() time.Time
}

// ReconcileStats summarizes one sweep.
type ReconcileStats struct {
	Scanned   int
	Completed int
	Stale     int
	Errors    int
}

// Reconciler sweeps processing jobs. Jobs whose tally already reached the total are completed
// through the coordinator; jobs idle past the stale window are alerted. Nothing is deleted.
type Reconciler struct {
	repo        core.ReconcilerRepository
	coordinator *Coordinator
	cfg         config.ReconcilerConfig
	logger      *slog.Logger
	metrics     statsd.Sink
	alerter     notify.Alerter
	now         func() time.Time
}

// NewReconciler constructs a Reconciler.
func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReconcilerRepository is required")
	}
	if opts.Coordinator == nil {
		return nil, errors.New("Coordinator is required")
	}
	cfg := opts.Config
	cfg.Sanitize()
	logger := componentLogger(opts.Logger, "reconciler")
	logger.Debug("Reconciler initialized",
		"interval", cfg.Interval,
		"jitter", cfg.Jitter,
		"stale_after", cfg.StaleAfter,
		"batch_size", cfg.BatchSize,
	)
	return &Reconciler{
		repo:        opts.Repo,
		coordinator: opts.Coordinator,
		cfg:         cfg,
		logger:      logger,
		metrics:     opts.Metrics,
		alerter:     alerterOrNop(opts.Alerter),
		now:         clockOrNow(opts.Now),
	}, nil
}

// Run sweeps once immediately and then on a jittered ticker until ctx is canceled.
// Returns nil on graceful shutdown.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reconciler", "interval", r.cfg.Interval)

	r.sweep(ctx)

	ticker := jitterbug.New(r.cfg.Interval, &jitterbug.Norm{Stdev: r.cfg.Jitter})
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reconciler stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	stats, err := r.RunOnce(ctx)
	if err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "reconcile sweep failed", "error", err)
	}
	if stats.Completed > 0 || stats.Stale > 0 || stats.Errors > 0 {
		r.logger.InfoContext(ctx, "reconcile sweep finished",
			"scanned", stats.Scanned,
			"completed", stats.Completed,
			"stale", stats.Stale,
			"errors", stats.Errors,
		)
	}
}

// RunOnce pages through every waiting and processing job once. Jobs whose tally reached the
// total are completed, including waiting ones left behind by a deferred completion; only
// processing jobs are checked for staleness.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	defer func() { metrics.EmitReconcile(r.metrics, stats.Scanned, stats.Completed, stats.Stale) }()

	now := r.now()
	cursor := ""
	for {
		jobs, err := r.repo.ListOpen(ctx, core.ListOpenParams{AfterID: cursor, Limit: r.cfg.BatchSize})
		if err != nil {
			return stats, err
		}
		for _, job := range jobs {
			stats.Scanned++
			cursor = job.ID

			if job.Progress().Done() {
				decision, err := r.coordinator.Reconcile(ctx, job.ID)
				if err != nil {
					stats.Errors++
					r.logger.WarnContext(ctx, "reconcile failed", "job_id", job.ID, "error", err)
					continue
				}
				if decision == DecisionCompleted {
					stats.Completed++
				}
				continue
			}

			if job.Status != model.JobStatusProcessing {
				continue
			}
			idle := now.Sub(job.UpdatedAt)
			if idle < r.cfg.StaleAfter {
				continue
			}
			stats.Stale++
			r.logger.WarnContext(ctx, "job made no progress within the stale window",
				"job_id", job.ID,
				"idle", util.FormatProcessingDuration(idle),
				"successful", job.Successful,
				"failed", job.Failed,
				"total", job.Total,
			)
			r.alerter.NotifyAnomaly(ctx, notify.AnomalyPayload{
				Kind:       notify.KindStuckJob,
				JobID:      job.ID,
				Summary:    "processing job made no progress",
				OccurredAt: now.UTC(),
				Metadata: map[string]string{
					"idle":     util.FormatProcessingDuration(idle),
					"reported": strconv.Itoa(job.Successful + job.Failed),
					"total":    strconv.Itoa(job.Total),
				},
			})
		}
		if len(jobs) < r.cfg.BatchSize {
			return stats, nil
		}
	}
}
