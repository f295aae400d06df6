package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/interop/jobgather/config"
	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
	obserrors "github.com/interop/jobgather/internal/observability/errors"
	"github.com/interop/jobgather/internal/observability/metrics"
	"github.com/interop/jobgather/internal/observability/notify"
	"github.com/interop/jobgather/internal/observability/statsd"
	"github.com/interop/jobgather/internal/util"
)

// TriggerOutcome reports what happened to a downstream finisher call. A non-nil Err means
// the finisher was never reached successfully; the job stays completed regardless.
type TriggerOutcome struct {
	Attempts int
	Skipped  bool
	Err      error
}

// BestEffortTriggerOptions groups dependencies for BestEffortTrigger.
type BestEffortTriggerOptions struct {
	Finisher core.Finisher // Optional: nil disables the trigger
	Config   config.TriggerConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Alerter  notify.Alerter
	Now      func() time.Time
}

// BestEffortTrigger notifies the finisher after a job completes, with bounded retries.
type BestEffortTrigger struct {
	finisher core.Finisher
	cfg      config.TriggerConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	alerter  notify.Alerter
	now      func() time.Time
}

// NewBestEffortTrigger constructs a BestEffortTrigger.
func NewBestEffortTrigger(opts BestEffortTriggerOptions) *BestEffortTrigger {
	cfg := opts.Config
	cfg.Sanitize()
	return &BestEffortTrigger{
		finisher: opts.Finisher,
		cfg:      cfg,
		logger:   componentLogger(opts.Logger, "finish_trigger"),
		metrics:  opts.Metrics,
		alerter:  alerterOrNop(opts.Alerter),
		now:      clockOrNow(opts.Now),
	}
}

// Fire calls the finisher for job. Dry-run jobs and a disabled trigger are skipped.
// Failures are logged, counted and alerted; they are reported in the outcome, never returned.
func (t *BestEffortTrigger) Fire(ctx context.Context, job *model.Job) TriggerOutcome {
	if t == nil || t.finisher == nil || job.Config.DryRun {
		metrics.EmitTrigger(t.sink(), metrics.ResultNoop, 0, nil)
		return TriggerOutcome{Skipped: true}
	}
	log := t.logger.With("job_id", job.ID)

	if t.cfg.InitialDelay > 0 {
		timer := time.NewTimer(t.cfg.InitialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return t.fail(ctx, log, job, TriggerOutcome{Err: ctx.Err()})
		case <-timer.C:
		}
	}

	policy := util.RetryPolicy{
		MaxAttempts:     t.cfg.MaxAttempts,
		InitialInterval: t.cfg.InitialInterval,
		MaxInterval:     t.cfg.MaxInterval,
	}
	out := TriggerOutcome{}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		out.Attempts++
		callCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
		err := t.finisher.NotifyJobFinished(callCtx, job.ID)
		if err != nil && !retryableTriggerError(ctx, err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy.NewBackOff()),
		backoff.WithMaxTries(policy.Tries()),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WarnContext(ctx, "finisher call failed, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		out.Err = err
		return t.fail(ctx, log, job, out)
	}

	metrics.EmitTrigger(t.metrics, metrics.ResultSuccess, out.Attempts, nil)
	log.InfoContext(ctx, "finisher notified", "attempts", out.Attempts)
	return out
}

func (t *BestEffortTrigger) fail(ctx context.Context, log *slog.Logger, job *model.Job, out TriggerOutcome) TriggerOutcome {
	metrics.EmitTrigger(t.metrics, metrics.ResultError, out.Attempts, out.Err)
	log.ErrorContext(ctx, "finisher notification failed", "attempts", out.Attempts, "error", out.Err)
	t.alerter.NotifyAnomaly(context.WithoutCancel(ctx), notify.AnomalyPayload{
		Kind:       notify.KindTriggerFailed,
		JobID:      job.ID,
		Summary:    "job completed but the finisher was not notified",
		Error:      out.Err.Error(),
		ErrorClass: obserrors.Classify(out.Err),
		OccurredAt: t.now().UTC(),
		Metadata:   map[string]string{"attempts": strconv.Itoa(out.Attempts)},
	})
	return out
}

func (t *BestEffortTrigger) sink() statsd.Sink {
	if t == nil {
		return nil
	}
	return t.metrics
}

// retryableTriggerError treats caller cancellation and validation failures as final.
func retryableTriggerError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	if apperrors.IsValidation(err) || apperrors.IsNotFound(err) {
		return false
	}
	var statusErr *util.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}
