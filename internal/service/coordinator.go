package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	jobdomain "github.com/interop/jobgather/internal/domain/job"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
	obserrors "github.com/interop/jobgather/internal/observability/errors"
	"github.com/interop/jobgather/internal/observability/notify"
	"github.com/interop/jobgather/internal/util"
)

// Decision is what the coordinator concluded after a unit result.
type Decision string

const (
	// DecisionInFlight: more units are expected, or the total is not known yet.
	DecisionInFlight Decision = "in_flight"
	// DecisionAlreadyTerminal: the job was completed or failed before this result.
	DecisionAlreadyTerminal Decision = "already_terminal"
	// DecisionCompleted: this caller's guarded write completed the job and fired the trigger.
	DecisionCompleted Decision = "completed"
	// DecisionLostRace: another caller completed (or failed) the job first.
	DecisionLostRace Decision = "lost_race"
	// DecisionDeferred: counting finished but the completion write kept failing; the
	// reconciler finishes the job later.
	DecisionDeferred Decision = "deferred"
)

// CoordinatorOptions groups dependencies for Coordinator.
type CoordinatorOptions struct {
	Tracker *ProgressTracker   // Required
	Jobs    *JobService        // Required
	Trigger *BestEffortTrigger // Optional
	Logger  *slog.Logger
	Alerter notify.Alerter
	Now     func() time.Time
	// TransitionAttempts bounds retries of the completion write on transient errors.
	TransitionAttempts int
	RetryInterval      time.Duration
}

// Coordinator decides, from a caller's own post-increment snapshot, whether the job is done
// and makes sure exactly one caller completes it.
type Coordinator struct {
	tracker  *ProgressTracker
	jobs     *JobService
	trigger  *BestEffortTrigger
	logger   *slog.Logger
	alerter  notify.Alerter
	now      func() time.Time
	attempts int
	retry    time.Duration
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Tracker == nil {
		return nil, errors.New("ProgressTracker is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	attempts := opts.TransitionAttempts
	if attempts < 1 {
		attempts = 5
	}
	retry := opts.RetryInterval
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	return &Coordinator{
		tracker:  opts.Tracker,
		jobs:     opts.Jobs,
		trigger:  opts.Trigger,
		logger:   componentLogger(opts.Logger, "completion_coordinator"),
		alerter:  alerterOrNop(opts.Alerter),
		now:      clockOrNow(opts.Now),
		attempts: attempts,
		retry:    retry,
	}, nil
}

// OnUnitResult counts outcome and completes the job when this increment reached the total.
// An error is returned only when the increment itself failed, so the caller may redeliver.
// Failures after the increment are logged and alerted and yield DecisionDeferred.
func (c *Coordinator) OnUnitResult(ctx context.Context, jobID string, outcome model.UnitOutcome) (Decision, error) {
	snap, err := c.tracker.Increment(ctx, jobID, outcome)
	if err != nil {
		return "", err
	}
	if snap.Total >= 0 && snap.Reported() > snap.Total {
		c.alerter.NotifyAnomaly(ctx, notify.AnomalyPayload{
			Kind:       notify.KindTallyOverflow,
			JobID:      jobID,
			Summary:    "job counted more units than its total",
			OccurredAt: c.now().UTC(),
			Metadata: map[string]string{
				"total":    strconv.Itoa(snap.Total),
				"reported": strconv.Itoa(snap.Reported()),
			},
		})
	}

	decision, err := c.decide(ctx, snap)
	if err != nil {
		c.logger.ErrorContext(ctx, "job reached its total but could not be completed",
			"job_id", jobID,
			"error", err,
		)
		c.alerter.NotifyAnomaly(context.WithoutCancel(ctx), notify.AnomalyPayload{
			Kind:       notify.KindCompletionFailed,
			JobID:      jobID,
			Summary:    "completion write failed after the final unit was counted",
			Error:      err.Error(),
			ErrorClass: obserrors.Classify(err),
			OccurredAt: c.now().UTC(),
		})
		return DecisionDeferred, nil
	}
	return decision, nil
}

// Reconcile applies the completion decision to the stored counters without counting a unit.
func (c *Coordinator) Reconcile(ctx context.Context, jobID string) (Decision, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	return c.decide(ctx, job.Progress())
}

func (c *Coordinator) decide(ctx context.Context, snap model.ProgressSnapshot) (Decision, error) {
	if !snap.Done() {
		return DecisionInFlight, nil
	}
	if snap.Status.Terminal() {
		return DecisionAlreadyTerminal, nil
	}

	res, err := c.completeWithRetry(ctx, snap)
	if err != nil {
		if apperrors.IsInvalidTransition(err) {
			// A concurrent writer moved the job to a terminal state we cannot leave.
			if job, getErr := c.jobs.Get(ctx, snap.ID); getErr == nil && job.Status.Terminal() {
				return DecisionLostRace, nil
			}
		}
		return "", err
	}
	if !res.TerminalEdge {
		return DecisionLostRace, nil
	}

	c.logger.InfoContext(ctx, "job completed",
		"job_id", snap.ID,
		"successful", res.Job.Successful,
		"failed", res.Job.Failed,
		"total", res.Job.Total,
		"runtime", util.FormatProcessingDuration(util.JobRuntime(res.Job.StartedAt, res.Job.FinishedAt, c.now())),
	)
	if c.trigger != nil {
		c.trigger.Fire(ctx, res.Job)
	}
	return DecisionCompleted, nil
}

// completeWithRetry promotes waiting jobs through processing so both edges are honored, then
// completes. Transient store errors are retried with exponential backoff.
func (c *Coordinator) completeWithRetry(ctx context.Context, snap model.ProgressSnapshot) (jobdomain.TransitionResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry
	b.MaxInterval = 20 * c.retry

	return backoff.Retry(ctx, func() (jobdomain.TransitionResult, error) {
		if snap.Status == model.JobStatusWaiting {
			if _, err := c.jobs.Initialize(ctx, snap.ID); err != nil && !apperrors.IsInvalidTransition(err) {
				return jobdomain.TransitionResult{}, permanentUnlessTransient(err)
			}
		}
		res, err := c.jobs.Complete(ctx, snap.ID, false)
		if err != nil {
			return jobdomain.TransitionResult{}, permanentUnlessTransient(err)
		}
		return res, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.WarnContext(ctx, "completion write failed, retrying",
				"job_id", snap.ID,
				"error", err,
				"retry_in", next,
			)
		}),
	)
}

// permanentUnlessTransient stops retries for domain errors that another attempt cannot fix.
func permanentUnlessTransient(err error) error {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotFound, apperrors.ErrCodeValidation, apperrors.ErrCodeInvalidTransition:
		return backoff.Permanent(err)
	}
	if errors.Is(err, context.Canceled) {
		return backoff.Permanent(err)
	}
	return err
}
