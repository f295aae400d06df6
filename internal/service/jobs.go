package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/interop/jobgather/internal/core"
	jobdomain "github.com/interop/jobgather/internal/domain/job"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
	"github.com/interop/jobgather/internal/observability/metrics"
	"github.com/interop/jobgather/internal/observability/statsd"
	"github.com/interop/jobgather/internal/util"
)

const defaultConflictRetries = 3

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo     core.JobRepository // Required
	Webhooks core.WebhookSink   // Optional: status-change deliveries
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Now      func() time.Time
	// ConflictRetries bounds how often a status write is re-read and retried after losing
	// the guarded update to a concurrent writer.
	ConflictRetries int
}

// JobService owns job lifecycle operations. Every status write goes through the state
// machine and is persisted with a guarded update on the prior status.
type JobService struct {
	repo            core.JobRepository
	webhooks        core.WebhookSink
	logger          *slog.Logger
	metrics         statsd.Sink
	now             func() time.Time
	conflictRetries int
}

// NewJobService constructs a JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	retries := opts.ConflictRetries
	if retries <= 0 {
		retries = defaultConflictRetries
	}
	return &JobService{
		repo:            opts.Repo,
		webhooks:        opts.Webhooks,
		logger:          componentLogger(opts.Logger, "job_service"),
		metrics:         opts.Metrics,
		now:             clockOrNow(opts.Now),
		conflictRetries: retries,
	}, nil
}

// Create registers a job in waiting.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "job created", "job_id", job.ID, "owner_id", job.OwnerID, "total", job.Total)
	return job, nil
}

// Get returns a job by id.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return s.repo.GetByID(ctx, jobID)
}

// UpdateStatus applies req to the stored job. A guarded write that loses to a concurrent
// writer is re-read and re-validated, up to the configured number of retries; the final
// result reflects the state the write was decided against. Webhooks fire only on the
// processing and terminal edges, and never for jobs with webhooks disabled.
func (s *JobService) UpdateStatus(
	ctx context.Context,
	jobID string,
	req jobdomain.TransitionRequest,
) (jobdomain.TransitionResult, error) {
	for attempt := 0; ; attempt++ {
		res, lostRace, err := s.tryUpdateStatus(ctx, jobID, req)
		if err == nil {
			return res, nil
		}
		if !lostRace || attempt >= s.conflictRetries {
			return jobdomain.TransitionResult{}, err
		}
		s.logger.DebugContext(ctx, "status write lost a race, retrying",
			"job_id", jobID,
			"status", req.Status,
			"attempt", attempt+1,
		)
	}
}

func (s *JobService) tryUpdateStatus(
	ctx context.Context,
	jobID string,
	req jobdomain.TransitionRequest,
) (jobdomain.TransitionResult, bool, error) {
	current, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return jobdomain.TransitionResult{}, false, err
	}
	now := s.now().UTC()
	forced := jobdomain.Forced(current, req)

	res, err := jobdomain.Transition(current, req, now)
	if err != nil {
		metrics.EmitTransition(s.metrics, metrics.TransitionMetric{
			From: string(current.Status), To: string(req.Status), Result: metrics.ResultError, Forced: forced, Err: err,
		})
		return jobdomain.TransitionResult{}, false, err
	}
	if !res.Changed {
		return res, false, nil
	}

	params := core.UpdateStatusParams{
		JobID:             jobID,
		ExpectedStatus:    res.From,
		Status:            res.Job.Status,
		Total:             req.Total,
		AllowCounterReset: req.Force,
		UpdatedAt:         now,
	}
	if res.ProcessingEdge {
		params.StartedAt = res.Job.StartedAt
	}
	if res.TerminalEdge {
		params.FinishedAt = res.Job.FinishedAt
	}
	if res.Job.Status == model.JobStatusFailed && res.From != model.JobStatusFailed {
		params.Reason = res.Job.Reason
	}

	stored, err := s.repo.UpdateStatus(ctx, params)
	if err != nil {
		if apperrors.IsConflict(err) {
			return jobdomain.TransitionResult{}, true, err
		}
		metrics.EmitTransition(s.metrics, metrics.TransitionMetric{
			From: string(res.From), To: string(req.Status), Result: metrics.ResultError, Forced: forced, Err: err,
		})
		return jobdomain.TransitionResult{}, false, err
	}
	res.Job = stored

	tm := metrics.TransitionMetric{
		From: string(res.From), To: string(stored.Status), Result: metrics.ResultSuccess, Forced: forced,
	}
	if res.TerminalEdge {
		tm.Duration = util.JobRuntime(stored.StartedAt, stored.FinishedAt, now)
	}
	metrics.EmitTransition(s.metrics, tm)

	s.logger.InfoContext(ctx, "job status updated",
		"job_id", jobID,
		"from", res.From,
		"to", stored.Status,
		"forced", forced,
		"counters_reset", res.CountersReset,
	)
	if res.Edge() {
		s.sendWebhook(ctx, stored, res.From, now)
	}
	return res, false, nil
}

func (s *JobService) sendWebhook(ctx context.Context, job *model.Job, from model.JobStatus, at time.Time) {
	if s.webhooks == nil || job.Config.DisableWebhooks {
		return
	}
	change := model.NewStatusChange(job, from, at)
	if err := s.webhooks.SendStatusChange(ctx, change); err != nil {
		s.logger.WarnContext(ctx, "status webhook failed",
			"job_id", job.ID,
			"new_status", change.NewStatus,
			"error", err,
		)
	}
}

// Initialize moves a waiting job to processing.
func (s *JobService) Initialize(ctx context.Context, jobID string) (*model.Job, error) {
	res, err := s.UpdateStatus(ctx, jobID, jobdomain.TransitionRequest{Status: model.JobStatusProcessing})
	if err != nil {
		return nil, err
	}
	return res.Job, nil
}

// SetTotal re-plans the job with a new expected unit count and zeroes its counters. Without
// force the re-plan is refused once any unit has been counted.
func (s *JobService) SetTotal(ctx context.Context, jobID string, total int, force bool) (*model.Job, error) {
	current, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	res, err := s.UpdateStatus(ctx, jobID, jobdomain.TransitionRequest{
		Status: current.Status,
		Total:  &total,
		Force:  force,
	})
	if err != nil {
		return nil, err
	}
	return res.Job, nil
}

// Complete moves a processing job to completed.
func (s *JobService) Complete(ctx context.Context, jobID string, force bool) (jobdomain.TransitionResult, error) {
	return s.UpdateStatus(ctx, jobID, jobdomain.TransitionRequest{Status: model.JobStatusCompleted, Force: force})
}

// Fail moves a processing job to failed with a reason.
func (s *JobService) Fail(ctx context.Context, jobID, reason string, force bool) (jobdomain.TransitionResult, error) {
	req := jobdomain.TransitionRequest{Status: model.JobStatusFailed, Force: force}
	if r := strings.TrimSpace(reason); r != "" {
		req.Reason = &r
	}
	return s.UpdateStatus(ctx, jobID, req)
}

// UpdateRuntimeData replaces the job's runtime data when expectedVersion is current.
func (s *JobService) UpdateRuntimeData(
	ctx context.Context,
	jobID string,
	expectedVersion int64,
	data json.RawMessage,
) (*model.Job, error) {
	job, err := s.repo.UpdateRuntimeData(ctx, core.UpdateRuntimeDataParams{
		JobID:           jobID,
		ExpectedVersion: expectedVersion,
		Data:            data,
	})
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "runtime data updated", "job_id", jobID, "version", job.Version)
	return job, nil
}
