package job

import (
	"time"

	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
)

// legalTransitions lists the non-forced moves. Same-status requests are handled separately.
var legalTransitions = map[model.JobStatus][]model.JobStatus{
	model.JobStatusWaiting:    {model.JobStatusProcessing},
	model.JobStatusProcessing: {model.JobStatusCompleted, model.JobStatusFailed},
}

// TransitionRequest describes a requested status change.
type TransitionRequest struct {
	Status model.JobStatus
	// Total, when set, re-plans the job: counters are reset to zero.
	Total *int
	// Force bypasses the legality table and allows a re-plan after counting started.
	// Reserved for trusted callers correcting state.
	Force bool
	// Reason is recorded when entering failed.
	Reason *string
}

// TransitionResult is the outcome of applying a TransitionRequest.
type TransitionResult struct {
	Job *model.Job
	// From is the status before the transition.
	From model.JobStatus
	// Changed is false for same-status no-ops without a total update.
	Changed bool
	// ProcessingEdge is true the first time the job enters processing.
	ProcessingEdge bool
	// TerminalEdge is true the first time the job enters completed or failed.
	TerminalEdge bool
	// CountersReset is true when Total was applied.
	CountersReset bool
}

// Edge reports whether any first-entry side effect happened.
func (r TransitionResult) Edge() bool {
	return r.ProcessingEdge || r.TerminalEdge
}

// CanTransition reports whether from → to is legal without force.
func CanTransition(from, to model.JobStatus) bool {
	if from == to {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Forced reports whether req may skip the legality table for job. The job-level
// ForceStatusUpdate flag only applies while the job is not terminal: leaving completed or
// failed always needs an explicit req.Force.
func Forced(job *model.Job, req TransitionRequest) bool {
	if req.Force {
		return true
	}
	return job != nil && job.Config.ForceStatusUpdate && !job.Status.Terminal()
}

// Transition validates req against job and returns an updated copy; job is never mutated.
// Timestamps are stamped only on the first entry into a state, so repeated or forced
// transitions keep the original startedAt/finishedAt.
func Transition(job *model.Job, req TransitionRequest, now time.Time) (TransitionResult, error) {
	if job == nil {
		return TransitionResult{}, apperrors.Validation("job is required")
	}
	if !req.Status.Valid() {
		return TransitionResult{}, apperrors.ValidationField("status", "unknown status "+string(req.Status))
	}
	if req.Total != nil && *req.Total < 0 {
		return TransitionResult{}, apperrors.ValidationField("total", "total must be >= 0")
	}

	from := job.Status
	if !Forced(job, req) && !CanTransition(from, req.Status) {
		return TransitionResult{}, apperrors.InvalidTransitionf(
			"job %s: cannot move from %s to %s", job.ID, from, req.Status)
	}
	// Counters reset mid-run only on an explicit re-plan, never through the job-level flag.
	if req.Total != nil && !req.Force && job.Successful+job.Failed > 0 {
		return TransitionResult{}, apperrors.Conflictf(
			"job %s: total cannot change after %d units were counted", job.ID, job.Successful+job.Failed)
	}

	next := job.Clone()
	res := TransitionResult{Job: next, From: from}

	if req.Total != nil {
		next.Total = *req.Total
		next.Successful = 0
		next.Failed = 0
		res.CountersReset = true
		res.Changed = true
	}

	if from != req.Status {
		next.Status = req.Status
		res.Changed = true
	}

	entered := from != next.Status
	if entered && next.Status == model.JobStatusProcessing && next.StartedAt == nil {
		ts := now
		next.StartedAt = &ts
		res.ProcessingEdge = true
	}
	if entered && next.Status.Terminal() && next.FinishedAt == nil {
		ts := now
		next.FinishedAt = &ts
		res.TerminalEdge = true
	}
	if next.Status == model.JobStatusFailed && req.Reason != nil && from != model.JobStatusFailed {
		reason := *req.Reason
		next.Reason = &reason
		res.Changed = true
	}

	if res.Changed {
		next.UpdatedAt = now
	}
	return res, nil
}
