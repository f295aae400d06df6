package model

import "time"

// StatusChange is delivered to webhook subscribers on the processing and terminal edges.
type StatusChange struct {
	JobID      string     `json:"job_id"`
	OwnerID    string     `json:"owner_id"`
	OldStatus  JobStatus  `json:"old_status"`
	NewStatus  JobStatus  `json:"new_status"`
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	DryRun     bool       `json:"dry_run"`
	Reason     *string    `json:"reason,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewStatusChange builds the webhook body for a job that moved from old to its current status.
func NewStatusChange(job *Job, old JobStatus, at time.Time) StatusChange {
	return StatusChange{
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		OldStatus:  old,
		NewStatus:  job.Status,
		Total:      job.Total,
		Successful: job.Successful,
		Failed:     job.Failed,
		DryRun:     job.Config.DryRun,
		Reason:     job.Reason,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		OccurredAt: at,
	}
}
