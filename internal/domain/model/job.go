// Package model defines the core data types shared by the job-completion engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current status of a tracked job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusWaiting indicates a job was created but its units were not dispatched yet.
	JobStatusWaiting JobStatus = "waiting"
	// JobStatusProcessing indicates units are in flight.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates every expected unit reported back.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job was aborted.
	JobStatusFailed JobStatus = "failed"
)

// UnknownTotal marks a job whose expected unit count is not known yet.
const UnknownTotal = -1

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusWaiting || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether no further transition is allowed without force.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// UnmarshalText implements encoding.TextUnmarshaler for CLI and env parsing.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// JobConfig carries per-job behaviour flags.
type JobConfig struct {
	DryRun            bool `json:"dry_run"`
	DisableWebhooks   bool `json:"disable_webhooks"`
	ForceStatusUpdate bool `json:"force_status_update"`
}

// Job is a unit of work tracked to completion.
type Job struct {
	ID          string          `json:"id"                    db:"id"`
	OwnerID     string          `json:"owner_id"              db:"owner_id"`
	Status      JobStatus       `json:"status"                db:"status"`
	Total       int             `json:"total"                 db:"total"`
	Successful  int             `json:"successful"            db:"successful"`
	Failed      int             `json:"failed"                db:"failed"`
	Config      JobConfig       `json:"config"                db:"config"`
	Reason      *string         `json:"reason,omitempty"      db:"reason"`
	RuntimeData json.RawMessage `json:"runtime_data"          db:"runtime_data"`
	Version     int64           `json:"version"               db:"version"`
	CreatedAt   time.Time       `json:"created_at"            db:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"  db:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	UpdatedAt   time.Time       `json:"updated_at"            db:"updated_at"`
}

// HasTotal reports whether the expected unit count is known.
func (j *Job) HasTotal() bool {
	return j.Total >= 0
}

// Progress returns the counter view of the job.
func (j *Job) Progress() ProgressSnapshot {
	return ProgressSnapshot{
		ID:         j.ID,
		Status:     j.Status,
		Successful: j.Successful,
		Failed:     j.Failed,
		Total:      j.Total,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Reason = clonePtr(j.Reason)
	out.StartedAt = clonePtr(j.StartedAt)
	out.FinishedAt = clonePtr(j.FinishedAt)
	if j.RuntimeData != nil {
		out.RuntimeData = append(json.RawMessage(nil), j.RuntimeData...)
	}
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ProgressSnapshot is the authoritative post-increment view of a job's counters.
type ProgressSnapshot struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Total      int       `json:"total"`
}

// Reported returns successful + failed.
func (p ProgressSnapshot) Reported() int {
	return p.Successful + p.Failed
}

// Done reports whether every expected unit has been counted.
func (p ProgressSnapshot) Done() bool {
	return p.Total >= 0 && p.Reported() >= p.Total
}

// CreateJobRequest represents a request to create a new tracked job.
type CreateJobRequest struct {
	ID      string    `json:"id,omitempty"`
	OwnerID string    `json:"owner_id"`
	Total   *int      `json:"total,omitempty"`
	Config  JobConfig `json:"config"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("owner id is required")
	}
	if r.ID != "" {
		if _, err := uuid.Parse(r.ID); err != nil {
			return fmt.Errorf("invalid job id: %w", err)
		}
	}
	if r.Total != nil && *r.Total < 0 {
		return errors.New("total must be >= 0")
	}
	return nil
}
