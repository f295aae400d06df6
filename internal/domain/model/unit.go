package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnitOutcome is the reported result of one dispatched unit.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type UnitOutcome string

const (
	// UnitOutcomeSuccess counts towards Job.Successful.
	UnitOutcomeSuccess UnitOutcome = "success"
	// UnitOutcomeFailure counts towards Job.Failed.
	UnitOutcomeFailure UnitOutcome = "failure"
)

// Valid returns true if the outcome is known.
func (o UnitOutcome) Valid() bool {
	return o == UnitOutcomeSuccess || o == UnitOutcomeFailure
}

// UnmarshalText accepts "success"/"failure" (and "failed"/"successful" aliases sent by older workers).
func (o *UnitOutcome) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "success", "successful", "succeeded":
		*o = UnitOutcomeSuccess
	case "failure", "failed":
		*o = UnitOutcomeFailure
	default:
		return fmt.Errorf("invalid UnitOutcome: %q", string(text))
	}
	return nil
}

// Deltas returns the counter increments for this outcome.
func (o UnitOutcome) Deltas() ProgressDeltas {
	if o == UnitOutcomeFailure {
		return ProgressDeltas{Failed: 1}
	}
	return ProgressDeltas{Successful: 1}
}

// ProgressDeltas are the amounts added to a job's counters in one atomic increment.
type ProgressDeltas struct {
	Successful int
	Failed     int
}

// Validate rejects empty or negative deltas.
func (d ProgressDeltas) Validate() error {
	if d.Successful < 0 || d.Failed < 0 {
		return errors.New("deltas must be non-negative")
	}
	if d.Successful == 0 && d.Failed == 0 {
		return errors.New("at least one delta is required")
	}
	return nil
}

// UnitMapping correlates one asynchronous result with a job and a logical unit.
type UnitMapping struct {
	ID            string    `json:"id"             db:"id"`
	JobID         string    `json:"job_id"         db:"job_id"`
	UnitRef       string    `json:"unit_ref"       db:"unit_ref"`
	CorrelationID string    `json:"correlation_id" db:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
}

// CreateUnitMappingRequest registers a dispatched unit.
type CreateUnitMappingRequest struct {
	JobID         string `json:"job_id"`
	UnitRef       string `json:"unit_ref"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Validate validates the mapping request.
func (r *CreateUnitMappingRequest) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return errors.New("job id is required")
	}
	if strings.TrimSpace(r.UnitRef) == "" {
		return errors.New("unit ref is required")
	}
	return nil
}

// UnitEvent is the message a worker publishes when a unit finished.
type UnitEvent struct {
	JobID         string      `json:"job_id"`
	UnitRef       string      `json:"unit_ref"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Outcome       UnitOutcome `json:"outcome"`
	ReasonForDev  string      `json:"reason_for_dev,omitempty"`
}

// Validate checks the event carries enough to resolve a mapping.
func (e *UnitEvent) Validate() error {
	if !e.Outcome.Valid() {
		return fmt.Errorf("invalid outcome %q", e.Outcome)
	}
	if e.CorrelationID != "" {
		return nil
	}
	if e.JobID == "" || e.UnitRef == "" {
		return errors.New("job id and unit ref are required without a correlation id")
	}
	return nil
}

// DedupKey identifies the delivery for at-least-once deduplication.
func (e *UnitEvent) DedupKey() string {
	if e.CorrelationID != "" {
		return "corr:" + e.CorrelationID
	}
	return "unit:" + e.JobID + ":" + e.UnitRef
}

// UnitRecord is the persisted per-unit outcome.
type UnitRecord struct {
	JobID        string      `json:"job_id"                   db:"job_id"`
	UnitRef      string      `json:"unit_ref"                 db:"unit_ref"`
	Outcome      UnitOutcome `json:"outcome"                  db:"outcome"`
	ReasonForDev *string     `json:"reason_for_dev,omitempty" db:"reason_for_dev"`
	UpdatedAt    time.Time   `json:"updated_at"               db:"updated_at"`
}
