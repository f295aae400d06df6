// Package notify defines the alert payload shared by every alerting sink.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// AnomalyKind names a condition operators must look at.
type AnomalyKind string

const (
	// KindPollIncomplete: a completion poll hit its deadline with results missing.
	KindPollIncomplete AnomalyKind = "poll_incomplete"
	// KindMappingMissing: a unit event could not be correlated to a job.
	KindMappingMissing AnomalyKind = "mapping_missing"
	// KindTriggerFailed: the downstream finisher rejected or never answered.
	KindTriggerFailed AnomalyKind = "trigger_failed"
	// KindInvalidTarget: fan-out items could not be routed to a target.
	KindInvalidTarget AnomalyKind = "invalid_target"
	// KindTallyOverflow: a job counted more units than its total.
	KindTallyOverflow AnomalyKind = "tally_overflow"
	// KindStuckJob: a processing job made no progress within the stale window.
	KindStuckJob AnomalyKind = "stuck_job"
	// KindCompletionFailed: counting finished but the job could not be moved to completed.
	KindCompletionFailed AnomalyKind = "completion_failed"
)

// DefaultSeverity returns the severity used when a payload does not set one.
func (k AnomalyKind) DefaultSeverity() string {
	switch k {
	case KindTriggerFailed, KindCompletionFailed, KindStuckJob:
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// AnomalyPayload is the canonical alert body.
type AnomalyPayload struct {
	Kind          AnomalyKind
	JobID         string
	CorrelationID string
	Summary       string
	Error         string
	ErrorClass    string
	Severity      string
	OccurredAt    time.Time
	Metadata      map[string]string
}

// DedupKey groups repeated alerts about the same condition.
func (p AnomalyPayload) DedupKey() string {
	subject := p.JobID
	if subject == "" {
		subject = p.CorrelationID
	}
	if subject == "" {
		return string(p.Kind)
	}
	return string(p.Kind) + ":" + subject
}

// Sink describes a destination capable of consuming anomaly alerts.
type Sink interface {
	SendAnomaly(ctx context.Context, payload AnomalyPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload AnomalyPayload) error

// SendAnomaly implements the Sink interface.
func (f SinkFunc) SendAnomaly(ctx context.Context, payload AnomalyPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

// Alerter is what services call; it never returns an error because alerting must not
// change the outcome of the operation that raised it.
type Alerter interface {
	NotifyAnomaly(ctx context.Context, payload AnomalyPayload)
}

// NopAlerter drops every alert.
type NopAlerter struct{}

// NotifyAnomaly implements Alerter.
func (NopAlerter) NotifyAnomaly(context.Context, AnomalyPayload) {}
