package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/interop/jobgather/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture) between the services and
// their adapters. Services depend on these interfaces, never on concrete stores or transports.

// ProgressStore is the single source of truth for job counters and status.
// Counters change only through IncrementAndReturn; status only through guarded UpdateStatus.
type ProgressStore interface {
	// IncrementAndReturn atomically adds deltas and returns the row as it was right after the
	// caller's own increment.
	IncrementAndReturn(ctx context.Context, jobID string, deltas model.ProgressDeltas) (model.ProgressSnapshot, error)
	GetByID(ctx context.Context, jobID string) (*model.Job, error)
	// UpdateStatus applies the write only when the stored status equals ExpectedStatus.
	UpdateStatus(ctx context.Context, params UpdateStatusParams) (*model.Job, error)
}

// UpdateStatusParams groups the guarded status write to keep param count ≤3.
type UpdateStatusParams struct {
	JobID          string
	ExpectedStatus model.JobStatus
	Status         model.JobStatus
	// StartedAt/FinishedAt are only stored when the column is still NULL.
	StartedAt  *time.Time
	FinishedAt *time.Time
	Reason     *string
	// Total re-plans the job and zeroes both counters.
	Total *int
	// AllowCounterReset lets Total apply after counting has begun (forced re-plan).
	AllowCounterReset bool
	UpdatedAt         time.Time
}

// JobRepository extends ProgressStore with lifecycle operations outside the counting path.
type JobRepository interface {
	ProgressStore
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	UpdateRuntimeData(ctx context.Context, params UpdateRuntimeDataParams) (*model.Job, error)
}

// UpdateRuntimeDataParams is a compare-and-swap on the job's version.
type UpdateRuntimeDataParams struct {
	JobID           string
	ExpectedVersion int64
	Data            json.RawMessage
}

// ReconcilerRepository lists jobs the reconciler should inspect.
type ReconcilerRepository interface {
	// ListOpen returns waiting and processing jobs.
	ListOpen(ctx context.Context, params ListOpenParams) ([]*model.Job, error)
}

// ListOpenParams groups parameters for ListOpen.
type ListOpenParams struct {
	// UpdatedBefore, when non-zero, limits the scan to jobs idle since that instant.
	UpdatedBefore time.Time
	// AfterID is the keyset cursor.
	AfterID string
	Limit   int
}

// ResultStore reads outcomes written by external workers and gateways.
type ResultStore interface {
	QueryByCorrelationID(ctx context.Context, correlationID string) ([]model.ResultRecord, error)
	// CountByCorrelationID counts distinct authoritative results (target, chunk).
	CountByCorrelationID(ctx context.Context, correlationID string) (int, error)
}

// UnitMappingRepository correlates asynchronous results with jobs.
type UnitMappingRepository interface {
	Create(ctx context.Context, req *model.CreateUnitMappingRequest) (*model.UnitMapping, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*model.UnitMapping, error)
	GetByUnit(ctx context.Context, jobID, unitRef string) (*model.UnitMapping, error)
}

// UnitRecordRepository stores the per-unit outcome payload.
type UnitRecordRepository interface {
	Upsert(ctx context.Context, params UpsertUnitRecordParams) error
}

// UpsertUnitRecordParams groups parameters for UnitRecordRepository.Upsert.
type UpsertUnitRecordParams struct {
	JobID        string
	UnitRef      string
	Outcome      model.UnitOutcome
	ReasonForDev string
}

// UnitEventHandler processes one delivery. A non-nil error asks the bus to redeliver.
type UnitEventHandler func(ctx context.Context, event model.UnitEvent) error

// EventBus delivers "unit finished" events at least once, in no particular order.
type EventBus interface {
	// Subscribe blocks, invoking handler for each delivery until ctx is canceled.
	Subscribe(ctx context.Context, handler UnitEventHandler) error
}

// Finisher is the downstream "job finished" collaborator.
type Finisher interface {
	NotifyJobFinished(ctx context.Context, jobID string) error
}

// WebhookSink delivers status changes to the customer-facing notifier.
type WebhookSink interface {
	SendStatusChange(ctx context.Context, change model.StatusChange) error
}

// DeliveryGuard deduplicates redelivered events across processes.
type DeliveryGuard interface {
	// Claim returns false when another delivery holds or finished the key.
	Claim(ctx context.Context, key string) (bool, error)
	// Complete marks the key as processed for the retention window.
	Complete(ctx context.Context, key string) error
	// Release frees a claimed key so a redelivery can be processed.
	Release(ctx context.Context, key string) error
}

// Dispatcher sends one fan-out request to its target.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.FanoutRequest) error
}
