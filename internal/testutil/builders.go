// Package testutil provides testing utilities and helpers for the jobgather services.
package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/interop/jobgather/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with a fresh id and a test owner.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			ID:      uuid.NewString(),
			OwnerID: "owner-test",
		},
	}
}

// WithID sets the job id.
func (b *JobRequestBuilder) WithID(id string) *JobRequestBuilder {
	b.req.ID = id
	return b
}

// WithOwner sets the owner.
func (b *JobRequestBuilder) WithOwner(owner string) *JobRequestBuilder {
	b.req.OwnerID = owner
	return b
}

// WithTotal sets the expected unit count.
func (b *JobRequestBuilder) WithTotal(total int) *JobRequestBuilder {
	b.req.Total = &total
	return b
}

// DryRun marks the job as a dry run.
func (b *JobRequestBuilder) DryRun() *JobRequestBuilder {
	b.req.Config.DryRun = true
	return b
}

// WithoutWebhooks disables webhooks for the job.
func (b *JobRequestBuilder) WithoutWebhooks() *JobRequestBuilder {
	b.req.Config.DisableWebhooks = true
	return b
}

// ForceStatusUpdates lets status writes on the job bypass legality checks until it is terminal.
func (b *JobRequestBuilder) ForceStatusUpdates() *JobRequestBuilder {
	b.req.Config.ForceStatusUpdate = true
	return b
}

// Build returns a copy of the request.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	out := *b.req
	if b.req.Total != nil {
		total := *b.req.Total
		out.Total = &total
	}
	return &out
}

// SuccessEvent returns a success event for the unit.
func SuccessEvent(jobID, unitRef string) model.UnitEvent {
	return model.UnitEvent{JobID: jobID, UnitRef: unitRef, Outcome: model.UnitOutcomeSuccess}
}

// FailureEvent returns a failure event for the unit.
func FailureEvent(jobID, unitRef, reason string) model.UnitEvent {
	return model.UnitEvent{
		JobID:        jobID,
		UnitRef:      unitRef,
		Outcome:      model.UnitOutcomeFailure,
		ReasonForDev: reason,
	}
}

// ResultFor builds a result record for one target chunk of a request.
func ResultFor(requestID, targetID string, chunk int, at time.Time) model.ResultRecord {
	return model.ResultRecord{
		ID:             uuid.NewString(),
		RequestID:      requestID,
		TargetID:       targetID,
		RequestChunkID: fmt.Sprintf("%s_%d", requestID, chunk),
		Status:         "ok",
		Payload:        json.RawMessage(fmt.Sprintf(`{"target":%q,"chunk":%d}`, targetID, chunk)),
		CreatedAt:      at,
	}
}

// WorkItems returns n items keyed item-0..item-(n-1) carrying the target id in the payload.
func WorkItems(n int, targetOf func(i int) string) []model.WorkItem {
	items := make([]model.WorkItem, n)
	for i := range items {
		items[i] = model.WorkItem{
			Key:     fmt.Sprintf("item-%d", i),
			Payload: json.RawMessage(fmt.Sprintf(`{"target":{"id":%q}}`, targetOf(i))),
		}
	}
	return items
}
