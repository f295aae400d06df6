//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusWaiting.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.False(t, JobStatus("pending").Valid())
}

func TestJobStatus_UnmarshalText(t *testing.T) {
	var s JobStatus
	require.NoError(t, s.UnmarshalText([]byte(" Processing ")))
	assert.Equal(t, JobStatusProcessing, s)
	require.Error(t, s.UnmarshalText([]byte("running")))
}

func TestUnitOutcome_UnmarshalJSON(t *testing.T) {
	var ev UnitEvent
	require.NoError(t, json.Unmarshal([]byte(`{"job_id":"j","unit_ref":"1","outcome":"failed"}`), &ev))
	assert.Equal(t, UnitOutcomeFailure, ev.Outcome)
	assert.Equal(t, ProgressDeltas{Failed: 1}, ev.Outcome.Deltas())
	assert.Equal(t, ProgressDeltas{Successful: 1}, UnitOutcomeSuccess.Deltas())

	err := json.Unmarshal([]byte(`{"outcome":"maybe"}`), &ev)
	require.Error(t, err)
}

func TestUnitEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   UnitEvent
		wantErr bool
	}{
		{"job and unit", UnitEvent{JobID: "j", UnitRef: "1", Outcome: UnitOutcomeSuccess}, false},
		{"correlation only", UnitEvent{CorrelationID: "c", Outcome: UnitOutcomeFailure}, false},
		{"missing unit ref", UnitEvent{JobID: "j", Outcome: UnitOutcomeSuccess}, true},
		{"bad outcome", UnitEvent{JobID: "j", UnitRef: "1", Outcome: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUnitEvent_DedupKey(t *testing.T) {
	assert.Equal(t, "corr:abc", (&UnitEvent{CorrelationID: "abc", JobID: "j"}).DedupKey())
	assert.Equal(t, "unit:j:7", (&UnitEvent{JobID: "j", UnitRef: "7"}).DedupKey())
}

func TestProgressDeltas_Validate(t *testing.T) {
	assert.NoError(t, ProgressDeltas{Successful: 2}.Validate())
	assert.Error(t, ProgressDeltas{}.Validate())
	assert.Error(t, ProgressDeltas{Successful: 1, Failed: -1}.Validate())
}

func TestProgressSnapshot_Done(t *testing.T) {
	assert.False(t, ProgressSnapshot{Total: UnknownTotal, Successful: 4}.Done())
	assert.False(t, ProgressSnapshot{Total: 3, Successful: 1, Failed: 1}.Done())
	assert.True(t, ProgressSnapshot{Total: 3, Successful: 2, Failed: 1}.Done())
	assert.True(t, ProgressSnapshot{Total: 0}.Done())
}

func TestJob_Clone(t *testing.T) {
	now := time.Now()
	reason := "gateway down"
	j := &Job{ID: "j", StartedAt: &now, Reason: &reason, RuntimeData: json.RawMessage(`{"a":1}`)}

	c := j.Clone()
	*c.StartedAt = now.Add(time.Hour)
	*c.Reason = "other"
	c.RuntimeData[0] = '['

	assert.Equal(t, now, *j.StartedAt)
	assert.Equal(t, "gateway down", *j.Reason)
	assert.JSONEq(t, `{"a":1}`, string(j.RuntimeData))
	assert.Nil(t, (*Job)(nil).Clone())
}

func TestCreateJobRequest_Validate(t *testing.T) {
	negative := -1
	three := 3
	tests := []struct {
		name    string
		req     CreateJobRequest
		wantErr bool
	}{
		{"minimal", CreateJobRequest{OwnerID: "cx"}, false},
		{"with total", CreateJobRequest{OwnerID: "cx", Total: &three}, false},
		{"missing owner", CreateJobRequest{}, true},
		{"negative total", CreateJobRequest{OwnerID: "cx", Total: &negative}, true},
		{"bad id", CreateJobRequest{OwnerID: "cx", ID: "nope"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResultRecord_AuthorityKey(t *testing.T) {
	a := ResultRecord{TargetID: "t1", RequestChunkID: "r_1"}
	b := ResultRecord{TargetID: "t1", RequestChunkID: "r_2"}
	c := ResultRecord{TargetID: "t1", RequestChunkID: "r_1", Status: "error"}
	assert.NotEqual(t, a.AuthorityKey(), b.AuthorityKey())
	assert.Equal(t, a.AuthorityKey(), c.AuthorityKey())
}
