package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/interop/jobgather/internal/errors"
	"github.com/interop/jobgather/internal/observability/statsd"
)

func TestEmitTransition(t *testing.T) {
	var rec statsd.Recorder

	EmitTransition(&rec, TransitionMetric{From: "processing", To: "completed", Result: ResultSuccess, Duration: time.Second})
	EmitTransition(&rec, TransitionMetric{
		From: "processing", To: "completed", Result: ResultError, Err: apperrors.Conflict("lost"),
	})

	samples := rec.Samples(JobTransition)
	require.Len(t, samples, 2)
	assert.Equal(t, "success", samples[0].Tags["result"])
	assert.Equal(t, "conflict", samples[1].Tags["error_class"])

	durations := rec.Samples(JobDuration)
	require.Len(t, durations, 1)
	assert.InDelta(t, 1000.0, durations[0].Value, 0.001)
	assert.Equal(t, "completed", durations[0].Tags["status"])
}

func TestEmitTrigger_ErrorClassOnlyOnError(t *testing.T) {
	var rec statsd.Recorder

	EmitTrigger(&rec, ResultSuccess, 1, errors.New("ignored"))
	EmitTrigger(&rec, ResultError, 3, errors.New("boom"))

	samples := rec.Samples(TriggerOutcome)
	require.Len(t, samples, 2)
	assert.NotContains(t, samples[0].Tags, "error_class")
	assert.Equal(t, "errors_errorstring", samples[1].Tags["error_class"])
}

func TestEmitNilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitPoll(nil, true, 1, time.Millisecond)
		EmitUnitResult(nil, "success")
		EmitFanout(nil, 1, 1)
		EmitReconcile(nil, 1, 1, 1)
	})
}
