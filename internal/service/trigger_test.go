package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
	"github.com/interop/jobgather/internal/mocks"
	"github.com/interop/jobgather/internal/observability/metrics"
	"github.com/interop/jobgather/internal/observability/notify"
	"github.com/interop/jobgather/internal/observability/statsd"
	"github.com/interop/jobgather/internal/util"
)

func TestBestEffortTrigger_RetriesThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	finisher := mocks.NewMockFinisher(ctrl)
	rec := &statsd.Recorder{}
	trigger := NewBestEffortTrigger(BestEffortTriggerOptions{Finisher: finisher, Config: fastTriggerConfig(), Metrics: rec})

	gomock.InOrder(
		finisher.EXPECT().NotifyJobFinished(gomock.Any(), "job-1").Return(errors.New("timeout")),
		finisher.EXPECT().NotifyJobFinished(gomock.Any(), "job-1").Return(nil),
	)

	out := trigger.Fire(context.Background(), &model.Job{ID: "job-1"})
	require.NoError(t, out.Err)
	assert.Equal(t, 2, out.Attempts)
	assert.False(t, out.Skipped)
	assert.Equal(t, int64(1), rec.Total(metrics.TriggerOutcome, map[string]string{"result": "success"}))
}

func TestBestEffortTrigger_PermanentErrorsStopRetrying(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "client error", err: &util.HTTPStatusError{Target: "finisher", StatusCode: 400}},
		{name: "unknown job", err: apperrors.NotFound("job not found")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := &recordingAlerter{}
			finisher := &countingFinisher{errFn: func(int) error { return tt.err }}
			trigger := NewBestEffortTrigger(BestEffortTriggerOptions{Finisher: finisher, Config: fastTriggerConfig(), Alerter: alerts})

			out := trigger.Fire(context.Background(), &model.Job{ID: "job-1"})
			require.Error(t, out.Err)
			assert.Equal(t, 1, out.Attempts)
			assert.Equal(t, []notify.AnomalyKind{notify.KindTriggerFailed}, alerts.Kinds())
		})
	}
}

func TestBestEffortTrigger_Skips(t *testing.T) {
	finisher := &countingFinisher{}
	trigger := NewBestEffortTrigger(BestEffortTriggerOptions{Finisher: finisher, Config: fastTriggerConfig()})

	out := trigger.Fire(context.Background(), &model.Job{ID: "job-1", Config: model.JobConfig{DryRun: true}})
	assert.True(t, out.Skipped)
	assert.Empty(t, finisher.Calls())

	disabled := NewBestEffortTrigger(BestEffortTriggerOptions{Config: fastTriggerConfig()})
	assert.True(t, disabled.Fire(context.Background(), &model.Job{ID: "job-1"}).Skipped)

	var nilTrigger *BestEffortTrigger
	assert.True(t, nilTrigger.Fire(context.Background(), &model.Job{ID: "job-1"}).Skipped)
}

func TestBestEffortTrigger_InitialDelayHonorsCancellation(t *testing.T) {
	cfg := fastTriggerConfig()
	cfg.InitialDelay = time.Hour
	finisher := &countingFinisher{}
	alerts := &recordingAlerter{}
	trigger := NewBestEffortTrigger(BestEffortTriggerOptions{Finisher: finisher, Config: cfg, Alerter: alerts})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := trigger.Fire(ctx, &model.Job{ID: "job-1"})
	require.ErrorIs(t, out.Err, context.Canceled)
	assert.Zero(t, out.Attempts)
	assert.Empty(t, finisher.Calls())
	assert.Equal(t, []notify.AnomalyKind{notify.KindTriggerFailed}, alerts.Kinds())
}
