package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/interop/jobgather/internal/core"
	jobdomain "github.com/interop/jobgather/internal/domain/job"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
	"github.com/interop/jobgather/internal/mocks"
	"github.com/interop/jobgather/internal/observability/metrics"
	"github.com/interop/jobgather/internal/testutil"
)

func TestJobService_LifecycleWebhooksOnEdgesOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job, err := h.jobs.Create(ctx, testutil.NewJobRequest().WithTotal(2).Build())
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusWaiting, job.Status)
	assert.Empty(t, h.webhooks.Changes())

	job, err = h.jobs.Initialize(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, job.StartedAt)
	startedAt := *job.StartedAt

	// Repeating the move is a no-op without another webhook.
	again, err := h.jobs.Initialize(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, startedAt, *again.StartedAt)

	res, err := h.jobs.Complete(ctx, job.ID, false)
	require.NoError(t, err)
	assert.True(t, res.TerminalEdge)
	require.NotNil(t, res.Job.FinishedAt)

	res, err = h.jobs.Complete(ctx, job.ID, false)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.TerminalEdge)

	changes := h.webhooks.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, model.JobStatusWaiting, changes[0].OldStatus)
	assert.Equal(t, model.JobStatusProcessing, changes[0].NewStatus)
	assert.Equal(t, model.JobStatusProcessing, changes[1].OldStatus)
	assert.Equal(t, model.JobStatusCompleted, changes[1].NewStatus)
	assert.Equal(t, job.OwnerID, changes[1].OwnerID)

	assert.Equal(t, int64(2), h.metrics.Total(metrics.JobTransition, map[string]string{"result": "success"}))
	assert.Len(t, h.metrics.Samples(metrics.JobDuration), 1)
}

func TestJobService_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, id string)
		to    model.JobStatus
	}{
		{name: "waiting to completed", to: model.JobStatusCompleted},
		{name: "waiting to failed", to: model.JobStatusFailed},
		{
			name: "completed to processing",
			setup: func(h *harness, id string) {
				_, _ = h.jobs.Initialize(context.Background(), id)
				_, _ = h.jobs.Complete(context.Background(), id, false)
			},
			to: model.JobStatusProcessing,
		},
		{
			name: "failed to completed",
			setup: func(h *harness, id string) {
				_, _ = h.jobs.Initialize(context.Background(), id)
				_, _ = h.jobs.Fail(context.Background(), id, "boom", false)
			},
			to: model.JobStatusCompleted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			job, err := h.jobs.Create(context.Background(), testutil.NewJobRequest().Build())
			require.NoError(t, err)
			if tt.setup != nil {
				tt.setup(h, job.ID)
			}
			before := h.mustGet(t, job.ID)

			_, err = h.jobs.UpdateStatus(context.Background(), job.ID, jobdomain.TransitionRequest{Status: tt.to})
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidTransition(err))
			assert.Equal(t, before.Status, h.mustGet(t, job.ID).Status)
		})
	}
}

func TestJobService_ForcedTransitionKeepsTimestamps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.processingJob(t, testutil.NewJobRequest())
	res, err := h.jobs.Complete(ctx, job.ID, false)
	require.NoError(t, err)
	finishedAt := *res.Job.FinishedAt

	res, err = h.jobs.UpdateStatus(ctx, job.ID, jobdomain.TransitionRequest{Status: model.JobStatusProcessing, Force: true})
	require.NoError(t, err)
	assert.False(t, res.Edge())

	res, err = h.jobs.Complete(ctx, job.ID, false)
	require.NoError(t, err)
	assert.False(t, res.TerminalEdge, "re-entering a terminal state is not an edge")
	assert.Equal(t, finishedAt, *res.Job.FinishedAt)
	assert.Len(t, h.webhooks.Changes(), 2)
}

func TestJobService_JobLevelForceFlag(t *testing.T) {
	h := newHarness(t)
	job, err := h.jobs.Create(context.Background(), testutil.NewJobRequest().ForceStatusUpdates().Build())
	require.NoError(t, err)

	res, err := h.jobs.Complete(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, res.Job.Status)
	assert.Equal(t, int64(1), h.metrics.Total(metrics.JobTransition, map[string]string{"forced": "true"}))
}

func TestJobService_JobLevelForceFlagKeepsCounters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.processingJob(t, testutil.NewJobRequest().WithTotal(2).ForceStatusUpdates())
	_, err := h.tracker.Increment(ctx, job.ID, model.UnitOutcomeSuccess)
	require.NoError(t, err)

	_, err = h.jobs.SetTotal(ctx, job.ID, 3, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	stored := h.mustGet(t, job.ID)
	assert.Equal(t, 1, stored.Successful)
	assert.Equal(t, 2, stored.Total)

	replanned, err := h.jobs.SetTotal(ctx, job.ID, 3, true)
	require.NoError(t, err)
	assert.Zero(t, replanned.Successful)
	assert.Equal(t, 3, replanned.Total)
}

func TestJobService_JobLevelForceFlagCannotReopenTerminalJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.processingJob(t, testutil.NewJobRequest().WithTotal(1).ForceStatusUpdates())
	_, err := h.jobs.Fail(ctx, job.ID, "aborted by operator", false)
	require.NoError(t, err)

	_, err = h.jobs.Complete(ctx, job.ID, false)
	assert.True(t, apperrors.IsInvalidTransition(err))
	assert.Equal(t, model.JobStatusFailed, h.mustGet(t, job.ID).Status)
}

func TestJobService_DisabledWebhooks(t *testing.T) {
	h := newHarness(t)
	job := h.processingJob(t, testutil.NewJobRequest().WithoutWebhooks())
	_, err := h.jobs.Complete(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Empty(t, h.webhooks.Changes())
}

func TestJobService_WebhookFailureDoesNotFailTransition(t *testing.T) {
	h := newHarness(t)
	h.webhooks.err = errors.New("notifier down")
	job := h.processingJob(t, testutil.NewJobRequest())
	assert.Equal(t, model.JobStatusProcessing, job.Status)
}

func TestJobService_Fail(t *testing.T) {
	h := newHarness(t)
	job := h.processingJob(t, testutil.NewJobRequest())

	res, err := h.jobs.Fail(context.Background(), job.ID, "  gateway unreachable ", false)
	require.NoError(t, err)
	require.NotNil(t, res.Job.Reason)
	assert.Equal(t, "gateway unreachable", *res.Job.Reason)
	assert.Equal(t, model.JobStatusFailed, h.webhooks.Changes()[1].NewStatus)
}

func TestJobService_SetTotal(t *testing.T) {
	ctx := context.Background()

	t.Run("before counting", func(t *testing.T) {
		h := newHarness(t)
		job := h.processingJob(t, testutil.NewJobRequest())
		updated, err := h.jobs.SetTotal(ctx, job.ID, 7, false)
		require.NoError(t, err)
		assert.Equal(t, 7, updated.Total)
		assert.Equal(t, model.JobStatusProcessing, updated.Status)
		assert.Len(t, h.webhooks.Changes(), 1, "a re-plan is not an edge")
	})

	t.Run("after counting requires force", func(t *testing.T) {
		h := newHarness(t)
		job := h.processingJob(t, testutil.NewJobRequest().WithTotal(5))
		_, err := h.tracker.Increment(ctx, job.ID, model.UnitOutcomeSuccess)
		require.NoError(t, err)

		_, err = h.jobs.SetTotal(ctx, job.ID, 9, false)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, 1, h.mustGet(t, job.ID).Successful)

		updated, err := h.jobs.SetTotal(ctx, job.ID, 9, true)
		require.NoError(t, err)
		assert.Equal(t, 9, updated.Total)
		assert.Zero(t, updated.Successful)
		assert.Zero(t, updated.Failed)
	})
}

func TestJobService_RetriesLostGuardedWrite(t *testing.T) {
	h := newHarness(t)
	job := h.processingJob(t, testutil.NewJobRequest())

	failures := 1
	h.store.UpdateStatusErr = func(core.UpdateStatusParams) error {
		if failures > 0 {
			failures--
			return apperrors.Conflict("job changed concurrently")
		}
		return nil
	}
	calls := h.store.UpdateStatusCalls()

	res, err := h.jobs.Complete(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.True(t, res.TerminalEdge)
	assert.Equal(t, calls+2, h.store.UpdateStatusCalls())
}

func TestJobService_GivesUpAfterConflictRetries(t *testing.T) {
	h := newHarness(t)
	job := h.processingJob(t, testutil.NewJobRequest())
	h.store.UpdateStatusErr = func(core.UpdateStatusParams) error {
		return apperrors.Conflict("job changed concurrently")
	}
	calls := h.store.UpdateStatusCalls()

	_, err := h.jobs.Complete(context.Background(), job.ID, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, calls+defaultConflictRetries+1, h.store.UpdateStatusCalls())
}

func TestJobService_UpdateRuntimeData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.jobs.Create(ctx, testutil.NewJobRequest().Build())
	require.NoError(t, err)

	updated, err := h.jobs.UpdateRuntimeData(ctx, job.ID, job.Version, json.RawMessage(`{"cursor":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, job.Version+1, updated.Version)
	assert.JSONEq(t, `{"cursor":"abc"}`, string(updated.RuntimeData))

	_, err = h.jobs.UpdateRuntimeData(ctx, job.ID, job.Version, json.RawMessage(`{"cursor":"stale"}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestJobService_WebhookPayloadFromMock(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockWebhookSink(ctrl)
	store := testutil.NewMemoryJobStore()
	svc, err := NewJobService(JobServiceOptions{Repo: store, Webhooks: sink})
	require.NoError(t, err)

	job, err := svc.Create(context.Background(), testutil.NewJobRequest().WithTotal(3).DryRun().Build())
	require.NoError(t, err)

	sink.EXPECT().
		SendStatusChange(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, change model.StatusChange) error {
			assert.Equal(t, job.ID, change.JobID)
			assert.Equal(t, 3, change.Total)
			assert.True(t, change.DryRun)
			assert.NotNil(t, change.StartedAt)
			return nil
		}).
		Times(1)

	_, err = svc.Initialize(context.Background(), job.ID)
	require.NoError(t, err)
}
