package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interop/jobgather/internal/domain/model"
	"github.com/interop/jobgather/internal/testutil"
)

func TestResultRepo_DuplicatesCollapseInCount(t *testing.T) {
	repo := NewResultRepo(testutil.SetupEphemeralSchemaDB(t))
	ctx := context.Background()
	base := testutil.TestTime()

	records := []model.ResultRecord{
		{RequestID: "req-1", TargetID: "lab", RequestChunkID: "req-1_0", Status: "partial", CreatedAt: base},
		{RequestID: "req-1", TargetID: "lab", RequestChunkID: "req-1_0", Status: "ok", CreatedAt: base.Add(time.Second),
			Payload: json.RawMessage(`{"rows":3}`)},
		{RequestID: "req-1", TargetID: "lab", RequestChunkID: "req-1_1", Status: "ok", CreatedAt: base.Add(2 * time.Second)},
		{RequestID: "req-2", TargetID: "lab", RequestChunkID: "req-2_0", Status: "ok"},
	}
	for _, rec := range records {
		require.NoError(t, repo.Insert(ctx, rec))
	}

	n, err := repo.CountByCorrelationID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repo.QueryByCorrelationID(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "partial", got[0].Status)
	assert.Equal(t, "ok", got[1].Status)
	assert.JSONEq(t, `{"rows":3}`, string(got[1].Payload))
	assert.JSONEq(t, `{}`, string(got[0].Payload))
	assert.Equal(t, got[0].AuthorityKey(), got[1].AuthorityKey())
	assert.Equal(t, base, got[0].CreatedAt)
	assert.NotEmpty(t, got[0].ID)

	n, err = repo.CountByCorrelationID(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, n)
}
