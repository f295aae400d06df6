package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interop/jobgather/internal/testutil"
)

func newTestGuard(t *testing.T) (*RedisDeliveryGuard, string) {
	t.Helper()
	client := testutil.SetupTestRedis(t)
	prefix := testutil.RedisKeyPrefix()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, prefix+"*").Result()
		if err == nil && len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	})
	return NewRedisDeliveryGuard(client, DeliveryGuardOptions{KeyPrefix: prefix, LeaseTTL: time.Minute}), prefix
}

func TestRedisDeliveryGuard_ClaimLifecycle(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	ok, err := guard.Claim(ctx, "corr:1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Claim(ctx, "corr:1")
	require.NoError(t, err)
	assert.False(t, ok, "an in-flight claim blocks the redelivery")

	require.NoError(t, guard.Release(ctx, "corr:1"))
	ok, err = guard.Claim(ctx, "corr:1")
	require.NoError(t, err)
	assert.True(t, ok, "released keys can be claimed again")

	require.NoError(t, guard.Complete(ctx, "corr:1"))
	ok, err = guard.Claim(ctx, "corr:1")
	require.NoError(t, err)
	assert.False(t, ok, "completed keys reject redeliveries")

	require.NoError(t, guard.Health(ctx))
}

func TestRedisDeliveryGuard_CompleteAfterLeaseExpired(t *testing.T) {
	guard, prefix := newTestGuard(t)
	ctx := context.Background()

	ok, err := guard.Claim(ctx, "unit:j:a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, guard.client.Del(ctx, prefix+"unit:j:a").Err())

	require.NoError(t, guard.Complete(ctx, "unit:j:a"))
	val, err := guard.client.Get(ctx, prefix+"unit:j:a").Result()
	require.NoError(t, err)
	assert.Equal(t, doneValue, val)
	ttl, err := guard.client.TTL(ctx, prefix+"unit:j:a").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)
}

func TestRedisDeliveryGuard_RejectsEmptyKey(t *testing.T) {
	guard := NewRedisDeliveryGuard(nil, DeliveryGuardOptions{})
	ctx := context.Background()

	_, err := guard.Claim(ctx, "")
	require.Error(t, err)
	require.Error(t, guard.Complete(ctx, ""))
	require.Error(t, guard.Release(ctx, ""))
	assert.Equal(t, defaultGuardPrefix, guard.prefix)
	assert.Equal(t, defaultGuardLeaseTTL, guard.leaseTTL)
}
