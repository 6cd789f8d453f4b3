package lag

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestAllowReplicaReadDeniesWithinThreshold(t *testing.T) {
	ctx := context.Background()
	tracker := New(2*time.Second, 5*time.Second)

	require.NoError(t, tracker.RecordWrite(ctx, "orders", "s1"))

	allow, err := tracker.AllowReplicaRead(ctx, "orders", "s1", false, 0, true)
	require.NoError(t, err)
	require.False(t, allow, "read within lag threshold must not hit a replica")
}

func TestAllowReplicaReadAllowsAfterThresholdElapses(t *testing.T) {
	ctx := context.Background()
	tracker := New(20*time.Millisecond, 5*time.Second)

	require.NoError(t, tracker.RecordWrite(ctx, "orders", "s1"))
	time.Sleep(30 * time.Millisecond)

	allow, err := tracker.AllowReplicaRead(ctx, "orders", "s1", false, 0, true)
	require.NoError(t, err)
	require.True(t, allow)
}

func TestStickToPrimaryDeniesUntilExpiry(t *testing.T) {
	ctx := context.Background()
	tracker := New(time.Nanosecond, 50*time.Millisecond)

	require.NoError(t, tracker.StickToPrimary(ctx, "orders", "s1", 0))

	allow, err := tracker.AllowReplicaRead(ctx, "orders", "s1", false, 0, true)
	require.NoError(t, err)
	require.False(t, allow)

	time.Sleep(60 * time.Millisecond)
	allow, err = tracker.AllowReplicaRead(ctx, "orders", "s1", false, 0, true)
	require.NoError(t, err)
	require.True(t, allow)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tracker := NewWithStore(NewRedisStore(client, ""), 2*time.Second, 5*time.Second)

	ctx := context.Background()
	require.NoError(t, tracker.RecordWrite(ctx, "users", "s0"))

	allow, err := tracker.AllowReplicaRead(ctx, "users", "s0", false, 0, true)
	require.NoError(t, err)
	require.False(t, allow)
}
