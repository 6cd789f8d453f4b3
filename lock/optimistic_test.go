package lock

import (
	"context"
	"errors"
	"testing"

	"eve.evalgo.org/multidb/multidberr"
	"github.com/stretchr/testify/require"
)

func TestCompareAndSwapRaisesStaleObjectOnZeroAffected(t *testing.T) {
	update := func(ctx context.Context, currentVersion int64) (int64, error) { return 0, nil }
	err := CompareAndSwap(context.Background(), "orders", "42", 3, update)

	var stale *multidberr.StaleObjectError
	require.True(t, errors.As(err, &stale))
	require.Equal(t, "orders", stale.Model)
}

func TestCompareAndSwapSucceedsOnAffectedRow(t *testing.T) {
	update := func(ctx context.Context, currentVersion int64) (int64, error) { return 1, nil }
	err := CompareAndSwap(context.Background(), "orders", "42", 3, update)
	require.NoError(t, err)
}

func TestWithOptimisticRetryExhaustsAndPropagatesLastStale(t *testing.T) {
	attempts := 0
	read := func(ctx context.Context) (int64, error) { return int64(attempts), nil }
	update := func(ctx context.Context, currentVersion int64) (int64, error) {
		attempts++
		return 0, nil
	}

	err := WithOptimisticRetry(context.Background(), "orders", "42", 3, read, update)
	var stale *multidberr.StaleObjectError
	require.True(t, errors.As(err, &stale))
	require.Equal(t, 3, attempts)
}

func TestWithOptimisticRetrySucceedsBeforeExhaustion(t *testing.T) {
	attempts := 0
	read := func(ctx context.Context) (int64, error) { return int64(attempts), nil }
	update := func(ctx context.Context, currentVersion int64) (int64, error) {
		attempts++
		if attempts < 2 {
			return 0, nil
		}
		return 1, nil
	}

	err := WithOptimisticRetry(context.Background(), "orders", "42", 5, read, update)
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}
