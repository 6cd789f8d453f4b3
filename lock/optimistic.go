package lock

import (
	"context"
	"errors"

	"eve.evalgo.org/multidb/multidberr"
)

// UpdateWithVersion is the shape an optimistic-locking UPDATE needs:
// issue `WHERE pk = ? AND lock_version = ?`, set `lock_version =
// lock_version + 1`, and report rows affected. Callers implement this
// over their own Assembler/Adapter call; lock stays storage-agnostic.
type UpdateWithVersion func(ctx context.Context, currentVersion int64) (rowsAffected int64, err error)

// ReadCurrentVersion re-reads a row's lock_version for a retry attempt.
type ReadCurrentVersion func(ctx context.Context) (version int64, err error)

// CompareAndSwap performs one optimistic-locking UPDATE attempt at
// currentVersion. Zero rows affected means another writer's CAS won
// first; that is reported as StaleObjectError rather than silently
// succeeding or retrying on the caller's behalf.
func CompareAndSwap(ctx context.Context, model, pk string, currentVersion int64, update UpdateWithVersion) error {
	affected, err := update(ctx, currentVersion)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &multidberr.StaleObjectError{Model: model, PK: pk}
	}
	return nil
}

// WithOptimisticRetry re-reads the current lock_version and retries the
// CAS up to n times. On exhaustion, the last StaleObjectError
// propagates unchanged -- the caller observes the same error it would
// have without a retry loop, just after n genuine attempts.
func WithOptimisticRetry(ctx context.Context, model, pk string, n int, read ReadCurrentVersion, update UpdateWithVersion) error {
	var lastErr error
	attempts := n
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		version, err := read(ctx)
		if err != nil {
			return err
		}
		lastErr = CompareAndSwap(ctx, model, pk, version, update)
		if lastErr == nil {
			return nil
		}
		var stale *multidberr.StaleObjectError
		if !errors.As(lastErr, &stale) {
			return lastErr
		}
	}
	return lastErr
}
