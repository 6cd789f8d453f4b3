// Package lock implements pessimistic row locking and optimistic
// lock-version concurrency control, per §4.13.
package lock

import (
	"context"

	"eve.evalgo.org/multidb/adapter"
	"eve.evalgo.org/multidb/multidberr"
	"eve.evalgo.org/multidb/txn"
)

// WithLock opens a transaction on a (if one is not already open on ctx),
// runs selectForUpdate to lock the target row(s), then runs fn with the
// locked row visible for the remainder of the enclosing transaction.
// Locking outside any transaction is rejected: a lock held only for the
// duration of an autocommit statement provides no real exclusion.
func WithLock(ctx context.Context, a *adapter.Adapter, opts txn.Options, selectForUpdate func(context.Context) error, fn func(context.Context) error) error {
	return txn.Transaction(ctx, a, opts, func(ctx context.Context) error {
		if txn.CurrentTx(ctx) == nil {
			return &multidberr.LockOutsideTransactionError{}
		}
		if err := selectForUpdate(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// RequireTransaction returns LockOutsideTransactionError if ctx carries
// no open transaction frame. Pessimistic-lock query paths call this
// before emitting a lock suffix, since a lock issued outside a
// transaction is released the instant the statement completes.
func RequireTransaction(ctx context.Context) error {
	if txn.CurrentTx(ctx) == nil {
		return &multidberr.LockOutsideTransactionError{}
	}
	return nil
}
