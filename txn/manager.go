// Package txn implements the Transaction and Savepoint Manager: a
// per-adapter transaction stack where the outermost call opens a real
// transaction and every nested call pushes a named Savepoint, per §4.12.
package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eve.evalgo.org/multidb/adapter"
	"eve.evalgo.org/multidb/multidberr"
)

// Rollback is the explicit control-value signal: returning it from a
// transaction body rolls back the innermost frame and makes Transaction
// return nil, not an error. It is distinct from a genuine failure.
var Rollback = errors.New("txn: explicit rollback")

// session is the state of one open outermost transaction and its nested
// savepoint frames, carried on the context chain for the duration of the
// transaction.
type session struct {
	adapter    *adapter.Adapter
	conn       adapter.Conn
	release    func()
	tx         adapter.Tx
	readOnly   bool
	depth      int
	spCounter  int
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) *session {
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}

// IsWritePrevented reports whether the current transaction frame is
// read-only, so write paths can raise ReadOnlyError before issuing SQL.
func IsWritePrevented(ctx context.Context) bool {
	s := sessionFrom(ctx)
	return s != nil && s.readOnly
}

// CheckWritable returns ReadOnlyError if the current frame forbids
// writes; callers performing an INSERT/UPDATE/DELETE call this first.
func CheckWritable(ctx context.Context) error {
	if IsWritePrevented(ctx) {
		return &multidberr.ReadOnlyError{Reason: "transaction opened with read_only=true"}
	}
	return nil
}

// CurrentTx returns the adapter.Tx for the active frame, or nil if no
// transaction is open on ctx. Query/exec paths use this to run statements
// against the open transaction instead of a fresh autocommit connection.
func CurrentTx(ctx context.Context) adapter.Tx {
	s := sessionFrom(ctx)
	if s == nil {
		return nil
	}
	return s.tx
}

// Options configures a Transaction call.
type Options struct {
	Isolation adapter.Isolation
	ReadOnly  bool
	// CheckoutTimeout bounds acquiring a connection for an outermost
	// transaction; ignored for nested (savepoint) calls.
	CheckoutTimeout time.Duration
}

// Transaction runs fn under a transaction frame bound to a. If ctx
// already carries an open frame for this same adapter instance, fn runs
// under a new Savepoint; if ctx carries a frame for a *different*
// adapter, Transaction returns CrossAdapterWriteInTransactionError,
// since a transaction is bound to exactly one adapter and cross-shard
// writes must go through the distributed transaction coordinator
// instead. A body returning Rollback rolls back the frame and yields a
// nil error; any other error rolls back and propagates unchanged.
func Transaction(ctx context.Context, a *adapter.Adapter, opts Options, fn func(context.Context) error) error {
	if existing := sessionFrom(ctx); existing != nil {
		if existing.adapter != a {
			return &multidberr.CrossAdapterWriteInTransactionError{Current: string(existing.adapter.Dialect), Target: string(a.Dialect)}
		}
		return runNested(ctx, existing, opts, fn)
	}
	return runOutermost(ctx, a, opts, fn)
}

func runOutermost(ctx context.Context, a *adapter.Adapter, opts Options, fn func(context.Context) error) error {
	if opts.Isolation != "" && !a.Caps.SupportsIsolation(opts.Isolation) {
		return &multidberr.UnsupportedIsolationError{Dialect: string(a.Dialect), Isolation: string(opts.Isolation)}
	}

	conn, release, err := a.Checkout(ctx, opts.CheckoutTimeout)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			release()
		}
	}()

	tx, err := conn.BeginTx(ctx, opts.Isolation, opts.ReadOnly)
	if err != nil {
		return err
	}

	s := &session{adapter: a, conn: conn, release: release, tx: tx, readOnly: opts.ReadOnly, depth: 1}
	childCtx := context.WithValue(ctx, sessionKey{}, s)

	err = fn(childCtx)
	if errors.Is(err, Rollback) {
		_ = tx.Rollback(childCtx)
		committed = true
		release()
		return nil
	}
	if err != nil {
		_ = tx.Rollback(childCtx)
		committed = true
		release()
		return err
	}
	if commitErr := tx.Commit(childCtx); commitErr != nil {
		committed = true
		release()
		return commitErr
	}
	committed = true
	release()
	return nil
}

func runNested(ctx context.Context, parent *session, opts Options, fn func(context.Context) error) error {
	if !parent.adapter.Caps.SupportsSavepoints {
		return fmt.Errorf("txn: dialect %s does not support savepoints", parent.adapter.Dialect)
	}

	parent.spCounter++
	name := fmt.Sprintf("sp_%d", parent.spCounter)
	if err := parent.tx.Savepoint(ctx, name); err != nil {
		return err
	}

	child := &session{
		adapter:   parent.adapter,
		conn:      parent.conn,
		tx:        parent.tx,
		readOnly:  parent.readOnly || opts.ReadOnly,
		depth:     parent.depth + 1,
		spCounter: parent.spCounter,
	}
	childCtx := context.WithValue(ctx, sessionKey{}, child)

	err := fn(childCtx)
	parent.spCounter = child.spCounter // preserve monotonic counter across siblings

	if errors.Is(err, Rollback) {
		return parent.tx.RollbackTo(ctx, name)
	}
	if err != nil {
		if rbErr := parent.tx.RollbackTo(ctx, name); rbErr != nil {
			return rbErr
		}
		return err
	}
	return parent.tx.ReleaseSavepoint(ctx, name)
}
