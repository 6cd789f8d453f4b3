package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"eve.evalgo.org/multidb/adapter"
	"eve.evalgo.org/multidb/multidberr"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	savepoints  []string
	rolledTo    []string
	released    []string
	committed   bool
	rolledBack  bool
}

func (t *fakeTx) ExecContext(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	return 1, nil
}
func (t *fakeTx) QueryContext(ctx context.Context, sql string, args ...interface{}) (*adapter.ResultSet, error) {
	return &adapter.ResultSet{}, nil
}
func (t *fakeTx) Savepoint(ctx context.Context, name string) error {
	t.savepoints = append(t.savepoints, name)
	return nil
}
func (t *fakeTx) RollbackTo(ctx context.Context, name string) error {
	t.rolledTo = append(t.rolledTo, name)
	return nil
}
func (t *fakeTx) ReleaseSavepoint(ctx context.Context, name string) error {
	t.released = append(t.released, name)
	return nil
}
func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type fakeConn struct {
	tx *fakeTx
}

func (c *fakeConn) ExecContext(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	return 1, nil
}
func (c *fakeConn) QueryContext(ctx context.Context, sql string, args ...interface{}) (*adapter.ResultSet, error) {
	return &adapter.ResultSet{}, nil
}
func (c *fakeConn) BeginTx(ctx context.Context, isolation adapter.Isolation, readOnly bool) (adapter.Tx, error) {
	return c.tx, nil
}
func (c *fakeConn) PingContext(ctx context.Context) error { return nil }
func (c *fakeConn) Close() error                          { return nil }

func testAdapter() (*adapter.Adapter, *fakeTx) {
	tx := &fakeTx{}
	conn := &fakeConn{tx: tx}
	checkout := func(ctx context.Context, timeout time.Duration) (adapter.Conn, func(), error) {
		return conn, func() {}, nil
	}
	caps := adapter.Capabilities{
		SupportsSavepoints: true,
		SupportedIsolations: map[adapter.Isolation]bool{
			adapter.ReadCommitted: true,
		},
	}
	a := adapter.New(adapter.Postgres, caps, checkout, func(s string) string { return s }, func(v interface{}) string { return "" }, nil)
	return a, tx
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	a, tx := testAdapter()
	err := Transaction(context.Background(), a, Options{Isolation: adapter.ReadCommitted}, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	require.True(t, tx.committed)
	require.False(t, tx.rolledBack)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	a, tx := testAdapter()
	boom := errors.New("boom")
	err := Transaction(context.Background(), a, Options{}, func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, tx.rolledBack)
	require.False(t, tx.committed)
}

func TestTransactionExplicitRollbackReturnsNil(t *testing.T) {
	a, tx := testAdapter()
	err := Transaction(context.Background(), a, Options{}, func(ctx context.Context) error {
		return Rollback
	})
	require.NoError(t, err)
	require.True(t, tx.rolledBack)
}

func TestNestedTransactionUsesSavepoint(t *testing.T) {
	a, tx := testAdapter()
	err := Transaction(context.Background(), a, Options{}, func(ctx context.Context) error {
		return Transaction(ctx, a, Options{}, func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, []string{"sp_1"}, tx.savepoints)
	require.Equal(t, []string{"sp_1"}, tx.released)
}

func TestNestedTransactionRollsBackToSavepointOnError(t *testing.T) {
	a, tx := testAdapter()
	boom := errors.New("boom")
	err := Transaction(context.Background(), a, Options{}, func(ctx context.Context) error {
		inner := Transaction(ctx, a, Options{}, func(ctx context.Context) error {
			return boom
		})
		require.ErrorIs(t, inner, boom)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"sp_1"}, tx.rolledTo)
	require.True(t, tx.committed)
}

func TestReadOnlyPropagatesToNestedFrame(t *testing.T) {
	a, _ := testAdapter()
	err := Transaction(context.Background(), a, Options{ReadOnly: true}, func(ctx context.Context) error {
		require.True(t, IsWritePrevented(ctx))
		return Transaction(ctx, a, Options{}, func(ctx context.Context) error {
			require.True(t, IsWritePrevented(ctx))
			return CheckWritable(ctx)
		})
	})
	var readOnly *multidberr.ReadOnlyError
	require.ErrorAs(t, err, &readOnly)
}

func TestCrossAdapterWriteRaisesError(t *testing.T) {
	a1, _ := testAdapter()
	a2, _ := testAdapter()
	err := Transaction(context.Background(), a1, Options{}, func(ctx context.Context) error {
		return Transaction(ctx, a2, Options{}, func(ctx context.Context) error {
			return nil
		})
	})
	var crossAdapter *multidberr.CrossAdapterWriteInTransactionError
	require.ErrorAs(t, err, &crossAdapter)
}
