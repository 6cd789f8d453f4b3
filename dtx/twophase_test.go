package dtx

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
	commitErr   error
	committed   bool
	rolledBack  bool
}

func (t *fakeTx) ExecContext(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	return 1, nil
}
func (t *fakeTx) QueryContext(ctx context.Context, sql string, args ...interface{}) (*adapter.ResultSet, error) {
	return &adapter.ResultSet{}, nil
}
func (t *fakeTx) Savepoint(ctx context.Context, name string) error         { return nil }
func (t *fakeTx) RollbackTo(ctx context.Context, name string) error        { return nil }
func (t *fakeTx) ReleaseSavepoint(ctx context.Context, name string) error  { return nil }
func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}
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

func fakeAdapter(commitErr error) *adapter.Adapter {
	tx := &fakeTx{commitErr: commitErr}
	conn := &fakeConn{tx: tx}
	checkout := func(ctx context.Context, timeout time.Duration) (adapter.Conn, func(), error) {
		return conn, func() {}, nil
	}
	return adapter.New(adapter.Postgres, adapter.Capabilities{}, checkout, func(s string) string { return s }, func(v interface{}) string { return "" }, nil)
}

func TestCoordinatorCommitsAllParticipants(t *testing.T) {
	c := NewCoordinator()
	participants := []Participant{
		{Shard: "s0", Adapter: fakeAdapter(nil), Run: func(ctx context.Context, tx adapter.Tx) error { return nil }},
		{Shard: "s1", Adapter: fakeAdapter(nil), Run: func(ctx context.Context, tx adapter.Tx) error { return nil }},
	}
	err := c.Run(context.Background(), participants, Options{})
	require.NoError(t, err)
}

func TestCoordinatorAbortsAllOnPrepareFailure(t *testing.T) {
	c := NewCoordinator()
	boom := errors.New("boom")
	participants := []Participant{
		{Shard: "s0", Adapter: fakeAdapter(nil), Run: func(ctx context.Context, tx adapter.Tx) error { return nil }},
		{Shard: "s1", Adapter: fakeAdapter(nil), Run: func(ctx context.Context, tx adapter.Tx) error { return boom }},
	}
	err := c.Run(context.Background(), participants, Options{})
	var shardFailure *multidberr.ShardFailure
	require.ErrorAs(t, err, &shardFailure)
	require.Equal(t, "s1", shardFailure.Shard)
}

func TestCoordinatorReturnsPartialCommitErrorOnCommitFailure(t *testing.T) {
	c := NewCoordinator()
	boom := errors.New("commit boom")
	participants := []Participant{
		{Shard: "s0", Adapter: fakeAdapter(nil), Run: func(ctx context.Context, tx adapter.Tx) error { return nil }},
		{Shard: "s1", Adapter: fakeAdapter(boom), Run: func(ctx context.Context, tx adapter.Tx) error { return nil }},
	}
	err := c.Run(context.Background(), participants, Options{})
	var partial *multidberr.PartialCommitError
	require.ErrorAs(t, err, &partial)
	require.True(t, partial.PerShard["s0"].Committed)
	require.False(t, partial.PerShard["s1"].Committed)
}
