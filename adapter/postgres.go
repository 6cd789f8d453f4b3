package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresCapabilities mirrors §4.1: Postgres is the full-featured
// dialect -- every lock mode, every isolation level, savepoints, and both
// NOWAIT and SKIP LOCKED.
func postgresCapabilities() Capabilities {
	return Capabilities{
		SupportsSavepoints: true,
		SupportsSkipLocked: true,
		SupportsNoWait:     true,
		SupportedLockModes: map[LockMode]bool{
			LockUpdate: true, LockShare: true,
			LockUpdateNoWait: true, LockUpdateSkipLocked: true,
			LockShareNoWait: true, LockShareSkipLocked: true,
		},
		SupportedIsolations: map[Isolation]bool{
			ReadUncommitted: true, ReadCommitted: true,
			RepeatableRead: true, Serializable: true,
		},
	}
}

func postgresQuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func postgresQuoteValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func postgresLockSuffixes() map[LockMode]string {
	return map[LockMode]string{
		LockUpdate:           "FOR UPDATE",
		LockShare:            "FOR SHARE",
		LockUpdateNoWait:     "FOR UPDATE NOWAIT",
		LockUpdateSkipLocked: "FOR UPDATE SKIP LOCKED",
		LockShareNoWait:      "FOR SHARE NOWAIT",
		LockShareSkipLocked:  "FOR SHARE SKIP LOCKED",
	}
}

// pgxConn adapts a *pgxpool.Pool to the Conn interface; every call runs
// on whichever pooled connection pgxpool hands out. It is the direct-SQL
// execution path used for bulk/time-series workloads.
type pgxConn struct {
	pool *pgxpool.Pool
}

func (c *pgxConn) ExecContext(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *pgxConn) QueryContext(ctx context.Context, sql string, args ...interface{}) (*ResultSet, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPgxRows(rows)
}

func (c *pgxConn) BeginTx(ctx context.Context, isolation Isolation, readOnly bool) (Tx, error) {
	opts := pgx.TxOptions{IsoLevel: pgxIsoLevel(isolation)}
	if readOnly {
		opts.AccessMode = pgx.ReadOnly
	}
	tx, err := c.pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

func (c *pgxConn) PingContext(ctx context.Context) error { return c.pool.Ping(ctx) }
func (c *pgxConn) Close() error                          { return nil } // pool-owned, checkin only

func pgxIsoLevel(i Isolation) pgx.TxIsoLevel {
	switch i {
	case ReadUncommitted:
		return pgx.ReadUncommitted
	case ReadCommitted:
		return pgx.ReadCommitted
	case RepeatableRead:
		return pgx.RepeatableRead
	case Serializable:
		return pgx.Serializable
	default:
		return pgx.ReadCommitted
	}
}

func scanPgxRows(rows pgx.Rows) (*ResultSet, error) {
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, vals)
	}
	return rs, rows.Err()
}

type pgxTx struct {
	tx         pgx.Tx
	savepoints int
}

func (t *pgxTx) ExecContext(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) QueryContext(ctx context.Context, sql string, args ...interface{}) (*ResultSet, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPgxRows(rows)
}

func (t *pgxTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "SAVEPOINT "+postgresQuoteIdentifier(name))
	return err
}

func (t *pgxTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+postgresQuoteIdentifier(name))
	return err
}

func (t *pgxTx) ReleaseSavepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+postgresQuoteIdentifier(name))
	return err
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// OpenPostgres opens a pgxpool-backed Postgres adapter. pool.Pool calls
// this once per physical connection slot it manages; the returned Conn
// shares the underlying pgxpool.Pool (pgxpool already multiplexes, so the
// outer pool.Pool here governs logical checkout accounting while pgxpool
// governs physical sockets).
func OpenPostgres(ctx context.Context, dsn string) (Conn, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &pgxConn{pool: pool}, nil
}

// NewPostgres constructs a Postgres Adapter bound to checkout.
func NewPostgres(checkout func(ctx context.Context, timeout time.Duration) (Conn, func(), error)) *Adapter {
	return New(Postgres, postgresCapabilities(), checkout, postgresQuoteIdentifier, postgresQuoteValue, postgresLockSuffixes())
}
