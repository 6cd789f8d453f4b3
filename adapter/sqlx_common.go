package adapter

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// sqlxConn adapts a *sqlx.DB to the Conn interface. MySQL and SQLite share
// this one scanning path instead of each hand-rolling database/sql row
// iteration, mirroring the single DB wrapper idiom used across dialects in
// the Icinga database package this is grounded on.
type sqlxConn struct {
	db      *sqlx.DB
	begin   func(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	dialect Dialect
}

func (c *sqlxConn) ExecContext(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *sqlxConn) QueryContext(ctx context.Context, query string, args ...interface{}) (*ResultSet, error) {
	rows, err := c.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSqlxRows(rows)
}

func (c *sqlxConn) BeginTx(ctx context.Context, isolation Isolation, readOnly bool) (Tx, error) {
	tx, err := c.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sqlIsoLevel(isolation),
		ReadOnly:  readOnly,
	})
	if err != nil {
		return nil, err
	}
	return &sqlxTx{tx: tx, dialect: c.dialect}, nil
}

func (c *sqlxConn) PingContext(ctx context.Context) error { return c.db.PingContext(ctx) }
func (c *sqlxConn) Close() error                          { return nil }

func scanSqlxRows(rows *sqlx.Rows) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, vals)
	}
	return rs, rows.Err()
}

func sqlIsoLevel(i Isolation) sql.IsolationLevel {
	switch i {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

type sqlxTx struct {
	tx      *sqlx.Tx
	dialect Dialect
}

func (t *sqlxTx) ExecContext(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqlxTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*ResultSet, error) {
	rows, err := t.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSqlxRows(rows)
}

func (t *sqlxTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name)
	return err
}

func (t *sqlxTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

func (t *sqlxTx) ReleaseSavepoint(ctx context.Context, name string) error {
	if t.dialect == MySQL {
		// MySQL has no RELEASE SAVEPOINT equivalent need beyond dropping
		// the marker; nothing to release explicitly.
		return nil
	}
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

func (t *sqlxTx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *sqlxTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }
