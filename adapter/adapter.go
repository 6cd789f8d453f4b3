// Package adapter implements the uniform, dialect-tagged SQL executor that
// every other component talks through: quoting, lock-suffix emission,
// capability flags, and scoped connection acquisition over a driver pool.
// Concrete dialects live in postgres.go, mysql.go, sqlite.go; this file
// holds the shared contract and the LockMode/capability vocabulary.
package adapter

import (
	"context"
	"time"
)

// Dialect names a supported SQL dialect.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// LockMode enumerates the pessimistic locking intents the assembler can
// attach to a query.
type LockMode string

const (
	LockUpdate           LockMode = "update"
	LockShare            LockMode = "share"
	LockUpdateNoWait     LockMode = "update_nowait"
	LockUpdateSkipLocked LockMode = "update_skip_locked"
	LockShareNoWait      LockMode = "share_nowait"
	LockShareSkipLocked  LockMode = "share_skip_locked"
)

// Isolation enumerates the transaction isolation levels the core
// recognizes, translated per-dialect by the Assembler/Adapter.
type Isolation string

const (
	ReadUncommitted Isolation = "read_uncommitted"
	ReadCommitted   Isolation = "read_committed"
	RepeatableRead  Isolation = "repeatable_read"
	Serializable    Isolation = "serializable"
)

// ResultSet is the dialect-neutral shape of a query's rows: column names
// plus row values, positional to match.
type ResultSet struct {
	Columns []string
	Rows    [][]interface{}
}

// Conn is a single checked-out connection capable of running SQL within
// the adapter's dialect. Adapters hand these to pool.Pool for lifecycle
// management; callers obtain one via Adapter.WithConnection.
type Conn interface {
	ExecContext(ctx context.Context, sql string, args ...interface{}) (rowsAffected int64, err error)
	QueryContext(ctx context.Context, sql string, args ...interface{}) (*ResultSet, error)
	BeginTx(ctx context.Context, isolation Isolation, readOnly bool) (Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Tx is an open database transaction or savepoint.
type Tx interface {
	ExecContext(ctx context.Context, sql string, args ...interface{}) (rowsAffected int64, err error)
	QueryContext(ctx context.Context, sql string, args ...interface{}) (*ResultSet, error)
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Capabilities reports what a dialect supports, so the Assembler never
// silently downgrades a request it cannot satisfy.
type Capabilities struct {
	SupportsSavepoints  bool
	SupportsSkipLocked  bool
	SupportsNoWait      bool
	SupportedLockModes  map[LockMode]bool
	SupportedIsolations map[Isolation]bool
}

// SupportsLockMode reports whether m is usable on this dialect.
func (c Capabilities) SupportsLockMode(m LockMode) bool {
	return c.SupportedLockModes[m]
}

// SupportsIsolation reports whether i is usable on this dialect.
func (c Capabilities) SupportsIsolation(i Isolation) bool {
	return c.SupportedIsolations[i]
}

// Opener opens a new physical connection for a dialect given a DSN. Each
// dialect file provides one; pool.Pool calls it to grow the pool.
type Opener func(ctx context.Context, dsn string) (Conn, error)

// Adapter is the dialect-aware SQL executor bound to a pool.Pool. It owns
// no connections directly -- every operation borrows one from the pool for
// the duration of the call.
type Adapter struct {
	Dialect      Dialect
	Caps         Capabilities
	Checkout     func(ctx context.Context, timeout time.Duration) (Conn, func(), error)
	quoteIdent   func(name string) string
	quoteValue   func(v interface{}) string
	lockSuffixes map[LockMode]string
}

// New constructs an Adapter. checkout is supplied by pool.Pool (or a test
// double) and must return a connection plus a release func that returns it
// to the pool (or closes it) exactly once.
func New(dialect Dialect, caps Capabilities, checkout func(ctx context.Context, timeout time.Duration) (Conn, func(), error), quoteIdent func(string) string, quoteValue func(interface{}) string, lockSuffixes map[LockMode]string) *Adapter {
	return &Adapter{
		Dialect:      dialect,
		Caps:         caps,
		Checkout:     checkout,
		quoteIdent:   quoteIdent,
		quoteValue:   quoteValue,
		lockSuffixes: lockSuffixes,
	}
}

// QuoteIdentifier quotes a column/table name per dialect rules.
func (a *Adapter) QuoteIdentifier(name string) string { return a.quoteIdent(name) }

// QuoteValue renders a literal per dialect rules. Used only for
// diagnostics/logging; bound parameters are always passed positionally to
// the driver, never interpolated into SQL text.
func (a *Adapter) QuoteValue(v interface{}) string { return a.quoteValue(v) }

// EmitLockSuffix returns the dialect's SQL fragment for mode, or an empty
// string if the dialect supports no lock suffix at all (SQLite). Callers
// needing to fail rather than silently drop a mode must first check
// Caps.SupportsLockMode.
func (a *Adapter) EmitLockSuffix(mode LockMode) string {
	return a.lockSuffixes[mode]
}

// WithConnection scopes a borrowed connection to fn, guaranteeing release
// on every exit path including panics.
func (a *Adapter) WithConnection(ctx context.Context, timeout time.Duration, fn func(Conn) error) error {
	conn, release, err := a.Checkout(ctx, timeout)
	if err != nil {
		return err
	}
	defer release()
	return fn(conn)
}

// Execute runs sql against a freshly checked-out connection and returns
// rows affected. Most callers go through a Tx instead; Execute is for
// autocommit-style single statements.
func (a *Adapter) Execute(ctx context.Context, timeout time.Duration, sql string, args ...interface{}) (int64, error) {
	var affected int64
	err := a.WithConnection(ctx, timeout, func(c Conn) error {
		var execErr error
		affected, execErr = c.ExecContext(ctx, sql, args...)
		return execErr
	})
	return affected, err
}

// Query runs sql against a freshly checked-out connection and returns the
// result set.
func (a *Adapter) Query(ctx context.Context, timeout time.Duration, sql string, args ...interface{}) (*ResultSet, error) {
	var rs *ResultSet
	err := a.WithConnection(ctx, timeout, func(c Conn) error {
		var queryErr error
		rs, queryErr = c.QueryContext(ctx, sql, args...)
		return queryErr
	})
	return rs, err
}
