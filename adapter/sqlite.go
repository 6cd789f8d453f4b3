package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// sqliteCapabilities: SQLite reports no row-level locks and only a coarse
// SERIALIZABLE-like behavior, per §4.1. No SKIP LOCKED/NOWAIT, no lock
// suffixes at all -- EmitLockSuffix returns "" for every mode and the
// Assembler must raise UnsupportedLockMode itself rather than emit
// nothing silently.
func sqliteCapabilities() Capabilities {
	return Capabilities{
		SupportsSavepoints: true,
		SupportsSkipLocked: false,
		SupportsNoWait:     false,
		SupportedLockModes: map[LockMode]bool{},
		SupportedIsolations: map[Isolation]bool{
			Serializable: true,
		},
	}
}

func sqliteQuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqliteQuoteValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// sqliteLockSuffixes is intentionally empty: SQLite has no per-row lock
// clause, only whole-database locking under the hood.
func sqliteLockSuffixes() map[LockMode]string {
	return map[LockMode]string{}
}

// OpenSQLite opens a *sqlx.DB-backed SQLite connection via the pure-Go
// modernc.org/sqlite driver, so the SQLite dialect needs no cgo and is
// viable in the same binary as the other two dialects.
func OpenSQLite(ctx context.Context, dsn string) (Conn, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}
	return &sqlxConn{db: db, dialect: SQLite}, nil
}

// NewSQLite constructs a SQLite Adapter bound to checkout.
func NewSQLite(checkout func(ctx context.Context, timeout time.Duration) (Conn, func(), error)) *Adapter {
	return New(SQLite, sqliteCapabilities(), checkout, sqliteQuoteIdentifier, sqliteQuoteValue, sqliteLockSuffixes())
}
