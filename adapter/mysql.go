package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// mysqlCapabilities: MySQL (InnoDB) supports FOR UPDATE/FOR SHARE and
// SKIP LOCKED/NOWAIT from 8.0; it does not support the legacy
// READ UNCOMMITTED-as-Serializable framing, but does support all four
// isolation levels and savepoints.
func mysqlCapabilities() Capabilities {
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

func mysqlQuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func mysqlQuoteValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func mysqlLockSuffixes() map[LockMode]string {
	return map[LockMode]string{
		LockUpdate:           "FOR UPDATE",
		LockShare:            "LOCK IN SHARE MODE",
		LockUpdateNoWait:     "FOR UPDATE NOWAIT",
		LockUpdateSkipLocked: "FOR UPDATE SKIP LOCKED",
		LockShareNoWait:      "FOR SHARE NOWAIT",
		LockShareSkipLocked:  "FOR SHARE SKIP LOCKED",
	}
}

// OpenMySQL opens a *sqlx.DB-backed MySQL connection via go-sql-driver.
func OpenMySQL(ctx context.Context, dsn string) (Conn, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}
	return &sqlxConn{db: db, dialect: MySQL}, nil
}

// NewMySQL constructs a MySQL Adapter bound to checkout.
func NewMySQL(checkout func(ctx context.Context, timeout time.Duration) (Conn, func(), error)) *Adapter {
	return New(MySQL, mysqlCapabilities(), checkout, mysqlQuoteIdentifier, mysqlQuoteValue, mysqlLockSuffixes())
}
