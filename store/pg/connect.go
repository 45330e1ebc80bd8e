package pg

import (
	"database/sql"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	_ "modernc.org/sqlite"
)

// Open connects to databaseURL and returns a bun.DB using the dialect
// matching its scheme: postgres:// or postgresql:// selects pgdriver
// and pgdialect for production use, anything else is treated as a
// sqlite DSN (including the in-memory file::memory: form used by
// tests) and uses sqlitedialect.
func Open(databaseURL string) (*bun.DB, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(databaseURL)))
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	sqldb, err := sql.Open("sqlite", databaseURL)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids
	// SQLITE_BUSY under the queue's concurrent lease/acknowledge
	// traffic rather than relying on busy_timeout retries alone.
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}
