package store

import (
	"fmt"
	"io/fs"
	"net/url"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

// sqlitePragmas are applied by the driver to each new connection.
var sqlitePragmas = []string{"busy_timeout(5000)", "foreign_keys(1)", "journal_mode(WAL)"}

func (d *SQLiteDialect) DataSource(dsn string) string {
	q := url.Values{"_pragma": sqlitePragmas}
	return dsn + "?" + q.Encode()
}

func (d *SQLiteDialect) LedgerTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
}

func (d *SQLiteDialect) Migrations() fs.FS {
	return migrationsFor("sqlite")
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
