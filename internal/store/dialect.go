package store

import (
	"fmt"
	"io/fs"
	"strings"

	"distribution-admin/internal/config"
)

// Dialect abstracts database-specific SQL and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// DataSource returns dsn with the connection settings every pooled
	// connection must open with.
	DataSource(dsn string) string

	// LedgerTableSQL returns the DDL for the applied-migrations ledger.
	LedgerTableSQL() string

	// Migrations returns the embedded migration scripts for this dialect.
	Migrations() fs.FS

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) (Dialect, error) {
	switch driver {
	case config.DriverSQLite:
		return &SQLiteDialect{}, nil
	case config.DriverPostgres:
		return &PostgresDialect{}, nil
	default:
		return nil, fmt.Errorf("no relational dialect for driver %q", driver)
	}
}

// Rebind replaces each ? in query with the dialect's numbered placeholder.
// Queries in this module never contain a literal question mark.
func Rebind(d Dialect, query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
