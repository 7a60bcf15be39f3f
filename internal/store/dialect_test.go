package store

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError_PG_UniqueViolation(t *testing.T) {
	dialect := &PostgresDialect{}
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"idx_distributions_name_key\"",
		ConstraintName: "idx_distributions_name_key",
		Detail:         "Key (lower(distribution_name))=(finance) already exists.",
	}
	wrapped := fmt.Errorf("exec: %w", pgErr)

	mapped := MapError(dialect, wrapped)

	if !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", mapped)
	}

	// Original pgconn.PgError should still be extractable
	var extracted *pgconn.PgError
	if !errors.As(mapped, &extracted) {
		t.Fatal("expected pgconn.PgError to still be extractable via errors.As")
	}
	if extracted.ConstraintName != "idx_distributions_name_key" {
		t.Fatalf("expected constraint name 'idx_distributions_name_key', got: %s", extracted.ConstraintName)
	}
}

func TestMapError_PG_OtherError(t *testing.T) {
	dialect := &PostgresDialect{}
	err := fmt.Errorf("some other error")
	mapped := MapError(dialect, err)
	if mapped != err {
		t.Fatalf("expected same error back, got: %v", mapped)
	}
}

func TestMapError_Nil(t *testing.T) {
	for _, d := range []Dialect{&PostgresDialect{}, &SQLiteDialect{}} {
		if mapped := MapError(d, nil); mapped != nil {
			t.Fatalf("%s: expected nil, got: %v", d.Name(), mapped)
		}
	}
}

func TestMapError_SQLite_UniqueViolation(t *testing.T) {
	err := errors.New("constraint failed: UNIQUE constraint failed: index 'idx_distributions_name_key' (2067)")
	mapped := MapError(&SQLiteDialect{}, err)
	if !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", mapped)
	}
}

func TestDataSource(t *testing.T) {
	lite := (&SQLiteDialect{}).DataSource("data/app.db")
	if !strings.HasPrefix(lite, "data/app.db?") {
		t.Fatalf("unexpected sqlite dsn: %s", lite)
	}
	q, err := url.ParseQuery(strings.TrimPrefix(lite, "data/app.db?"))
	if err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(q["_pragma"]); got != "[busy_timeout(5000) foreign_keys(1) journal_mode(WAL)]" {
		t.Fatalf("unexpected pragmas: %s", got)
	}

	pg := "postgres://u:p@db:5432/admin?sslmode=disable"
	if got := (&PostgresDialect{}).DataSource(pg); got != pg {
		t.Fatalf("postgres dsn changed: %s", got)
	}
}

func TestRebind(t *testing.T) {
	q := "UPDATE packages SET package_name = ?, location = ? WHERE id = ?"

	if got := Rebind(&PostgresDialect{}, q); got != "UPDATE packages SET package_name = $1, location = $2 WHERE id = $3" {
		t.Fatalf("postgres rebind: %s", got)
	}
	if got := Rebind(&SQLiteDialect{}, q); got != "UPDATE packages SET package_name = ?1, location = ?2 WHERE id = ?3" {
		t.Fatalf("sqlite rebind: %s", got)
	}
}

func TestNewDialect(t *testing.T) {
	if d, err := NewDialect("postgres"); err != nil || d.DriverName() != "pgx" {
		t.Fatalf("postgres dialect: %v, %v", d, err)
	}
	if d, err := NewDialect("sqlite"); err != nil || d.DriverName() != "sqlite" {
		t.Fatalf("sqlite dialect: %v, %v", d, err)
	}
	if _, err := NewDialect("file"); err == nil {
		t.Fatal("expected error for non-relational driver")
	}
}

func TestEmbeddedMigrationsMatchAcrossDialects(t *testing.T) {
	names := func(d Dialect) []string {
		entries, err := fs.ReadDir(d.Migrations(), ".")
		if err != nil {
			t.Fatalf("%s migrations: %v", d.Name(), err)
		}
		var out []string
		for _, e := range entries {
			out = append(out, e.Name())
		}
		return out
	}
	pg, lite := names(&PostgresDialect{}), names(&SQLiteDialect{})
	if fmt.Sprint(pg) != fmt.Sprint(lite) {
		t.Fatalf("migration sets differ: postgres=%v sqlite=%v", pg, lite)
	}
}
