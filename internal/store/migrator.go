package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations
var migrationFiles embed.FS

func migrationsFor(dir string) fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations/"+dir)
	if err != nil {
		panic(fmt.Sprintf("embedded migrations %s: %v", dir, err))
	}
	return sub
}

// Migrator applies *.sql scripts in lexical filename order and records each
// applied script in the schema_migrations ledger. Running it again is a no-op.
type Migrator struct {
	store  *Store
	source fs.FS
	log    *slog.Logger
}

// NewMigrator creates a migrator reading scripts from source, or from the
// dialect's embedded scripts when source is nil.
func NewMigrator(store *Store, source fs.FS, log *slog.Logger) *Migrator {
	if source == nil {
		source = store.Dialect.Migrations()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{store: store, source: source, log: log}
}

// Migrate applies every pending script and returns the names it applied.
func (m *Migrator) Migrate(ctx context.Context) ([]string, error) {
	_, pending, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(pending))
	for _, name := range pending {
		if err := m.apply(ctx, name); err != nil {
			return applied, err
		}
		m.log.Info("migration applied", "name", name)
		applied = append(applied, name)
	}
	return applied, nil
}

// Status returns the ledgered script names and the pending ones, both sorted.
func (m *Migrator) Status(ctx context.Context) (applied, pending []string, err error) {
	if err := m.ensureLedger(ctx); err != nil {
		return nil, nil, err
	}

	done, err := m.appliedSet(ctx)
	if err != nil {
		return nil, nil, err
	}

	files, err := m.files()
	if err != nil {
		return nil, nil, err
	}

	for name := range done {
		applied = append(applied, name)
	}
	sort.Strings(applied)
	for _, name := range files {
		if !done[name] {
			pending = append(pending, name)
		}
	}
	return applied, pending, nil
}

func (m *Migrator) ensureLedger(ctx context.Context) error {
	if _, err := m.store.DB.ExecContext(ctx, m.store.Dialect.LedgerTableSQL()); err != nil {
		return fmt.Errorf("create migrations ledger: %w", err)
	}
	return nil
}

func (m *Migrator) appliedSet(ctx context.Context) (map[string]bool, error) {
	rows, err := m.store.DB.QueryContext(ctx, "SELECT name FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations ledger: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan migration name: %w", err)
		}
		done[name] = true
	}
	return done, rows.Err()
}

func (m *Migrator) files() ([]string, error) {
	entries, err := fs.ReadDir(m.source, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// apply runs one script and its ledger insert in a single transaction.
func (m *Migrator) apply(ctx context.Context, name string) error {
	data, err := fs.ReadFile(m.source, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if content := strings.TrimSpace(string(data)); content != "" {
		if _, err := tx.ExecContext(ctx, content); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, m.store.Rebind("INSERT INTO schema_migrations (name) VALUES (?)"), name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}
