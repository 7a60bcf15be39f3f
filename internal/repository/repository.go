// Package repository persists packages and distributions and enforces the
// cross-record rules that need existing state: unique distribution names and
// package groups that reference an existing distribution.
package repository

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"distribution-admin/internal/config"
	"distribution-admin/internal/record"
	"distribution-admin/internal/store"
)

// Writer creates or updates single records. A record with ID > 0 is updated
// by id, anything else is inserted and assigned the next id.
type Writer interface {
	CreateOrUpdateDistribution(ctx context.Context, d record.Distribution) (record.Distribution, error)
	CreateOrUpdatePackage(ctx context.Context, p record.Package) (record.Package, error)
}

// Repository is the storage strategy behind the service.
type Repository interface {
	Writer
	ListAll(ctx context.Context) (*record.Dataset, error)
	// Batch runs fn as one all-or-nothing unit. A write that fails inside fn
	// leaves no trace of itself, so fn may ignore the error and continue.
	Batch(ctx context.Context, fn func(Writer) error) error
	Close() error
}

// DuplicateNameError reports a distribution name that another distribution
// already uses, compared case-insensitively.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("Distribution name must be unique (%q already exists).", e.Name)
}

// UnknownGroupError reports a package whose distributionGroup matches no
// distribution.
type UnknownGroupError struct {
	Group string
}

func (e *UnknownGroupError) Error() string {
	return fmt.Sprintf("Distribution group %q does not exist.", e.Group)
}

// NotFoundError reports an update addressed to an id that does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %d not found", e.Entity, e.ID)
}

// nameKey is the form distribution names are compared in.
func nameKey(name string) string {
	return strings.ToLower(name)
}

const (
	entityPackage      = "package"
	entityDistribution = "distribution"
)

// Open builds the repository selected by cfg.Driver and brings its storage up
// to date: relational stores are migrated, the document store gets its file.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (Repository, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Driver == config.DriverFile {
		doc, err := OpenDocument(cfg.DSN())
		if err != nil {
			return nil, err
		}
		return doc, nil
	}

	s, err := store.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var src fs.FS
	if cfg.MigrationsDir != "" {
		src = os.DirFS(cfg.MigrationsDir)
	}
	if _, err := store.NewMigrator(s, src, log).Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	repo := NewSQL(s)
	if err := repo.syncNameKeys(ctx, log); err != nil {
		s.Close()
		return nil, err
	}
	return repo, nil
}
