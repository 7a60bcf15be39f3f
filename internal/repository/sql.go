package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"distribution-admin/internal/instrument"
	"distribution-admin/internal/record"
	"distribution-admin/internal/store"
)

const packageColumns = "id, package_name, distribution_group, delivery_type, email_title, email_message, " +
	"file_path, output_filename, access_group, package_enabled, location"

const distributionSelect = "SELECT d.id, d.distribution_name, d.is_public, u.id, u.username, u.alternate_email, u.enabled " +
	"FROM distributions d LEFT JOIN distribution_users u ON u.distribution_id = d.id"

// SQLRepository keeps records in a relational database through database/sql.
type SQLRepository struct {
	store *store.Store
}

func NewSQL(s *store.Store) *SQLRepository {
	return &SQLRepository{store: s}
}

func (r *SQLRepository) Close() error {
	return r.store.Close()
}

func (r *SQLRepository) ListAll(ctx context.Context) (*record.Dataset, error) {
	q := &queries{q: r.store.DB, dialect: r.store.Dialect}

	packages, err := q.packages(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	distributions, err := q.distributions(ctx, "", nil)
	if err != nil {
		return nil, err
	}

	ds := record.NewDataset()
	ds.Packages = append(ds.Packages, packages...)
	ds.Distributions = append(ds.Distributions, distributions...)
	return ds, nil
}

func (r *SQLRepository) CreateOrUpdateDistribution(ctx context.Context, d record.Distribution) (record.Distribution, error) {
	var out record.Distribution
	err := r.inTx(ctx, "write_distribution", false, func(w Writer) error {
		var err error
		out, err = w.CreateOrUpdateDistribution(ctx, d)
		return err
	})
	return out, err
}

func (r *SQLRepository) CreateOrUpdatePackage(ctx context.Context, p record.Package) (record.Package, error) {
	var out record.Package
	err := r.inTx(ctx, "write_package", false, func(w Writer) error {
		var err error
		out, err = w.CreateOrUpdatePackage(ctx, p)
		return err
	})
	return out, err
}

func (r *SQLRepository) Batch(ctx context.Context, fn func(Writer) error) error {
	return r.inTx(ctx, "batch", true, fn)
}

// inTx runs fn against a writer bound to one transaction. With savepoints
// set, each write is wrapped in its own savepoint so a failed write rolls
// back alone and the transaction stays usable.
func (r *SQLRepository) inTx(ctx context.Context, action string, savepoints bool, fn func(Writer) error) error {
	ctx, span := instrument.StartSpan(ctx, "repository", action)
	defer span.End()
	span.SetMetadata("driver", r.store.Dialect.Name())

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		span.SetStatus("error")
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	w := &sqlWriter{
		queries:    queries{q: tx, dialect: r.store.Dialect},
		tx:         tx,
		savepoints: savepoints,
	}
	if err := fn(w); err != nil {
		span.SetStatus("error")
		return err
	}

	if err := tx.Commit(); err != nil {
		span.SetStatus("error")
		return fmt.Errorf("commit: %w", err)
	}
	span.SetStatus("ok")
	return nil
}

// syncNameKeys recomputes name_key for rows whose key was not written by
// nameKey, such as rows backfilled by the schema migration. A row whose key
// would collide with another distribution is left as it is and logged.
func (r *SQLRepository) syncNameKeys(ctx context.Context, log *slog.Logger) error {
	rows, err := r.store.DB.QueryContext(ctx, "SELECT id, distribution_name, name_key FROM distributions ORDER BY id")
	if err != nil {
		return fmt.Errorf("read name keys: %w", err)
	}
	type stale struct {
		id   int64
		name string
	}
	var pending []stale
	for rows.Next() {
		var (
			s   stale
			key string
		)
		if err := rows.Scan(&s.id, &s.name, &key); err != nil {
			rows.Close()
			return fmt.Errorf("scan name key: %w", err)
		}
		if key != nameKey(s.name) {
			pending = append(pending, s)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read name keys: %w", err)
	}

	for _, s := range pending {
		_, err := store.Exec(ctx, r.store.DB, r.store.Rebind("UPDATE distributions SET name_key = ? WHERE id = ?"), nameKey(s.name), s.id)
		if errors.Is(store.MapError(r.store.Dialect, err), store.ErrUniqueViolation) {
			log.Warn("distribution name differs only in case from another distribution", "id", s.id, "name", s.name)
			continue
		}
		if err != nil {
			return fmt.Errorf("update name key of distribution %d: %w", s.id, err)
		}
	}
	return nil
}

// queries holds the statements shared by reads and writes.
type queries struct {
	q       store.Querier
	dialect store.Dialect
}

func (q *queries) rebind(query string) string {
	return store.Rebind(q.dialect, query)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPackage(s scanner) (record.Package, error) {
	var p record.Package
	var delivery string
	err := s.Scan(&p.ID, &p.PackageName, &p.DistributionGroup, &delivery, &p.EmailTitle, &p.EmailMessage,
		&p.FilePath, &p.OutputFilename, &p.AccessGroup, &p.PackageEnabled, &p.Location)
	if err != nil {
		return p, err
	}
	p.DeliveryType = record.DeliveryType(delivery)
	p.SuppliedParameters = record.SuppliedParameters()
	return p, nil
}

func (q *queries) packages(ctx context.Context, where string, args []any) ([]record.Package, error) {
	rows, err := q.q.QueryContext(ctx, q.rebind("SELECT "+packageColumns+" FROM packages"+where+" ORDER BY id"), args...)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer rows.Close()

	var out []record.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// distributions reads distributions with their users, both in id order.
func (q *queries) distributions(ctx context.Context, where string, args []any) ([]record.Distribution, error) {
	rows, err := q.q.QueryContext(ctx, q.rebind(distributionSelect+where+" ORDER BY d.id, u.id"), args...)
	if err != nil {
		return nil, fmt.Errorf("query distributions: %w", err)
	}
	defer rows.Close()

	var out []record.Distribution
	for rows.Next() {
		var (
			d        record.Distribution
			userID   sql.NullInt64
			username sql.NullString
			alt      sql.NullString
			enabled  sql.NullBool
		)
		if err := rows.Scan(&d.ID, &d.DistributionName, &d.IsPublic, &userID, &username, &alt, &enabled); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != d.ID {
			d.Users = []record.DistributionUser{}
			out = append(out, d)
		}
		if userID.Valid {
			last := &out[len(out)-1]
			last.Users = append(last.Users, record.DistributionUser{
				User:           username.String,
				AlternateEmail: alt.String,
				Enabled:        enabled.Bool,
			})
		}
	}
	return out, rows.Err()
}

func (q *queries) exists(ctx context.Context, table string, id int64) (bool, error) {
	var one int
	err := q.q.QueryRowContext(ctx, q.rebind("SELECT 1 FROM "+table+" WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s %d: %w", table, id, err)
	}
	return true, nil
}

// sqlWriter performs writes inside one transaction.
type sqlWriter struct {
	queries
	tx         *sql.Tx
	savepoints bool
	seq        int
}

func (w *sqlWriter) guard(ctx context.Context, fn func() error) error {
	if !w.savepoints {
		return fn()
	}

	w.seq++
	name := fmt.Sprintf("write_%d", w.seq)
	if _, err := w.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := w.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := w.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (w *sqlWriter) CreateOrUpdateDistribution(ctx context.Context, d record.Distribution) (record.Distribution, error) {
	var out record.Distribution
	err := w.guard(ctx, func() error {
		var err error
		out, err = w.writeDistribution(ctx, d)
		return err
	})
	return out, err
}

func (w *sqlWriter) CreateOrUpdatePackage(ctx context.Context, p record.Package) (record.Package, error) {
	var out record.Package
	err := w.guard(ctx, func() error {
		var err error
		out, err = w.writePackage(ctx, p)
		return err
	})
	return out, err
}

func (w *sqlWriter) writeDistribution(ctx context.Context, d record.Distribution) (record.Distribution, error) {
	if d.ID > 0 {
		ok, err := w.exists(ctx, "distributions", d.ID)
		if err != nil {
			return d, err
		}
		if !ok {
			return d, &NotFoundError{Entity: entityDistribution, ID: d.ID}
		}
	}
	if err := w.checkUniqueName(ctx, d.DistributionName, d.ID); err != nil {
		return d, err
	}

	id := d.ID
	if id > 0 {
		_, err := store.Exec(ctx, w.q, w.rebind("UPDATE distributions SET distribution_name = ?, name_key = ?, is_public = ? WHERE id = ?"),
			d.DistributionName, nameKey(d.DistributionName), d.IsPublic, id)
		if err != nil {
			return d, w.nameError(d.DistributionName, fmt.Errorf("update distribution %d: %w", id, err))
		}
		if _, err := store.Exec(ctx, w.q, w.rebind("DELETE FROM distribution_users WHERE distribution_id = ?"), id); err != nil {
			return d, fmt.Errorf("clear users of distribution %d: %w", id, err)
		}
	} else {
		err := w.q.QueryRowContext(ctx, w.rebind("INSERT INTO distributions (distribution_name, name_key, is_public) VALUES (?, ?, ?) RETURNING id"),
			d.DistributionName, nameKey(d.DistributionName), d.IsPublic).Scan(&id)
		if err != nil {
			return d, w.nameError(d.DistributionName, fmt.Errorf("insert distribution: %w", err))
		}
	}

	for i, u := range d.Users {
		_, err := store.Exec(ctx, w.q,
			w.rebind("INSERT INTO distribution_users (distribution_id, username, alternate_email, enabled) VALUES (?, ?, ?, ?)"),
			id, u.User, u.AlternateEmail, u.Enabled)
		if err != nil {
			return d, fmt.Errorf("insert user %d of distribution %d: %w", i, id, err)
		}
	}

	found, err := w.distributions(ctx, " WHERE d.id = ?", []any{id})
	if err != nil {
		return d, err
	}
	if len(found) == 0 {
		return d, &NotFoundError{Entity: entityDistribution, ID: id}
	}
	return found[0], nil
}

func (w *sqlWriter) checkUniqueName(ctx context.Context, name string, self int64) error {
	var other int64
	err := w.q.QueryRowContext(ctx,
		w.rebind("SELECT id FROM distributions WHERE name_key = ? AND id <> ?"),
		nameKey(name), self).Scan(&other)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check distribution name: %w", err)
	}
	return &DuplicateNameError{Name: name}
}

// nameError turns a unique index violation into the duplicate name error.
func (w *sqlWriter) nameError(name string, err error) error {
	if errors.Is(store.MapError(w.dialect, err), store.ErrUniqueViolation) {
		return &DuplicateNameError{Name: name}
	}
	return err
}

func (w *sqlWriter) writePackage(ctx context.Context, p record.Package) (record.Package, error) {
	if p.ID > 0 {
		ok, err := w.exists(ctx, "packages", p.ID)
		if err != nil {
			return p, err
		}
		if !ok {
			return p, &NotFoundError{Entity: entityPackage, ID: p.ID}
		}
	}
	if err := w.checkGroup(ctx, p.DistributionGroup); err != nil {
		return p, err
	}

	args := []any{p.PackageName, p.DistributionGroup, string(p.DeliveryType), p.EmailTitle, p.EmailMessage,
		p.FilePath, p.OutputFilename, p.AccessGroup, p.PackageEnabled, p.Location}

	id := p.ID
	if id > 0 {
		_, err := store.Exec(ctx, w.q, w.rebind("UPDATE packages SET package_name = ?, distribution_group = ?, delivery_type = ?, "+
			"email_title = ?, email_message = ?, file_path = ?, output_filename = ?, access_group = ?, "+
			"package_enabled = ?, location = ? WHERE id = ?"), append(args, id)...)
		if err != nil {
			return p, fmt.Errorf("update package %d: %w", id, err)
		}
	} else {
		err := w.q.QueryRowContext(ctx, w.rebind("INSERT INTO packages (package_name, distribution_group, delivery_type, "+
			"email_title, email_message, file_path, output_filename, access_group, package_enabled, location) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id"), args...).Scan(&id)
		if err != nil {
			return p, fmt.Errorf("insert package: %w", err)
		}
	}

	found, err := w.packages(ctx, " WHERE id = ?", []any{id})
	if err != nil {
		return p, err
	}
	if len(found) == 0 {
		return p, &NotFoundError{Entity: entityPackage, ID: id}
	}
	return found[0], nil
}

// checkGroup requires a non-empty group to name an existing distribution.
func (w *sqlWriter) checkGroup(ctx context.Context, group string) error {
	if group == "" {
		return nil
	}
	var one int
	err := w.q.QueryRowContext(ctx,
		w.rebind("SELECT 1 FROM distributions WHERE name_key = ? LIMIT 1"),
		nameKey(group)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &UnknownGroupError{Group: group}
	}
	if err != nil {
		return fmt.Errorf("check distribution group: %w", err)
	}
	return nil
}
