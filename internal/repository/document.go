package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"distribution-admin/internal/instrument"
	"distribution-admin/internal/record"
)

// document is the on-disk layout of the document store.
type document struct {
	Meta          documentMeta          `json:"meta"`
	Packages      []storedPackage       `json:"packages"`
	Distributions []record.Distribution `json:"distributions"`
}

type documentMeta struct {
	NextPackageID      int64 `json:"nextPackageId"`
	NextDistributionID int64 `json:"nextDistributionId"`
}

// storedPackage is a package without its parameter template, which is
// attached on every read instead of being persisted.
type storedPackage struct {
	ID                int64               `json:"id"`
	PackageName       string              `json:"packageName"`
	DistributionGroup string              `json:"distributionGroup"`
	DeliveryType      record.DeliveryType `json:"deliveryType"`
	EmailTitle        string              `json:"emailTitle"`
	EmailMessage      string              `json:"emailMessage"`
	FilePath          string              `json:"filePath"`
	OutputFilename    string              `json:"outputFilename"`
	AccessGroup       string              `json:"accessGroup"`
	PackageEnabled    bool                `json:"packageEnabled"`
	Location          string              `json:"location"`
}

func toStored(p record.Package) storedPackage {
	return storedPackage{
		ID:                p.ID,
		PackageName:       p.PackageName,
		DistributionGroup: p.DistributionGroup,
		DeliveryType:      p.DeliveryType,
		EmailTitle:        p.EmailTitle,
		EmailMessage:      p.EmailMessage,
		FilePath:          p.FilePath,
		OutputFilename:    p.OutputFilename,
		AccessGroup:       p.AccessGroup,
		PackageEnabled:    p.PackageEnabled,
		Location:          p.Location,
	}
}

func (s storedPackage) record() record.Package {
	return record.Package{
		ID:                 s.ID,
		PackageName:        s.PackageName,
		DistributionGroup:  s.DistributionGroup,
		DeliveryType:       s.DeliveryType,
		EmailTitle:         s.EmailTitle,
		EmailMessage:       s.EmailMessage,
		FilePath:           s.FilePath,
		OutputFilename:     s.OutputFilename,
		AccessGroup:        s.AccessGroup,
		PackageEnabled:     s.PackageEnabled,
		Location:           s.Location,
		SuppliedParameters: record.SuppliedParameters(),
	}
}

func newDocument() *document {
	return &document{
		Meta:          documentMeta{NextPackageID: 1, NextDistributionID: 1},
		Packages:      []storedPackage{},
		Distributions: []record.Distribution{},
	}
}

// DocumentRepository keeps every record in a single JSON file. Writes are
// serialized by a mutex and replace the file atomically.
type DocumentRepository struct {
	path string
	mu   sync.Mutex
}

// OpenDocument opens the document at path, creating it and its directory
// when missing.
func OpenDocument(path string) (*DocumentRepository, error) {
	r := &DocumentRepository{path: path}
	if err := r.ensure(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DocumentRepository) ensure() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	if _, err := os.Stat(r.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat document: %w", err)
	}
	return r.save(newDocument())
}

func (r *DocumentRepository) Close() error {
	return nil
}

func (r *DocumentRepository) load() (*document, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc := newDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", r.path, err)
	}
	if doc.Packages == nil {
		doc.Packages = []storedPackage{}
	}
	if doc.Distributions == nil {
		doc.Distributions = []record.Distribution{}
	}

	// Counters never fall behind the ids already handed out.
	for _, p := range doc.Packages {
		doc.Meta.NextPackageID = max(doc.Meta.NextPackageID, p.ID+1)
	}
	for _, d := range doc.Distributions {
		doc.Meta.NextDistributionID = max(doc.Meta.NextDistributionID, d.ID+1)
	}
	return doc, nil
}

// save writes doc to a temporary file next to the target and renames it over
// the target.
func (r *DocumentRepository) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListAll(ctx context.Context) (*record.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	ds := record.NewDataset()
	for _, p := range doc.Packages {
		ds.Packages = append(ds.Packages, p.record())
	}
	for _, d := range doc.Distributions {
		ds.Distributions = append(ds.Distributions, cloneDistribution(d))
	}
	slices.SortFunc(ds.Packages, func(a, b record.Package) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(ds.Distributions, func(a, b record.Distribution) int { return cmp.Compare(a.ID, b.ID) })
	return ds, nil
}

func (r *DocumentRepository) CreateOrUpdateDistribution(ctx context.Context, d record.Distribution) (record.Distribution, error) {
	var out record.Distribution
	err := r.update(ctx, "write_distribution", func(w Writer) error {
		var err error
		out, err = w.CreateOrUpdateDistribution(ctx, d)
		return err
	})
	return out, err
}

func (r *DocumentRepository) CreateOrUpdatePackage(ctx context.Context, p record.Package) (record.Package, error) {
	var out record.Package
	err := r.update(ctx, "write_package", func(w Writer) error {
		var err error
		out, err = w.CreateOrUpdatePackage(ctx, p)
		return err
	})
	return out, err
}

func (r *DocumentRepository) Batch(ctx context.Context, fn func(Writer) error) error {
	return r.update(ctx, "batch", fn)
}

// update loads the document, lets fn change it in memory and persists the
// result only when fn succeeds.
func (r *DocumentRepository) update(ctx context.Context, action string, fn func(Writer) error) error {
	_, span := instrument.StartSpan(ctx, "repository", action)
	defer span.End()
	span.SetMetadata("driver", "file")

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		span.SetStatus("error")
		return err
	}
	if err := fn(&docWriter{doc: doc}); err != nil {
		span.SetStatus("error")
		return err
	}
	if err := r.save(doc); err != nil {
		span.SetStatus("error")
		return err
	}
	span.SetStatus("ok")
	return nil
}

// docWriter applies writes to an in-memory document. Every check runs before
// the first change, so a failed write leaves the document untouched.
type docWriter struct {
	doc *document
}

func (w *docWriter) CreateOrUpdateDistribution(_ context.Context, d record.Distribution) (record.Distribution, error) {
	idx := -1
	if d.ID > 0 {
		idx = slices.IndexFunc(w.doc.Distributions, func(x record.Distribution) bool { return x.ID == d.ID })
		if idx < 0 {
			return d, &NotFoundError{Entity: entityDistribution, ID: d.ID}
		}
	}

	name := nameKey(d.DistributionName)
	for _, other := range w.doc.Distributions {
		if other.ID != d.ID && nameKey(other.DistributionName) == name {
			return d, &DuplicateNameError{Name: d.DistributionName}
		}
	}

	stored := cloneDistribution(d)
	if idx >= 0 {
		w.doc.Distributions[idx] = stored
	} else {
		stored.ID = w.doc.Meta.NextDistributionID
		w.doc.Meta.NextDistributionID++
		w.doc.Distributions = append(w.doc.Distributions, stored)
	}
	return cloneDistribution(stored), nil
}

func (w *docWriter) CreateOrUpdatePackage(_ context.Context, p record.Package) (record.Package, error) {
	idx := -1
	if p.ID > 0 {
		idx = slices.IndexFunc(w.doc.Packages, func(x storedPackage) bool { return x.ID == p.ID })
		if idx < 0 {
			return p, &NotFoundError{Entity: entityPackage, ID: p.ID}
		}
	}

	if p.DistributionGroup != "" {
		group := nameKey(p.DistributionGroup)
		known := slices.ContainsFunc(w.doc.Distributions, func(d record.Distribution) bool {
			return nameKey(d.DistributionName) == group
		})
		if !known {
			return p, &UnknownGroupError{Group: p.DistributionGroup}
		}
	}

	stored := toStored(p)
	if idx >= 0 {
		w.doc.Packages[idx] = stored
	} else {
		stored.ID = w.doc.Meta.NextPackageID
		w.doc.Meta.NextPackageID++
		w.doc.Packages = append(w.doc.Packages, stored)
	}
	return stored.record(), nil
}

func cloneDistribution(d record.Distribution) record.Distribution {
	users := make([]record.DistributionUser, len(d.Users))
	copy(users, d.Users)
	d.Users = users
	return d
}
