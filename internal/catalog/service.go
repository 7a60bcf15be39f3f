// Package catalog coordinates validation, normalization and persistence of
// packages and distributions, one at a time or in import batches, and renders
// the stored dataset for export.
package catalog

import (
	"context"
	"errors"
	"log/slog"

	"distribution-admin/internal/config"
	"distribution-admin/internal/record"
	"distribution-admin/internal/repository"
	"distribution-admin/internal/validate"
)

type Service struct {
	repo      repository.Repository
	validator *validate.Validator
	policy    string
	log       *slog.Logger
}

// New builds a service. An empty policy means config.PolicySkip.
func New(repo repository.Repository, validator *validate.Validator, policy string, log *slog.Logger) *Service {
	if policy == "" {
		policy = config.PolicySkip
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, validator: validator, policy: policy, log: log}
}

// Data returns every stored record.
func (s *Service) Data(ctx context.Context) (*record.Dataset, error) {
	return s.repo.ListAll(ctx)
}

// SavePackage validates and stores raw package input. A positive id selects
// the package to update, zero creates a new one; an id inside raw is ignored.
func (s *Service) SavePackage(ctx context.Context, raw map[string]any, id int64) (record.Package, error) {
	p, err := s.preparePackage(raw)
	if err != nil {
		return record.Package{}, err
	}
	p.ID = id
	return s.repo.CreateOrUpdatePackage(ctx, p)
}

// SaveDistribution validates and stores raw distribution input.
func (s *Service) SaveDistribution(ctx context.Context, raw map[string]any, id int64) (record.Distribution, error) {
	d, err := s.prepareDistribution(raw)
	if err != nil {
		return record.Distribution{}, err
	}
	d.ID = id
	return s.repo.CreateOrUpdateDistribution(ctx, d)
}

func (s *Service) preparePackage(raw map[string]any) (record.Package, error) {
	if err := s.validator.ValidatePackage(raw); err != nil {
		return record.Package{}, err
	}
	p := record.NormalizePackage(raw)
	if err := s.validator.CheckPackage(p); err != nil {
		return record.Package{}, err
	}
	return p, nil
}

func (s *Service) prepareDistribution(raw map[string]any) (record.Distribution, error) {
	if err := s.validator.ValidateDistribution(raw); err != nil {
		return record.Distribution{}, err
	}
	d := record.NormalizeDistribution(raw)
	if err := s.validator.CheckDistribution(d); err != nil {
		return record.Distribution{}, err
	}
	return d, nil
}

// IsRecordError reports whether err is a problem with the submitted record
// itself rather than with the storage underneath.
func IsRecordError(err error) bool {
	var (
		ve  *validate.Error
		dup *repository.DuplicateNameError
		ug  *repository.UnknownGroupError
		nf  *repository.NotFoundError
	)
	return errors.As(err, &ve) || errors.As(err, &dup) || errors.As(err, &ug) || errors.As(err, &nf)
}
