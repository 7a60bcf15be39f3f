package catalog

import (
	"context"
	"fmt"

	"distribution-admin/internal/config"
	"distribution-admin/internal/instrument"
	"distribution-admin/internal/repository"
)

// Batch is a set of raw records submitted for import.
type Batch struct {
	Packages      []map[string]any
	Distributions []map[string]any
}

// BatchFromBody reads the packages and distributions lists of a decoded
// request body. A missing or non-list value is an empty list; a list element
// that is not an object becomes an empty record, which fails validation.
func BatchFromBody(body map[string]any) Batch {
	return Batch{
		Packages:      objectList(body["packages"]),
		Distributions: objectList(body["distributions"]),
	}
}

func objectList(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			m = map[string]any{}
		}
		out = append(out, m)
	}
	return out
}

// Skipped describes a record left out of an import.
type Skipped struct {
	Entity string `json:"entity"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a committed import.
type ImportResult struct {
	Distributions int       `json:"distributions"`
	Packages      int       `json:"packages"`
	Skipped       []Skipped `json:"skipped"`
}

// ImportError names the record that aborted a fail-fast import.
type ImportError struct {
	Entity string
	Index  int
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s[%d]: %v", e.Entity, e.Index, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// Import stores a batch as new records: distributions first, so packages may
// reference distributions from the same batch. The whole batch is one unit of
// work. Under the skip policy records that fail are left out and reported;
// under fail-fast the first failure discards the batch.
func (s *Service) Import(ctx context.Context, b Batch) (*ImportResult, error) {
	ctx, span := instrument.StartSpan(ctx, "catalog", "import")
	defer span.End()
	span.SetMetadata("policy", s.policy)

	var result *ImportResult
	err := s.repo.Batch(ctx, func(w repository.Writer) error {
		res := &ImportResult{Skipped: []Skipped{}}

		// reject reports whether the batch must stop because of err.
		reject := func(entity string, index int, err error) error {
			if !IsRecordError(err) {
				return fmt.Errorf("%s[%d]: %w", entity, index, err)
			}
			if s.policy == config.PolicyFailFast {
				return &ImportError{Entity: entity, Index: index, Err: err}
			}
			res.Skipped = append(res.Skipped, Skipped{Entity: entity, Index: index, Reason: err.Error()})
			return nil
		}

		for i, raw := range b.Distributions {
			d, err := s.prepareDistribution(raw)
			if err == nil {
				d.ID = 0
				_, err = w.CreateOrUpdateDistribution(ctx, d)
			}
			if err != nil {
				if stop := reject("distributions", i, err); stop != nil {
					return stop
				}
				continue
			}
			res.Distributions++
		}

		for i, raw := range b.Packages {
			p, err := s.preparePackage(raw)
			if err == nil {
				p.ID = 0
				_, err = w.CreateOrUpdatePackage(ctx, p)
			}
			if err != nil {
				if stop := reject("packages", i, err); stop != nil {
					return stop
				}
				continue
			}
			res.Packages++
		}

		result = res
		return nil
	})
	if err != nil {
		span.SetStatus("error")
		s.log.Warn("import rejected", "policy", s.policy, "error", err, "trace_id", instrument.GetTraceID(ctx))
		return nil, err
	}

	span.SetStatus("ok")
	span.SetMetadata("skipped", len(result.Skipped))
	s.log.Info("import committed",
		"policy", s.policy,
		"distributions", result.Distributions,
		"packages", result.Packages,
		"skipped", len(result.Skipped),
		"trace_id", instrument.GetTraceID(ctx),
	)
	return result, nil
}
