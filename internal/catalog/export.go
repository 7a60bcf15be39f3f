package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// UnknownFormatError reports an export format that is not supported.
type UnknownFormatError struct {
	Format string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("Unknown export format %q (expected %s, %s or %s).", e.Format, FormatJSON, FormatCSV, FormatYAML)
}

// Export is a rendered dataset ready to be sent.
type Export struct {
	Format      string
	ContentType string
	Filename    string
	Data        []byte
}

// Export renders every stored record in format. An empty format means JSON.
func (s *Service) Export(ctx context.Context, format string) (*Export, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV && format != FormatYAML {
		return nil, &UnknownFormatError{Format: format}
	}

	ds, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	out := &Export{Format: format, Filename: "distribution-admin-export." + format}
	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		if err := WriteCSV(&buf, ds); err != nil {
			return nil, fmt.Errorf("render csv: %w", err)
		}
		out.ContentType = "text/csv; charset=utf-8"
		out.Data = buf.Bytes()
	case FormatYAML:
		data, err := yaml.Marshal(ds)
		if err != nil {
			return nil, fmt.Errorf("render yaml: %w", err)
		}
		out.ContentType = "application/yaml"
		out.Data = data
	default:
		data, err := json.Marshal(ds)
		if err != nil {
			return nil, fmt.Errorf("render json: %w", err)
		}
		out.ContentType = "application/json"
		out.Data = data
	}
	return out, nil
}
