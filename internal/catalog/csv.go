package catalog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"distribution-admin/internal/record"
)

// ErrMalformedCSV is returned by ParseCSV for input it cannot read.
var ErrMalformedCSV = errors.New("malformed csv")

const (
	entityTypePackage      = "package"
	entityTypeDistribution = "distribution"
)

// csvHeader is the flattened export layout: one row per record, the
// entityType column says which columns apply, nested lists are JSON text.
var csvHeader = []string{
	"entityType", "id",
	"packageName", "distributionGroup", "deliveryType", "emailTitle", "emailMessage",
	"filePath", "outputFilename", "accessGroup", "packageEnabled", "location", "suppliedParameters",
	"distributionName", "isPublic", "users",
}

// packageFields are the package columns carried back into a batch on import.
var packageFields = []string{
	"packageName", "distributionGroup", "deliveryType", "emailTitle", "emailMessage",
	"filePath", "outputFilename", "accessGroup", "packageEnabled", "location",
}

// WriteCSV writes packages first, then distributions.
func WriteCSV(w io.Writer, ds *record.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, p := range ds.Packages {
		params, err := json.Marshal(p.SuppliedParameters)
		if err != nil {
			return fmt.Errorf("package %d parameters: %w", p.ID, err)
		}
		row := map[string]string{
			"entityType":         entityTypePackage,
			"id":                 strconv.FormatInt(p.ID, 10),
			"packageName":        p.PackageName,
			"distributionGroup":  p.DistributionGroup,
			"deliveryType":       string(p.DeliveryType),
			"emailTitle":         p.EmailTitle,
			"emailMessage":       p.EmailMessage,
			"filePath":           p.FilePath,
			"outputFilename":     p.OutputFilename,
			"accessGroup":        p.AccessGroup,
			"packageEnabled":     strconv.FormatBool(p.PackageEnabled),
			"location":           p.Location,
			"suppliedParameters": string(params),
		}
		if err := cw.Write(csvRow(row)); err != nil {
			return err
		}
	}

	for _, d := range ds.Distributions {
		users := d.Users
		if users == nil {
			users = []record.DistributionUser{}
		}
		blob, err := json.Marshal(users)
		if err != nil {
			return fmt.Errorf("distribution %d users: %w", d.ID, err)
		}
		row := map[string]string{
			"entityType":       entityTypeDistribution,
			"id":               strconv.FormatInt(d.ID, 10),
			"distributionName": d.DistributionName,
			"isPublic":         d.IsPublic,
			"users":            string(blob),
		}
		if err := cw.Write(csvRow(row)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(values map[string]string) []string {
	row := make([]string, len(csvHeader))
	for i, col := range csvHeader {
		row[i] = values[col]
	}
	return row
}

// ParseCSV reads the flattened export layout back into a batch. Columns are
// located by header name; ids and suppliedParameters are ignored because
// imported records are always created anew with the fixed template.
func ParseCSV(r io.Reader) (Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Batch{}, nil
	}
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if _, ok := cols["entityType"]; !ok {
		return Batch{}, fmt.Errorf("%w: missing entityType column", ErrMalformedCSV)
	}

	var b Batch
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Batch{}, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
		}
		line, _ := cr.FieldPos(0)
		get := func(col string) (string, bool) {
			i, ok := cols[col]
			if !ok || i >= len(fields) {
				return "", false
			}
			return fields[i], true
		}

		entity, _ := get("entityType")
		switch strings.ToLower(strings.TrimSpace(entity)) {
		case entityTypePackage:
			raw := map[string]any{}
			for _, col := range packageFields {
				if v, ok := get(col); ok {
					raw[col] = v
				}
			}
			b.Packages = append(b.Packages, raw)
		case entityTypeDistribution:
			raw := map[string]any{}
			if v, ok := get("distributionName"); ok {
				raw["distributionName"] = v
			}
			if v, ok := get("isPublic"); ok && v != "" {
				raw["isPublic"] = v
			}
			if v, ok := get("users"); ok && strings.TrimSpace(v) != "" {
				var users any
				if err := json.Unmarshal([]byte(v), &users); err != nil {
					return Batch{}, fmt.Errorf("%w: line %d: users: %v", ErrMalformedCSV, line, err)
				}
				raw["users"] = users
			}
			b.Distributions = append(b.Distributions, raw)
		default:
			return Batch{}, fmt.Errorf("%w: line %d: unknown entityType %q", ErrMalformedCSV, line, entity)
		}
	}
	return b, nil
}
