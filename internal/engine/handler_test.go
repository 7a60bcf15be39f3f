package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distribution-admin/internal/catalog"
	"distribution-admin/internal/config"
	"distribution-admin/internal/instrument"
	"distribution-admin/internal/logging"
	"distribution-admin/internal/record"
	"distribution-admin/internal/repository"
	"distribution-admin/internal/validate"
)

func newTestApp(t *testing.T, policy string, bodyLimit int) *fiber.App {
	t.Helper()
	return newTracedTestApp(t, policy, bodyLimit, instrument.NewLogInstrumenter(logging.Discard()))
}

func newTracedTestApp(t *testing.T, policy string, bodyLimit int, inst instrument.Instrumenter) *fiber.App {
	t.Helper()
	repo, err := repository.Open(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   t.TempDir(),
		Name:   "http",
	}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	v, err := validate.New(config.RulesConfig{})
	require.NoError(t, err)
	svc := catalog.New(repo, v, policy, logging.Discard())
	return NewApp(NewHandler(svc), Options{
		BodyLimit:    bodyLimit,
		Logger:       logging.Discard(),
		Instrumenter: inst,
	})
}

func do(t *testing.T, app *fiber.App, method, path, body string, contentType ...string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, rdr)
	require.NoError(t, err)
	ct := "application/json"
	if len(contentType) > 0 {
		ct = contentType[0]
	}
	req.Header.Set("Content-Type", ct)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeError(t *testing.T, data []byte) AppError {
	t.Helper()
	var e AppError
	require.NoError(t, json.Unmarshal(data, &e), string(data))
	return e
}

func decodeDataset(t *testing.T, data []byte) record.Dataset {
	t.Helper()
	var ds record.Dataset
	require.NoError(t, json.Unmarshal(data, &ds), string(data))
	return ds
}

func TestCreateDistribution_DuplicateNameConflicts(t *testing.T) {
	app := newTestApp(t, "", 0)

	resp, data := do(t, app, "POST", "/api/distributions", `{"distributionName":"Finance"}`)
	require.Equal(t, 201, resp.StatusCode, string(data))
	var d record.Distribution
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, int64(1), d.ID)
	assert.Equal(t, record.VisibilityEnabled, d.IsPublic)
	assert.NotNil(t, d.Users)

	resp, data = do(t, app, "POST", "/api/distributions", `{"distributionName":"finance"}`)
	assert.Equal(t, 409, resp.StatusCode)
	e := decodeError(t, data)
	assert.Equal(t, "CONFLICT", e.Code)
	assert.Contains(t, e.Message, "unique")
}

func TestListEndpointsReturnRecordsInIDOrder(t *testing.T) {
	app := newTestApp(t, "", 0)

	resp, data := do(t, app, "GET", "/api/packages", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(data))

	do(t, app, "POST", "/api/distributions", `{"distributionName":"Finance","users":[{"user":"a"}]}`)
	do(t, app, "POST", "/api/distributions", `{"distributionName":"Ärzte"}`)
	do(t, app, "POST", "/api/packages", `{"packageName":"Report A","distributionGroup":"Ärzte"}`)
	do(t, app, "POST", "/api/packages", `{"packageName":"Report B","distributionGroup":"finance"}`)

	resp, data = do(t, app, "GET", "/api/distributions", "")
	require.Equal(t, 200, resp.StatusCode)
	var dists []record.Distribution
	require.NoError(t, json.Unmarshal(data, &dists), string(data))
	require.Len(t, dists, 2)
	assert.Equal(t, "Finance", dists[0].DistributionName)
	assert.Equal(t, []record.DistributionUser{{User: "a"}}, dists[0].Users)
	assert.Equal(t, int64(2), dists[1].ID)

	resp, data = do(t, app, "GET", "/api/packages", "")
	require.Equal(t, 200, resp.StatusCode)
	var pkgs []record.Package
	require.NoError(t, json.Unmarshal(data, &pkgs), string(data))
	require.Len(t, pkgs, 2)
	assert.Equal(t, "Report A", pkgs[0].PackageName)
	assert.Equal(t, "Report B", pkgs[1].PackageName)
	assert.Len(t, pkgs[0].SuppliedParameters, 3)
}

func TestRequestSpanCarriesClientStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	app := newTracedTestApp(t, "", 0, instrument.NewLogInstrumenter(log))

	do(t, app, "POST", "/api/distributions", `{"distributionName":"Finance"}`)
	buf.Reset()
	resp, _ := do(t, app, "POST", "/api/distributions", `{"distributionName":"FINANCE"}`)
	require.Equal(t, 409, resp.StatusCode)

	var root map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		if line["component"] == "http" {
			root = line
		}
	}
	require.NotNil(t, root)
	assert.EqualValues(t, 409, root["status_code"])
	assert.Equal(t, "error", root["status"])
}

func TestCreatePackage_DefaultsAndUnknownGroup(t *testing.T) {
	app := newTestApp(t, "", 0)
	resp, _ := do(t, app, "POST", "/api/distributions", `{"distributionName":"Finance"}`)
	require.Equal(t, 201, resp.StatusCode)

	resp, data := do(t, app, "POST", "/api/packages", `{"packageName":"Report A","distributionGroup":"Finance"}`)
	require.Equal(t, 201, resp.StatusCode, string(data))
	var p record.Package
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, record.DeliveryOneEmail, p.DeliveryType)
	assert.Len(t, p.SuppliedParameters, 3)

	resp, data = do(t, app, "POST", "/api/packages", `{"packageName":"Report B","distributionGroup":"Unknown"}`)
	assert.Equal(t, 400, resp.StatusCode)
	e := decodeError(t, data)
	assert.Equal(t, "UNKNOWN_DISTRIBUTION_GROUP", e.Code)
	assert.Contains(t, e.Message, "Unknown")

	_, data = do(t, app, "GET", "/api/data", "")
	assert.Len(t, decodeDataset(t, data).Packages, 1)
}

func TestCreatePackage_ValidationErrors(t *testing.T) {
	app := newTestApp(t, "", 0)

	resp, data := do(t, app, "POST", "/api/packages", `{"packageName":"X","deliveryType":"Carrier pigeon"}`)
	assert.Equal(t, 400, resp.StatusCode)
	e := decodeError(t, data)
	assert.Equal(t, "VALIDATION_FAILED", e.Code)
	assert.Equal(t, "deliveryType", e.Field)

	resp, data = do(t, app, "POST", "/api/packages", "")
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "packageName", decodeError(t, data).Field)
}

func TestMalformedBodies(t *testing.T) {
	app := newTestApp(t, "", 0)

	resp, data := do(t, app, "POST", "/api/packages", `{"packageName":`)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "INVALID_PAYLOAD", decodeError(t, data).Code)

	resp, data = do(t, app, "POST", "/api/distributions", `["Finance"]`)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "INVALID_PAYLOAD", decodeError(t, data).Code)
}

func TestOversizedBody(t *testing.T) {
	app := newTestApp(t, "", 64)

	body := `{"packageName":"` + strings.Repeat("x", 256) + `"}`
	resp, data := do(t, app, "POST", "/api/packages", body)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "INVALID_PAYLOAD", decodeError(t, data).Code)
}

func TestUpdateEndpointsReturnDataset(t *testing.T) {
	app := newTestApp(t, "", 0)
	do(t, app, "POST", "/api/distributions", `{"distributionName":"Finance","users":[{"user":"a"},{"user":"b"}]}`)
	do(t, app, "POST", "/api/packages", `{"packageName":"Report"}`)

	resp, data := do(t, app, "PUT", "/api/distributions/1", `{"id":9,"distributionName":"Finance EU","users":[{"user":"c","enabled":true}]}`)
	require.Equal(t, 200, resp.StatusCode, string(data))
	ds := decodeDataset(t, data)
	require.Len(t, ds.Distributions, 1)
	assert.Equal(t, int64(1), ds.Distributions[0].ID)
	assert.Equal(t, []record.DistributionUser{{User: "c", Enabled: true}}, ds.Distributions[0].Users)

	resp, data = do(t, app, "PUT", "/api/packages/1", `{"packageName":"Report","distributionGroup":"finance eu","location":"Vienna"}`)
	require.Equal(t, 200, resp.StatusCode, string(data))
	ds = decodeDataset(t, data)
	assert.Equal(t, "Vienna", ds.Packages[0].Location)

	resp, data = do(t, app, "PUT", "/api/packages/42", `{"packageName":"Ghost"}`)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, data).Code)

	resp, _ = do(t, app, "PUT", "/api/distributions/abc", `{"distributionName":"Ghost"}`)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestImport_SkipReportsHeader(t *testing.T) {
	app := newTestApp(t, config.PolicySkip, 0)

	body := `{"distributions":[{"distributionName":"Finance"},{"isPublic":"enabled"}],"packages":[{"packageName":"R","distributionGroup":"Finance"}]}`
	resp, data := do(t, app, "POST", "/api/import", body)
	require.Equal(t, 200, resp.StatusCode, string(data))
	assert.Equal(t, "1", resp.Header.Get(SkippedHeader))
	ds := decodeDataset(t, data)
	assert.Len(t, ds.Distributions, 1)
	assert.Len(t, ds.Packages, 1)
}

func TestImport_FailFastRejectsBatch(t *testing.T) {
	app := newTestApp(t, config.PolicyFailFast, 0)

	body := `{"distributions":[{"distributionName":"Finance"},{"isPublic":"enabled"}]}`
	resp, data := do(t, app, "POST", "/api/import", body)
	assert.Equal(t, 400, resp.StatusCode)
	e := decodeError(t, data)
	assert.Equal(t, "IMPORT_REJECTED", e.Code)
	assert.Contains(t, e.Message, "distributions[1]")

	_, data = do(t, app, "GET", "/api/data", "")
	assert.Empty(t, decodeDataset(t, data).Distributions)
}

func TestExportAndCSVImport(t *testing.T) {
	src := newTestApp(t, "", 0)
	do(t, src, "POST", "/api/distributions", `{"distributionName":"Finance","users":[{"user":"alice"}]}`)
	do(t, src, "POST", "/api/packages", `{"packageName":"Report","distributionGroup":"Finance"}`)

	resp, csvData := do(t, src, "GET", "/api/export?format=csv", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv"))

	dst := newTestApp(t, "", 0)
	resp, data := do(t, dst, "POST", "/api/import", string(csvData), "text/csv")
	require.Equal(t, 200, resp.StatusCode, string(data))
	assert.Equal(t, "0", resp.Header.Get(SkippedHeader))
	ds := decodeDataset(t, data)
	require.Len(t, ds.Distributions, 1)
	assert.Equal(t, "alice", ds.Distributions[0].Users[0].User)
	require.Len(t, ds.Packages, 1)

	resp, data = do(t, src, "GET", "/api/export", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Disposition"))
	assert.Len(t, decodeDataset(t, data).Packages, 1)

	resp, _ = do(t, src, "GET", "/api/export?format=yaml", "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	resp, data = do(t, src, "GET", "/api/export?format=xml", "")
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "INVALID_FORMAT", decodeError(t, data).Code)
}

func TestUnmatchedRouteAndTraceHeader(t *testing.T) {
	app := newTestApp(t, "", 0)

	resp, data := do(t, app, "GET", "/api/nope", "")
	assert.Equal(t, 404, resp.StatusCode)
	e := decodeError(t, data)
	assert.Equal(t, "Not found", e.Message)
	assert.Equal(t, "NOT_FOUND", e.Code)
	assert.NotEmpty(t, resp.Header.Get(instrument.TraceHeader))

	resp, data = do(t, app, "GET", "/health", "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	resp, data = do(t, app, "GET", "/", "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(data), "<title>Distribution Admin</title>")
}
