package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vehicle-insights/internal/db"
	"vehicle-insights/internal/insights"
	"vehicle-insights/internal/marketplace"
	"vehicle-insights/internal/models"
	"vehicle-insights/internal/telemetry"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// countingProvider returns a fixed result and counts calls.
type countingProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingProvider) Analyze(context.Context, insights.DataSummary) (*insights.Analysis, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &insights.Analysis{
		Efficiency:  insights.EfficiencyAnalysis{CurrentMPG: 24.6, TargetMPG: 28},
		Maintenance: insights.MaintenanceInsights{CurrentHealthScore: 80},
	}, nil
}

func (p *countingProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, _, user string) (string, error) {
	return "advice for " + user[:20], nil
}

type testEnv struct {
	server   *Server
	db       *db.Database
	provider *countingProvider
}

func newTestEnv(t *testing.T, provider *countingProvider) *testEnv {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	clock := func() time.Time { return testNow }
	cfg := insights.Config{
		Cache: insights.NewPersistentCache(insights.NewMemoryCache(time.Minute, clock), database, nil),
		Retry: insights.RetryPolicy{
			MaxAttempts: 3,
			Backoff:     insights.LinearBackoff(0),
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
		Now: clock,
	}
	var completer insights.Completer
	if provider != nil {
		cfg.Provider = provider
		completer = echoCompleter{}
	}

	gen := telemetry.NewGenerator(11, clock)
	server := NewServer(Deps{
		DB:             database,
		Insights:       insights.NewService(cfg, nil),
		Advisor:        insights.NewAdvisor(completer, nil),
		Generator:      gen,
		Listings:       marketplace.Generate(gen, 20, testNow),
		AnalysisWindow: 48,
	}, nil)

	return &testEnv{server: server, db: database, provider: provider}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Meta    *meta           `json:"meta"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func (e *testEnv) seed(t *testing.T, days int) {
	t.Helper()

	code, env := e.do(t, http.MethodPost, "/api/v1/telemetry/generate?days="+strconv.Itoa(days), nil)
	require.Equal(t, http.StatusCreated, code, env.Error)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	code, env := newTestEnv(t, nil).do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)
}

func TestTelemetryEndpoints(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, nil)
	e.seed(t, 1)

	code, env := e.do(t, http.MethodGet, "/api/v1/telemetry?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	var records []models.TelemetryRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 5)
	require.Equal(t, 5, env.Meta.Total)
	require.True(t, testNow.Equal(records[0].Timestamp))

	code, _ = e.do(t, http.MethodGet, "/api/v1/telemetry/latest", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = e.do(t, http.MethodGet, "/api/v1/telemetry/live", nil)
	require.Equal(t, http.StatusOK, code)
	var live models.TelemetryRecord
	require.NoError(t, json.Unmarshal(env.Data, &live))
	require.NotEmpty(t, live.ID)

	stats, err := e.db.GetStats()
	require.NoError(t, err)
	require.EqualValues(t, 24, stats.TelemetryRecords)
}

func TestCreateTelemetry(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, nil)

	code, env := e.do(t, http.MethodPost, "/api/v1/telemetry", models.TelemetryRecord{
		Speed: 40, FuelLevel: 50, BatteryLevel: 90,
		Location: models.Location{Latitude: 37.7, Longitude: -122.4},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var created models.TelemetryRecord
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.ID)
	require.False(t, created.Timestamp.IsZero())

	code, env = e.do(t, http.MethodPost, "/api/v1/telemetry", models.TelemetryRecord{FuelLevel: 150})
	require.Equal(t, http.StatusBadRequest, code)
	require.False(t, env.Success)

	code, _ = e.do(t, http.MethodPost, "/api/v1/telemetry/batch", []models.TelemetryRecord{})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestGenerateTelemetry_BadDays(t *testing.T) {
	t.Parallel()

	code, _ := newTestEnv(t, nil).do(t, http.MethodPost, "/api/v1/telemetry/generate?days=0", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestInsights_NotConfigured(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, nil)
	e.seed(t, 1)

	code, env := e.do(t, http.MethodGet, "/api/v1/insights", nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Contains(t, env.Error, "not configured")
}

func TestInsights_NoData(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, &countingProvider{})

	code, _ := e.do(t, http.MethodGet, "/api/v1/insights", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/insights", []models.TelemetryRecord{})
	require.Equal(t, http.StatusBadRequest, code)
	require.Zero(t, e.provider.Calls())
}

// TestInsights_CachedAndPersisted verifies repeated requests hit the
// cache and the report lands in the history.
func TestInsights_CachedAndPersisted(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, &countingProvider{})
	e.seed(t, 2)

	code, env := e.do(t, http.MethodGet, "/api/v1/insights", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var report models.Insights
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.Equal(t, 48, report.DataPoints.TotalRecords)
	require.Len(t, report.Visualizations, 3)
	require.Contains(t, report.Summary, "24.6 MPG")

	code, _ = e.do(t, http.MethodGet, "/api/v1/insights", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, e.provider.Calls())

	code, env = e.do(t, http.MethodGet, "/api/v1/insights/history", nil)
	require.Equal(t, http.StatusOK, code)
	var history []models.InsightsRecord
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	require.Equal(t, report.Fingerprint, history[0].Fingerprint)
}

func TestInsights_PostedRecords(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, &countingProvider{})
	records := telemetry.NewGenerator(3, func() time.Time { return testNow }).History(1)

	code, env := e.do(t, http.MethodPost, "/api/v1/insights", records)
	require.Equal(t, http.StatusOK, code, env.Error)
	require.Equal(t, 1, e.provider.Calls())
}

func TestInsights_RateLimited(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, &countingProvider{
		err: &insights.APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"},
	})
	e.seed(t, 1)

	code, env := e.do(t, http.MethodGet, "/api/v1/insights", nil)
	require.Equal(t, http.StatusTooManyRequests, code)
	require.Contains(t, env.Error, "rate limit exceeded")
	require.Equal(t, 3, e.provider.Calls())
}

func TestInsights_UpstreamFailure(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, &countingProvider{err: insights.ErrNoAnalysisResult})
	e.seed(t, 1)

	code, _ := e.do(t, http.MethodGet, "/api/v1/insights", nil)
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, 1, e.provider.Calls())
}

func TestLocalInsights(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, nil)

	code, _ := e.do(t, http.MethodGet, "/api/v1/insights/local", nil)
	require.Equal(t, http.StatusBadRequest, code)

	e.seed(t, 1)
	code, env := e.do(t, http.MethodGet, "/api/v1/insights/local", nil)
	require.Equal(t, http.StatusOK, code)
	var report insights.LocalReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.NotEmpty(t, report.Speed.Summary)
	require.NotEmpty(t, report.Speed.Distribution)
}

func TestAdvisorEndpoints(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, &countingProvider{})

	code, env := e.do(t, http.MethodPost, "/api/v1/insights/maintenance", nil)
	require.Equal(t, http.StatusOK, code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, insights.MsgNoDiagnostics, out["recommendations"])

	code, env = e.do(t, http.MethodPost, "/api/v1/insights/maintenance",
		[]models.DiagnosticAlert{{Code: "P0420", Description: "Catalyst"}})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Contains(t, out["recommendations"], "advice for")

	code, env = e.do(t, http.MethodPost, "/api/v1/insights/value", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, insights.MsgNoVehicleData, out["estimate"])
}

func TestAdvisorEndpoints_NotConfigured(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, nil)
	e.seed(t, 1)

	_, env := e.do(t, http.MethodPost, "/api/v1/insights/value", nil)
	var out map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, insights.MsgNotConfigured, out["estimate"])
}

func TestListings(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, nil)

	code, env := e.do(t, http.MethodGet, "/api/v1/marketplace/listings?sort=price&order=asc", nil)
	require.Equal(t, http.StatusOK, code)
	var listings []models.MarketplaceListing
	require.NoError(t, json.Unmarshal(env.Data, &listings))
	require.Len(t, listings, 20)
	for i := 1; i < len(listings); i++ {
		require.LessOrEqual(t, listings[i-1].Price, listings[i].Price)
	}

	category := listings[0].DataType
	code, env = e.do(t, http.MethodGet, "/api/v1/marketplace/listings?category="+category, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &listings))
	require.NotEmpty(t, listings)
	for _, l := range listings {
		require.Equal(t, category, l.DataType)
	}

	code, _ = e.do(t, http.MethodGet, "/api/v1/marketplace/listings?sort=popularity", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, env = e.do(t, http.MethodGet, "/api/v1/marketplace/categories", nil)
	require.Equal(t, http.StatusOK, code)
	var categories []string
	require.NoError(t, json.Unmarshal(env.Data, &categories))
	require.Contains(t, categories, category)
}

func TestStats(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, nil)
	e.seed(t, 1)

	code, env := e.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats models.StoreStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	require.EqualValues(t, 24, stats.TelemetryRecords)
}
