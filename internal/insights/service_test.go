package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vehicle-insights/internal/models"
)

func newTestService(p AnalysisProvider, clock *testClock, sleeper *recordingSleeper) *Service {
	return NewService(Config{
		Provider: p,
		Cache:    NewMemoryCache(DefaultCacheTTL, clock.Now),
		Retry:    testPolicy(sleeper),
		Now:      clock.Now,
	}, nil)
}

func TestGenerate_EmptyInput(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{steps: []step{{analysis: sampleAnalysis()}}}
	svc := newTestService(p, newTestClock(), &recordingSleeper{})

	_, err := svc.Generate(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoData)
	require.Zero(t, p.Calls())
}

func TestGenerate_MissingProvider(t *testing.T) {
	t.Parallel()

	svc := NewService(Config{}, nil)

	_, err := svc.Generate(context.Background(), makeRecords(5))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestGenerate_BuildsReport(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	p := &scriptedProvider{steps: []step{{analysis: sampleAnalysis()}}}
	svc := newTestService(p, clock, &recordingSleeper{})
	records := makeRecords(24)

	report, err := svc.Generate(context.Background(), records)
	require.NoError(t, err)

	require.Equal(t, Fingerprint(records), report.Fingerprint)
	require.False(t, report.Stale)
	require.Equal(t, "LLaMA", report.ModelInfo.Name)
	require.Equal(t, "3.1-8b", report.ModelInfo.Version)
	require.Equal(t, clock.Now(), report.ModelInfo.Timestamp)
	require.Equal(t, clock.Now(), report.GeneratedAt)

	require.Equal(t, 24, report.DataPoints.TotalRecords)
	require.Equal(t, records[0].Timestamp, report.DataPoints.TimeRange.Start)
	require.Equal(t, records[23].Timestamp, report.DataPoints.TimeRange.End)
	require.Equal(t, MetricsAnalyzed, report.DataPoints.MetricsAnalyzed)

	require.Contains(t, report.Summary, "Cost & Efficiency Insights")
	require.Contains(t, report.SummaryHTML, "<h3>")

	require.Len(t, report.Visualizations, 3)
	require.Equal(t, models.ChartLine, report.Visualizations[0].Type)
	require.Equal(t, models.ChartGauge, report.Visualizations[1].Type)
	require.Equal(t, models.ChartBar, report.Visualizations[2].Type)
}

// TestGenerate_CacheHitSkipsProvider verifies a second request for the
// same batch within the TTL does not call the provider.
func TestGenerate_CacheHitSkipsProvider(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	p := &scriptedProvider{steps: []step{{analysis: sampleAnalysis()}}}
	svc := newTestService(p, clock, &recordingSleeper{})
	records := makeRecords(24)

	first, err := svc.Generate(context.Background(), records)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	second, err := svc.Generate(context.Background(), records)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, p.Calls())
}

func TestGenerate_CacheExpires(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	p := &scriptedProvider{steps: []step{{analysis: sampleAnalysis()}}}
	svc := newTestService(p, clock, &recordingSleeper{})
	records := makeRecords(24)

	_, err := svc.Generate(context.Background(), records)
	require.NoError(t, err)

	clock.Advance(DefaultCacheTTL)
	_, err = svc.Generate(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, 2, p.Calls())
}

// TestGenerate_RetriesThroughRateLimits verifies the provider is retried
// on 429 with the linear backoff.
func TestGenerate_RetriesThroughRateLimits(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	p := &scriptedProvider{steps: []step{
		{err: rateLimited()},
		{err: rateLimited()},
		{analysis: sampleAnalysis()},
	}}
	svc := newTestService(p, newTestClock(), sleeper)

	report, err := svc.Generate(context.Background(), makeRecords(10))
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Equal(t, 3, p.Calls())
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays())
}

func TestGenerate_RateLimitWithoutCache(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{steps: []step{{err: rateLimited()}}}
	svc := newTestService(p, newTestClock(), &recordingSleeper{})

	_, err := svc.Generate(context.Background(), makeRecords(10))
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	require.Equal(t, 3, p.Calls())
}

// TestGenerate_FallsBackToLastReport verifies a failed refresh serves the
// previous report, marked stale, even for a different batch.
func TestGenerate_FallsBackToLastReport(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{steps: []step{
		{analysis: sampleAnalysis()},
		{err: errors.New("upstream down")},
	}}
	svc := newTestService(p, newTestClock(), &recordingSleeper{})

	first, err := svc.Generate(context.Background(), makeRecords(10))
	require.NoError(t, err)

	other := makeRecords(10)
	other[0].Speed = 99
	fallback, err := svc.Generate(context.Background(), other)
	require.NoError(t, err)

	require.True(t, fallback.Stale)
	require.Equal(t, first.Fingerprint, fallback.Fingerprint)
	require.False(t, first.Stale, "cached report must not be mutated")
}

func TestGenerate_NoAnalysisResultNotRetried(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{steps: []step{{err: ErrNoAnalysisResult}}}
	svc := newTestService(p, newTestClock(), &recordingSleeper{})

	_, err := svc.Generate(context.Background(), makeRecords(10))
	require.ErrorIs(t, err, ErrNoAnalysisResult)
	require.Equal(t, 1, p.Calls())
}

// TestGenerate_PersistsThroughCache verifies a PersistentCache receives
// each fresh report.
func TestGenerate_PersistsThroughCache(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	store := &memStore{}
	p := &scriptedProvider{steps: []step{{analysis: sampleAnalysis()}}}
	svc := NewService(Config{
		Provider: p,
		Cache:    NewPersistentCache(NewMemoryCache(time.Minute, clock.Now), store, nil),
		Retry:    testPolicy(&recordingSleeper{}),
		Now:      clock.Now,
	}, nil)

	report, err := svc.Generate(context.Background(), makeRecords(10))
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	require.Equal(t, report.Fingerprint, store.saved[0].Fingerprint)
}
