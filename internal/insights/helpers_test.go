package insights

import (
	"context"
	"strconv"
	"sync"
	"time"

	"vehicle-insights/internal/models"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// makeRecords returns n hourly records, newest first, with distinct
// speeds.
func makeRecords(n int) []models.TelemetryRecord {
	records := make([]models.TelemetryRecord, n)
	for i := range records {
		records[i] = models.TelemetryRecord{
			ID:             "rec-" + strconv.Itoa(i),
			Timestamp:      testEpoch.Add(-time.Duration(i) * time.Hour),
			Speed:          float64(30 + i%50),
			RPM:            2000,
			FuelLevel:      80 - float64(i%40),
			EngineTemp:     195,
			BatteryLevel:   90,
			FuelEfficiency: 20 + float64(i%10),
		}
	}
	return records
}

// step is one scripted provider answer.
type step struct {
	analysis *Analysis
	err      error
}

// scriptedProvider replays steps in order and repeats the last one.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (p *scriptedProvider) Analyze(ctx context.Context, _ DataSummary) (*Analysis, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.calls
	p.calls++
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	return p.steps[i].analysis, p.steps[i].err
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// recordingSleeper captures backoff delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func testPolicy(s *recordingSleeper) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     LinearBackoff(DefaultRetryDelay),
		Sleep:       s.Sleep,
	}
}

func rateLimited() error {
	return &APIError{StatusCode: 429, Message: "Rate limit reached"}
}

func sampleAnalysis() *Analysis {
	return &Analysis{
		Efficiency: EfficiencyAnalysis{
			CurrentMPG: 24.6,
			TargetMPG:  28,
			PotentialSavings: PotentialSavings{
				MonthlyFuelCost:         180,
				PotentialMonthlySavings: 22.5,
				ImprovementTips:         []string{"Avoid rapid acceleration"},
			},
		},
		Habits: DrivingHabits{
			AggressiveAccelerationCount: 4,
			HardBrakingCount:            2,
			Recommendations:             []string{"Keep a steady speed"},
			SpeedDistribution: []SpeedBucket{
				{Range: "0-30", Count: 12},
				{Range: "30-60", Count: 30},
			},
		},
		Maintenance: MaintenanceInsights{
			CurrentHealthScore: 82,
			WarningSigns:       []string{"Battery voltage dipping"},
			MaintenanceDue:     []string{"Oil change"},
		},
		Comparative: ComparativeAnalysis{
			AverageMPG: 23.1,
			PercentileRanking: PercentileRanking{
				DrivingScore: 71,
			},
			PotentialImprovements: []PotentialImprovement{
				{Metric: "MPG", CurrentValue: 24.6, TargetValue: 28, Benefit: "$20/month"},
			},
		},
	}
}
