package insights

import (
	"fmt"
	"math"
	"time"

	"vehicle-insights/internal/models"
)

// SpeedLimit is the mph threshold used for the over-limit share.
const SpeedLimit = 65

// LocalReport is computed entirely in-process, without the analysis API.
type LocalReport struct {
	Speed       LocalSpeed       `json:"speed"`
	Fuel        LocalFuel        `json:"fuel"`
	Diagnostics LocalDiagnostics `json:"diagnostics"`
}

// LocalSpeed is the speed section of a LocalReport.
type LocalSpeed struct {
	Summary      string               `json:"summary"`
	Avg          float64              `json:"avg"`
	Max          float64              `json:"max"`
	Min          float64              `json:"min"`
	Distribution []models.SeriesPoint `json:"distribution"`
	OverLimitPct float64              `json:"overLimitPct"`
}

// LocalFuel is the fuel section of a LocalReport.
type LocalFuel struct {
	Summary         string       `json:"summary"`
	AvgLevel        float64      `json:"avgLevel"`
	AvgEfficiency   float64      `json:"avgEfficiency"`
	EfficiencyTrend []TrendPoint `json:"efficiencyTrend"`

	// ConsumptionRate is the mean fuel-level drop between consecutive
	// records, counting only drops.
	ConsumptionRate float64 `json:"consumptionRate"`
}

// TrendPoint is a timestamped value.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// LocalDiagnostics is the diagnostics section of a LocalReport.
type LocalDiagnostics struct {
	Summary        string         `json:"summary"`
	TotalErrors    int            `json:"totalErrors"`
	ErrorCodes     []string       `json:"errorCodes"`
	ErrorTypes     map[string]int `json:"errorTypes"`
	ErrorFrequency float64        `json:"errorFrequency"` // percent of records
}

// Local builds a LocalReport. It returns ErrNoData for an empty batch.
func Local(records []models.TelemetryRecord) (*LocalReport, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}

	sum := Summarize(records)
	n := float64(len(records))

	var over int
	trend := make([]TrendPoint, 0, len(records))
	for _, r := range records {
		if r.Speed > SpeedLimit {
			over++
		}
		if !math.IsNaN(r.FuelEfficiency) {
			trend = append(trend, TrendPoint{Timestamp: r.Timestamp, Value: r.FuelEfficiency})
		}
	}

	var drops float64
	for i := 1; i < len(records); i++ {
		if d := records[i].FuelLevel - records[i-1].FuelLevel; d < 0 {
			drops += -d
		}
	}
	var rate float64
	if len(records) > 1 {
		rate = drops / float64(len(records)-1)
	}

	diag := LocalDiagnostics{
		ErrorCodes: []string{},
		ErrorTypes: make(map[string]int),
	}
	for _, r := range records {
		if !r.Diagnostics.HasError {
			continue
		}
		diag.TotalErrors++
		code := r.Diagnostics.ErrorCode
		if _, ok := diag.ErrorTypes[code]; !ok {
			diag.ErrorCodes = append(diag.ErrorCodes, code)
		}
		diag.ErrorTypes[code]++
	}
	diag.ErrorFrequency = round1(float64(diag.TotalErrors) / n * 100)
	diag.Summary = fmt.Sprintf("%d error events detected (%.1f%% of trips).",
		diag.TotalErrors, diag.ErrorFrequency)

	report := &LocalReport{
		Speed: LocalSpeed{
			Avg:          round1(sum.Speed.Avg),
			Max:          round1(sum.Speed.Max),
			Min:          round1(sum.Speed.Min),
			Distribution: sum.SpeedDistribution,
			OverLimitPct: round1(float64(over) / n * 100),
		},
		Fuel: LocalFuel{
			AvgLevel:        round1(sum.Fuel.AvgLevel),
			AvgEfficiency:   round1(sum.Fuel.AvgEfficiency),
			EfficiencyTrend: trend,
			ConsumptionRate: math.Round(rate*100) / 100,
		},
		Diagnostics: diag,
	}
	report.Speed.Summary = fmt.Sprintf(
		"Average speed of %.1f mph, with %.1f%% of time spent over speed limit.",
		report.Speed.Avg, report.Speed.OverLimitPct)
	report.Fuel.Summary = fmt.Sprintf(
		"Average efficiency of %.1f mpg with %.2f gallons/hour consumption rate.",
		report.Fuel.AvgEfficiency, report.Fuel.ConsumptionRate)

	return report, nil
}
