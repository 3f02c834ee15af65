package insights

import (
	"math"
	"sort"
	"strconv"

	"vehicle-insights/internal/models"
)

// SpeedBucketWidth is the width, in mph, of a speed distribution bucket.
const SpeedBucketWidth = 10

// DataSummary is the compact view of a batch that is sent to the
// analysis API in place of the raw records.
type DataSummary struct {
	TotalRecords int              `json:"totalRecords"`
	Speed        SpeedStats       `json:"speed"`
	Fuel         FuelStats        `json:"fuel"`
	Diagnostics  DiagnosticStats  `json:"diagnostics"`
	TimeRange    models.TimeRange `json:"timeRange"`

	// SpeedDistribution counts records per SpeedBucketWidth band,
	// ordered by band.
	SpeedDistribution []models.SeriesPoint `json:"speedDistribution"`
}

// SpeedStats aggregates speed readings.
type SpeedStats struct {
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
	Min float64 `json:"min"`
}

// FuelStats aggregates fuel readings.
type FuelStats struct {
	AvgLevel      float64 `json:"avgLevel"`
	AvgEfficiency float64 `json:"avgEfficiency"`
}

// DiagnosticStats lists distinct error codes in first-seen order.
type DiagnosticStats struct {
	ErrorCodes []string `json:"errorCodes"`
}

// Summarize aggregates records. The time range runs from the first
// record's timestamp to the last one's, in slice order. Callers must
// not pass an empty slice.
func Summarize(records []models.TelemetryRecord) DataSummary {
	n := float64(len(records))

	s := DataSummary{
		TotalRecords: len(records),
		Speed: SpeedStats{
			Max: math.Inf(-1),
			Min: math.Inf(1),
		},
		Diagnostics: DiagnosticStats{ErrorCodes: []string{}},
		TimeRange: models.TimeRange{
			Start: records[0].Timestamp,
			End:   records[len(records)-1].Timestamp,
		},
	}

	var speedSum, levelSum, effSum float64
	seen := make(map[string]struct{})
	buckets := make(map[int]int)

	for _, r := range records {
		speedSum += r.Speed
		levelSum += r.FuelLevel
		effSum += r.FuelEfficiency
		s.Speed.Max = math.Max(s.Speed.Max, r.Speed)
		s.Speed.Min = math.Min(s.Speed.Min, r.Speed)

		buckets[speedBucket(r.Speed)]++

		code := r.Diagnostics.ErrorCode
		if code == "" {
			continue
		}
		if _, ok := seen[code]; !ok {
			seen[code] = struct{}{}
			s.Diagnostics.ErrorCodes = append(s.Diagnostics.ErrorCodes, code)
		}
	}

	s.Speed.Avg = speedSum / n
	s.Fuel.AvgLevel = levelSum / n
	s.Fuel.AvgEfficiency = effSum / n
	s.SpeedDistribution = distribution(buckets)

	return s
}

func speedBucket(speed float64) int {
	return int(math.Floor(speed/SpeedBucketWidth)) * SpeedBucketWidth
}

func distribution(buckets map[int]int) []models.SeriesPoint {
	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	points := make([]models.SeriesPoint, 0, len(keys))
	for _, k := range keys {
		points = append(points, models.SeriesPoint{
			Label: strconv.Itoa(k) + "-" + strconv.Itoa(k+SpeedBucketWidth-1),
			Value: float64(buckets[k]),
		})
	}
	return points
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
