package models

import "time"

// TimeRange is the span covered by a batch of telemetry.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Insights is the analysis report handed back to clients.
type Insights struct {
	Fingerprint    string          `json:"fingerprint"`
	Summary        string          `json:"summary"` // markdown
	SummaryHTML    string          `json:"summaryHtml"`
	ModelInfo      ModelInfo       `json:"modelInfo"`
	DataPoints     DataPoints      `json:"dataPoints"`
	Visualizations []Visualization `json:"visualizations"`
	GeneratedAt    time.Time       `json:"generatedAt"`

	// Stale is set when the report was served from cache after a failed
	// refresh.
	Stale bool `json:"stale,omitempty"`
}

// ModelInfo identifies the model that produced a report.
type ModelInfo struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// DataPoints describes the input the report was computed from.
type DataPoints struct {
	TotalRecords    int       `json:"totalRecords"`
	TimeRange       TimeRange `json:"timeRange"`
	MetricsAnalyzed []string  `json:"metricsAnalyzed"`
}

// Chart kinds understood by the dashboard.
const (
	ChartLine  = "line"
	ChartGauge = "gauge"
	ChartBar   = "bar"
)

// Visualization is a chart descriptor. Data is chart-specific.
type Visualization struct {
	Type   string         `json:"type"`
	Title  string         `json:"title"`
	Data   any            `json:"data"`
	Config map[string]any `json:"config"`
}

// SeriesPoint is one point of a line chart.
type SeriesPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// GaugeThreshold colours a gauge band up to Value.
type GaugeThreshold struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// GaugeData is the payload of a gauge chart.
type GaugeData struct {
	Value      float64          `json:"value"`
	Min        float64          `json:"min"`
	Max        float64          `json:"max"`
	Thresholds []GaugeThreshold `json:"thresholds"`
}

// BarData is the payload of a bar chart.
type BarData struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// InsightsRecord is a persisted report.
type InsightsRecord struct {
	ID          int64     `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Insights    Insights  `json:"insights"`
	CreatedAt   time.Time `json:"createdAt"`
}
