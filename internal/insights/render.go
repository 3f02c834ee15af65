package insights

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"

	"vehicle-insights/internal/models"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"f0": func(v float64) string { return fmt.Sprintf("%.0f", v) },
	"f1": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"f2": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}).Parse(`### 💰 Cost & Efficiency Insights

- Current efficiency: {{f1 .Efficiency.CurrentMPG}} MPG
- Potential monthly savings: ${{f2 .Efficiency.PotentialSavings.PotentialMonthlySavings}}
{{- range .Efficiency.PotentialSavings.ImprovementTips}}
- 💡 {{.}}
{{- end}}

### 🚗 Driving Style Analysis

- Driving score: {{f0 .Comparative.PercentileRanking.DrivingScore}}/100 (better than {{f0 .Comparative.PercentileRanking.DrivingScore}}% of drivers)
- Aggressive accelerations: {{f0 .Habits.AggressiveAccelerationCount}} times
- Hard braking events: {{f0 .Habits.HardBrakingCount}} times
{{- range .Habits.Recommendations}}
- 💡 {{.}}
{{- end}}

### 🔧 Maintenance & Health

- Vehicle health score: {{f0 .Maintenance.CurrentHealthScore}}/100
{{- range .Maintenance.WarningSigns}}
- ⚠️ {{.}}
{{- end}}
{{- range .Maintenance.MaintenanceDue}}
- 📅 Due soon: {{.}}
{{- end}}
{{- range .Maintenance.PredictedIssues}}
- 🔍 Watch out: {{.}}
{{- end}}
{{- if .Comparative.PotentialImprovements}}

### 📈 Improvement Opportunities
{{range .Comparative.PotentialImprovements}}
- {{.Metric}}: {{.CurrentValue}} → {{.TargetValue}} (benefit: {{.Benefit}})
{{- end}}
{{- end}}
`))

// renderSummary returns the markdown breakdown and its HTML rendering.
func renderSummary(a *Analysis) (string, string, error) {
	var md bytes.Buffer
	if err := reportTemplate.Execute(&md, a); err != nil {
		return "", "", fmt.Errorf("render report: %w", err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert(md.Bytes(), &html); err != nil {
		return "", "", fmt.Errorf("convert report: %w", err)
	}
	return strings.TrimSpace(md.String()), html.String(), nil
}

// visualizations returns the line, gauge and bar descriptors. The line
// series comes from the model when it sent one, otherwise from the
// locally computed distribution.
func visualizations(a *Analysis, s DataSummary) []models.Visualization {
	series := make([]models.SeriesPoint, 0, len(a.Habits.SpeedDistribution))
	for _, b := range a.Habits.SpeedDistribution {
		series = append(series, models.SeriesPoint{Label: b.Range, Value: b.Count})
	}
	if len(series) == 0 {
		series = s.SpeedDistribution
	}

	return []models.Visualization{
		{
			Type:  models.ChartLine,
			Title: "Speed Distribution",
			Data:  series,
			Config: map[string]any{
				"xAxis":  "Speed Range (mph)",
				"yAxis":  "Frequency",
				"colors": []string{"#10B981"},
			},
		},
		{
			Type:  models.ChartGauge,
			Title: "Vehicle Health Score",
			Data: models.GaugeData{
				Value: a.Maintenance.CurrentHealthScore,
				Min:   0,
				Max:   100,
				Thresholds: []models.GaugeThreshold{
					{Value: 30, Color: "#EF4444"},
					{Value: 70, Color: "#F59E0B"},
					{Value: 100, Color: "#10B981"},
				},
			},
			Config: map[string]any{
				"unit":           "score",
				"showThresholds": true,
			},
		},
		{
			Type:  models.ChartBar,
			Title: "Efficiency Comparison",
			Data: models.BarData{
				Labels: []string{"Your MPG", "Average MPG", "Target MPG"},
				Values: []float64{
					a.Efficiency.CurrentMPG,
					a.Comparative.AverageMPG,
					a.Efficiency.TargetMPG,
				},
			},
			Config: map[string]any{
				"colors":     []string{"#10B981", "#6B7280", "#3B82F6"},
				"yAxis":      "Miles Per Gallon",
				"showLegend": true,
			},
		},
	}
}
