package insights

import "context"

// AnalysisProvider turns a DataSummary into a structured Analysis.
type AnalysisProvider interface {
	Analyze(ctx context.Context, summary DataSummary) (*Analysis, error)
}

// Completer answers a free-text prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Analysis is the structured payload returned by the analyze tool call.
// Every field is optional on the wire; missing values decode as zero.
type Analysis struct {
	Efficiency  EfficiencyAnalysis  `json:"efficiency_analysis"`
	Habits      DrivingHabits       `json:"driving_habits"`
	Maintenance MaintenanceInsights `json:"maintenance_insights"`
	Comparative ComparativeAnalysis `json:"comparative_analysis"`
}

type EfficiencyAnalysis struct {
	CurrentMPG       float64            `json:"current_mpg"`
	TargetMPG        float64            `json:"target_mpg"`
	PotentialSavings PotentialSavings   `json:"potential_savings"`
	Factors          []EfficiencyFactor `json:"efficiency_factors"`
}

type PotentialSavings struct {
	MonthlyFuelCost         float64  `json:"monthly_fuel_cost"`
	PotentialMonthlySavings float64  `json:"potential_monthly_savings"`
	ImprovementTips         []string `json:"improvement_tips"`
}

type EfficiencyFactor struct {
	Factor         string `json:"factor"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

type DrivingHabits struct {
	AggressiveAccelerationCount float64       `json:"aggressive_acceleration_count"`
	HardBrakingCount            float64       `json:"hard_braking_count"`
	OptimalSpeedPercentage      float64       `json:"optimal_speed_percentage"`
	IdleTimePercentage          float64       `json:"idle_time_percentage"`
	Recommendations             []string      `json:"recommendations"`
	SpeedDistribution           []SpeedBucket `json:"speed_distribution"`
}

type SpeedBucket struct {
	Range string  `json:"range"`
	Count float64 `json:"count"`
}

type MaintenanceInsights struct {
	CurrentHealthScore float64            `json:"current_health_score"`
	WarningSigns       []string           `json:"warning_signs"`
	PredictedIssues    []string           `json:"predicted_issues"`
	MaintenanceDue     []string           `json:"maintenance_due"`
	EstimatedCosts     map[string]float64 `json:"estimated_costs"`
}

type ComparativeAnalysis struct {
	AverageMPG            float64               `json:"average_mpg"`
	PercentileRanking     PercentileRanking     `json:"percentile_ranking"`
	PotentialImprovements []PotentialImprovement `json:"potential_improvements"`
}

type PercentileRanking struct {
	FuelEfficiency   float64 `json:"fuel_efficiency"`
	MaintenanceScore float64 `json:"maintenance_score"`
	DrivingScore     float64 `json:"driving_score"`
}

type PotentialImprovement struct {
	Metric       string  `json:"metric"`
	CurrentValue float64 `json:"current_value"`
	TargetValue  float64 `json:"target_value"`
	Benefit      string  `json:"benefit"`
}

// analyzeToolName is the function the model is forced to call.
const analyzeToolName = "analyze_driving_patterns"

func obj(props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props}
}

func arrayOf(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

var (
	numberT = map[string]any{"type": "number"}
	stringT = map[string]any{"type": "string"}
)

// analyzeToolParameters is the JSON schema of the analyze tool.
func analyzeToolParameters() map[string]any {
	schema := obj(map[string]any{
		"efficiency_analysis": obj(map[string]any{
			"current_mpg": numberT,
			"target_mpg":  numberT,
			"potential_savings": obj(map[string]any{
				"monthly_fuel_cost":         numberT,
				"potential_monthly_savings": numberT,
				"improvement_tips":          arrayOf(stringT),
			}),
			"efficiency_factors": arrayOf(obj(map[string]any{
				"factor":         stringT,
				"impact":         stringT,
				"recommendation": stringT,
			})),
		}),
		"driving_habits": obj(map[string]any{
			"aggressive_acceleration_count": numberT,
			"hard_braking_count":            numberT,
			"optimal_speed_percentage":      numberT,
			"idle_time_percentage":          numberT,
			"recommendations":               arrayOf(stringT),
			"speed_distribution": arrayOf(obj(map[string]any{
				"range": stringT,
				"count": numberT,
			})),
		}),
		"maintenance_insights": obj(map[string]any{
			"current_health_score": numberT,
			"warning_signs":        arrayOf(stringT),
			"predicted_issues":     arrayOf(stringT),
			"maintenance_due":      arrayOf(stringT),
			"estimated_costs": map[string]any{
				"type":              "object",
				"patternProperties": map[string]any{".*": numberT},
			},
		}),
		"comparative_analysis": obj(map[string]any{
			"average_mpg": numberT,
			"percentile_ranking": obj(map[string]any{
				"fuel_efficiency":   numberT,
				"maintenance_score": numberT,
				"driving_score":     numberT,
			}),
			"potential_improvements": arrayOf(obj(map[string]any{
				"metric":        stringT,
				"current_value": numberT,
				"target_value":  numberT,
				"benefit":       stringT,
			})),
		}),
	})
	schema["required"] = []string{
		"efficiency_analysis", "driving_habits",
		"maintenance_insights", "comparative_analysis",
	}
	return schema
}
