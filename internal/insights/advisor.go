package insights

import (
	"context"
	"encoding/json"
	"log/slog"

	"vehicle-insights/internal/models"
)

// Messages returned by the Advisor instead of errors.
const (
	MsgNotConfigured    = "Analysis API key not configured. Please add it to your environment variables."
	MsgNoDiagnostics    = "No diagnostic data available for analysis."
	MsgNoVehicleData    = "No vehicle data available for analysis."
	MsgHighDemand       = "Service is currently experiencing high demand. Please try again in a few moments."
	MsgMaintenanceError = "Failed to generate maintenance recommendations. Please try again later."
	MsgValueError       = "Failed to generate value estimate. Please try again later."
)

const (
	maintenanceSystemPrompt = "You are an automotive maintenance expert. Based on the diagnostic data provided, " +
		"suggest maintenance actions the vehicle owner should take. Prioritize safety issues and provide cost estimates when possible."

	valueSystemPrompt = "You are a vehicle data valuation expert. Based on the provided vehicle data, estimate the " +
		"potential market value of this data to different types of buyers (insurance companies, urban planners, " +
		"automotive manufacturers, etc.). Provide a range of values and explain your reasoning."
)

// Advisor produces free-text recommendations. Its methods never fail:
// every problem becomes a user-facing message.
type Advisor struct {
	completer Completer
	log       *slog.Logger
}

// NewAdvisor returns an Advisor. A nil completer means the API key is
// missing.
func NewAdvisor(completer Completer, log *slog.Logger) *Advisor {
	if log == nil {
		log = slog.Default()
	}
	return &Advisor{completer: completer, log: log.With("component", "advisor")}
}

// MaintenanceRecommendations suggests maintenance for the given alerts.
func (a *Advisor) MaintenanceRecommendations(ctx context.Context, alerts []models.DiagnosticAlert) string {
	if a.completer == nil {
		return MsgNotConfigured
	}
	if len(alerts) == 0 {
		return MsgNoDiagnostics
	}
	return a.ask(ctx, maintenanceSystemPrompt,
		"Provide maintenance recommendations based on these diagnostics: ", alerts, MsgMaintenanceError)
}

// ValueEstimate estimates what buyers would pay for the records.
func (a *Advisor) ValueEstimate(ctx context.Context, records []models.TelemetryRecord) string {
	if a.completer == nil {
		return MsgNotConfigured
	}
	if len(records) == 0 {
		return MsgNoVehicleData
	}
	return a.ask(ctx, valueSystemPrompt,
		"Estimate the value of this vehicle data: ", records, MsgValueError)
}

func (a *Advisor) ask(ctx context.Context, system, prefix string, data any, failMsg string) string {
	payload, err := json.Marshal(data)
	if err != nil {
		a.log.Error("Failed to encode advisor payload", "error", err)
		return failMsg
	}

	text, err := a.completer.Complete(ctx, system, prefix+string(payload))
	switch {
	case IsRateLimited(err):
		return MsgHighDemand
	case err != nil:
		a.log.Error("Advisor request failed", "error", err)
		return failMsg
	}
	return text
}
