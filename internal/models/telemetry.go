package models

import "time"

// TelemetryRecord is a single point-in-time snapshot of vehicle sensors.
type TelemetryRecord struct {
	ID             string       `json:"id"`
	Timestamp      time.Time    `json:"timestamp"`
	Speed          float64      `json:"speed"`          // mph
	RPM            int          `json:"rpm"`
	FuelLevel      float64      `json:"fuelLevel"`      // percentage
	EngineTemp     float64      `json:"engineTemp"`     // Fahrenheit
	BatteryLevel   float64      `json:"batteryLevel"`   // percentage
	Odometer       float64      `json:"odometer"`       // miles
	FuelEfficiency float64      `json:"fuelEfficiency"` // MPG
	TirePressure   TirePressure `json:"tirePressure"`
	Location       Location     `json:"location"`
	Diagnostics    Diagnostics  `json:"diagnostics"`
}

// Location is a latitude/longitude pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TirePressure holds per-wheel pressure in PSI.
type TirePressure struct {
	FrontLeft  float64 `json:"frontLeft"`
	FrontRight float64 `json:"frontRight"`
	RearLeft   float64 `json:"rearLeft"`
	RearRight  float64 `json:"rearRight"`
}

// Diagnostics is the OBD state attached to a record. ErrorCode and
// ErrorDescription are empty when HasError is false.
type Diagnostics struct {
	HasError         bool   `json:"hasError"`
	ErrorCode        string `json:"errorCode,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
}

// TelemetryQuery represents query parameters for telemetry searches
type TelemetryQuery struct {
	StartTime  time.Time
	EndTime    time.Time
	MinSpeed   float64
	MaxSpeed   float64
	ErrorsOnly bool
	Limit      int
	Offset     int
}

// DiagnosticAlert is a flattened view of a record that carried an error code.
type DiagnosticAlert struct {
	RecordID    string    `json:"recordId"`
	Timestamp   time.Time `json:"timestamp"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
}

// StoreStats summarises what the database holds.
type StoreStats struct {
	TelemetryRecords int64 `json:"telemetryRecords"`
	DiagnosticAlerts int64 `json:"diagnosticAlerts"`
	InsightReports   int64 `json:"insightReports"`
}
