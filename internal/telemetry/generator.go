package telemetry

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"vehicle-insights/internal/models"
)

// OBDCode is a simulated diagnostic trouble code.
type OBDCode struct {
	Code        string
	Description string
}

// OBDCodes are the trouble codes the generator picks from.
var OBDCodes = []OBDCode{
	{"P0420", "Catalyst System Efficiency Below Threshold"},
	{"P0171", "System Too Lean (Bank 1)"},
	{"P0300", "Random/Multiple Cylinder Misfire Detected"},
	{"P0455", "Evaporative Emission System Leak Detected (large leak)"},
	{"P0128", "Coolant Thermostat (Coolant Temperature Below Thermostat Regulating Temperature)"},
}

// Generator tuning.
const (
	ErrorProbability   = 0.2
	BaseLatitude       = 37.7749 // San Francisco
	BaseLongitude      = -122.4194
	BaseFuelEfficiency = 25.0 // MPG
	HighwaySpeed       = 65   // efficiency drops from here
)

// Generator produces random telemetry. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewGenerator seeds a Generator. A nil now uses time.Now.
func NewGenerator(seed int64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed)), now: now}
}

// Record returns one random reading stamped with the current time.
func (g *Generator) Record() models.TelemetryRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.record(g.now())
}

// History returns days*24 hourly readings, newest first.
func (g *Generator) History(days int) []models.TelemetryRecord {
	if days <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	records := make([]models.TelemetryRecord, 0, days*24)
	for i := 0; i < days*24; i++ {
		records = append(records, g.record(now.Add(-time.Duration(i)*time.Hour)))
	}
	return records
}

// Intn exposes the generator's source to sibling generators.
func (g *Generator) Intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Intn(n)
}

// Float64 exposes the generator's source to sibling generators.
func (g *Generator) Float64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Float64()
}

func (g *Generator) record(ts time.Time) models.TelemetryRecord {
	r := g.rnd

	var diag models.Diagnostics
	if r.Float64() < ErrorProbability {
		code := OBDCodes[r.Intn(len(OBDCodes))]
		diag = models.Diagnostics{
			HasError:         true,
			ErrorCode:        code.Code,
			ErrorDescription: code.Description,
		}
	}

	speed := float64(r.Intn(75))
	speedFactor := 1.0
	if speed >= HighwaySpeed {
		speedFactor = 0.85
	}
	efficiency := BaseFuelEfficiency * speedFactor * (0.9 + r.Float64()*0.2)

	return models.TelemetryRecord{
		ID:         uuid.NewString(),
		Timestamp:  ts.UTC(),
		Speed:      speed,
		RPM:        800 + r.Intn(2200),
		FuelLevel:  float64(10 + r.Intn(90)),
		EngineTemp: float64(170 + r.Intn(50)),
		TirePressure: models.TirePressure{
			FrontLeft:  32 + (r.Float64()*2 - 1),
			FrontRight: 32 + (r.Float64()*2 - 1),
			RearLeft:   32 + (r.Float64()*2 - 1),
			RearRight:  32 + (r.Float64()*2 - 1),
		},
		Location: models.Location{
			Latitude:  BaseLatitude + (r.Float64()-0.5)*0.01,
			Longitude: BaseLongitude + (r.Float64()-0.5)*0.01,
		},
		Diagnostics:    diag,
		BatteryLevel:   float64(70 + r.Intn(30)),
		Odometer:       float64(10000 + r.Intn(90000)),
		FuelEfficiency: math.Round(efficiency*10) / 10,
	}
}
