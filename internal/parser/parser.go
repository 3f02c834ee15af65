package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"vehicle-insights/internal/models"
)

// Parser handles parsing of telemetry data files
type Parser struct {
	format string
	log    *slog.Logger
}

// NewParser creates a new parser with the specified format
func NewParser(format string, log *slog.Logger) *Parser {
	if log == nil {
		log = slog.Default()
	}
	return &Parser{format: format, log: log.With("component", "parser")}
}

// ParseFile parses a telemetry data file
func (p *Parser) ParseFile(filename string) ([]models.TelemetryRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Parse reads records in the parser's format from r.
func (p *Parser) Parse(r io.Reader) ([]models.TelemetryRecord, error) {
	switch strings.ToLower(p.format) {
	case "csv":
		return p.parseCSV(r)
	case "json":
		return p.parseJSON(r)
	case "log":
		return p.parseLog(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s", p.format)
	}
}

// parseCSV parses CSV formatted telemetry data
func (p *Parser) parseCSV(r io.Reader) ([]models.TelemetryRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable fields

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	indices := make(map[string]int)
	for i, h := range header {
		indices[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var results []models.TelemetryRecord
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return results, fmt.Errorf("error at line %d: %w", lineNum, err)
		}
		lineNum++

		data, err := recordToTelemetry(record, indices)
		if err != nil {
			p.log.Warn("Skipping CSV line", "line", lineNum, "error", err)
			continue
		}
		results = append(results, data)
	}

	return results, nil
}

// recordToTelemetry converts a CSV record to a TelemetryRecord
func recordToTelemetry(record []string, indices map[string]int) (models.TelemetryRecord, error) {
	var t models.TelemetryRecord
	var err error

	getValue := func(key string) string {
		if idx, ok := indices[key]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}
	getFloat := func(key string) float64 {
		v, _ := strconv.ParseFloat(getValue(key), 64)
		return v
	}

	tsStr := getValue("timestamp")
	if tsStr == "" {
		return t, fmt.Errorf("missing timestamp")
	}
	t.Timestamp, err = parseTimestamp(tsStr)
	if err != nil {
		return t, fmt.Errorf("invalid timestamp: %w", err)
	}

	t.ID = getValue("id")
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	t.Speed = getFloat("speed")
	t.RPM, _ = strconv.Atoi(getValue("rpm"))
	t.FuelLevel = getFloat("fuel_level")
	t.EngineTemp = getFloat("engine_temp")
	t.BatteryLevel = getFloat("battery_level")
	t.Odometer = getFloat("odometer")
	t.FuelEfficiency = getFloat("fuel_efficiency")
	t.Location.Latitude = getFloat("latitude")
	t.Location.Longitude = getFloat("longitude")
	t.TirePressure = models.TirePressure{
		FrontLeft:  getFloat("tire_front_left"),
		FrontRight: getFloat("tire_front_right"),
		RearLeft:   getFloat("tire_rear_left"),
		RearRight:  getFloat("tire_rear_right"),
	}
	if code := getValue("error_code"); code != "" {
		t.Diagnostics = models.Diagnostics{
			HasError:         true,
			ErrorCode:        code,
			ErrorDescription: getValue("error_description"),
		}
	}

	return t, nil
}

// parseJSON accepts either a JSON array or newline-delimited objects.
func (p *Parser) parseJSON(r io.Reader) ([]models.TelemetryRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var results []models.TelemetryRecord
	if err := json.Unmarshal(data, &results); err != nil {
		results, err = p.parseJSONLines(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
	}

	for i := range results {
		if results[i].ID == "" {
			results[i].ID = uuid.NewString()
		}
	}
	return results, nil
}

// parseJSONLines parses newline-delimited JSON
func (p *Parser) parseJSONLines(r io.Reader) ([]models.TelemetryRecord, error) {
	var results []models.TelemetryRecord
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "[" || line == "]" {
			continue
		}

		line = strings.TrimSuffix(line, ",")

		var t models.TelemetryRecord
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			p.log.Warn("Skipping JSON line", "line", lineNum, "error", err)
			continue
		}
		results = append(results, t)
	}

	return results, scanner.Err()
}

// parseLog parses the pipe format:
// timestamp|id|lat,lon|speed|rpm|fuel|temp|battery|odometer|mpg[|code]
func (p *Parser) parseLog(r io.Reader) ([]models.TelemetryRecord, error) {
	var results []models.TelemetryRecord
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "|")
		if len(parts) < 10 {
			p.log.Warn("Skipping log line", "line", lineNum, "error", "insufficient fields")
			continue
		}

		var t models.TelemetryRecord
		var err error

		t.Timestamp, err = parseTimestamp(parts[0])
		if err != nil {
			p.log.Warn("Skipping log line", "line", lineNum, "error", err)
			continue
		}

		t.ID = parts[1]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}

		coords := strings.Split(parts[2], ",")
		if len(coords) == 2 {
			t.Location.Latitude, _ = strconv.ParseFloat(coords[0], 64)
			t.Location.Longitude, _ = strconv.ParseFloat(coords[1], 64)
		}

		t.Speed, _ = strconv.ParseFloat(parts[3], 64)
		t.RPM, _ = strconv.Atoi(parts[4])
		t.FuelLevel, _ = strconv.ParseFloat(parts[5], 64)
		t.EngineTemp, _ = strconv.ParseFloat(parts[6], 64)
		t.BatteryLevel, _ = strconv.ParseFloat(parts[7], 64)
		t.Odometer, _ = strconv.ParseFloat(parts[8], 64)
		t.FuelEfficiency, _ = strconv.ParseFloat(parts[9], 64)

		if len(parts) > 10 && parts[10] != "" {
			t.Diagnostics = models.Diagnostics{HasError: true, ErrorCode: parts[10]}
		}

		results = append(results, t)
	}

	return results, scanner.Err()
}

// parseTimestamp tries multiple timestamp formats
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02 15:04:05",
		"01/02/2006 15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	// Try Unix timestamp
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(ts, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

// ValidateTelemetry validates telemetry data
func ValidateTelemetry(t *models.TelemetryRecord) []string {
	var errors []string

	if t.Timestamp.IsZero() {
		errors = append(errors, "timestamp is required")
	}
	if t.Location.Latitude < -90 || t.Location.Latitude > 90 {
		errors = append(errors, "latitude must be between -90 and 90")
	}
	if t.Location.Longitude < -180 || t.Location.Longitude > 180 {
		errors = append(errors, "longitude must be between -180 and 180")
	}
	if t.Speed < 0 {
		errors = append(errors, "speed cannot be negative")
	}
	if t.FuelLevel < 0 || t.FuelLevel > 100 {
		errors = append(errors, "fuelLevel must be between 0 and 100")
	}
	if t.BatteryLevel < 0 || t.BatteryLevel > 100 {
		errors = append(errors, "batteryLevel must be between 0 and 100")
	}
	if t.RPM < 0 {
		errors = append(errors, "rpm cannot be negative")
	}
	if t.FuelEfficiency < 0 {
		errors = append(errors, "fuelEfficiency cannot be negative")
	}
	if t.Diagnostics.HasError && t.Diagnostics.ErrorCode == "" {
		errors = append(errors, "errorCode is required when hasError is set")
	}

	return errors
}
