package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vehicle-insights/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite connection
type Database struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite works best with single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &Database{conn: conn}

	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates tables and indexes
func (db *Database) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS telemetry (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		speed REAL NOT NULL,
		rpm INTEGER NOT NULL,
		fuel_level REAL NOT NULL,
		engine_temp REAL NOT NULL,
		battery_level REAL NOT NULL,
		odometer REAL NOT NULL,
		fuel_efficiency REAL NOT NULL,
		tire_front_left REAL NOT NULL DEFAULT 0,
		tire_front_right REAL NOT NULL DEFAULT 0,
		tire_rear_left REAL NOT NULL DEFAULT 0,
		tire_rear_right REAL NOT NULL DEFAULT 0,
		has_error INTEGER NOT NULL DEFAULT 0,
		error_code TEXT,
		error_description TEXT
	);

	CREATE TABLE IF NOT EXISTS insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_telemetry_timestamp ON telemetry(timestamp);
	CREATE INDEX IF NOT EXISTS idx_telemetry_speed ON telemetry(speed);
	CREATE INDEX IF NOT EXISTS idx_telemetry_error ON telemetry(error_code) WHERE has_error = 1;
	CREATE INDEX IF NOT EXISTS idx_insights_created ON insights(created_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

const insertTelemetrySQL = `
	INSERT OR REPLACE INTO telemetry
	(id, timestamp, latitude, longitude, speed, rpm, fuel_level, engine_temp,
	 battery_level, odometer, fuel_efficiency,
	 tire_front_left, tire_front_right, tire_rear_left, tire_rear_right,
	 has_error, error_code, error_description)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectTelemetrySQL = `
	SELECT id, timestamp, latitude, longitude, speed, rpm, fuel_level, engine_temp,
	       battery_level, odometer, fuel_efficiency,
	       tire_front_left, tire_front_right, tire_rear_left, tire_rear_right,
	       has_error, error_code, error_description
	FROM telemetry
`

func telemetryArgs(t *models.TelemetryRecord) []interface{} {
	return []interface{}{
		t.ID, t.Timestamp.UTC(), t.Location.Latitude, t.Location.Longitude,
		t.Speed, t.RPM, t.FuelLevel, t.EngineTemp,
		t.BatteryLevel, t.Odometer, t.FuelEfficiency,
		t.TirePressure.FrontLeft, t.TirePressure.FrontRight,
		t.TirePressure.RearLeft, t.TirePressure.RearRight,
		t.Diagnostics.HasError, nullString(t.Diagnostics.ErrorCode),
		nullString(t.Diagnostics.ErrorDescription),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTelemetry(row scanner) (models.TelemetryRecord, error) {
	var t models.TelemetryRecord
	var code, desc sql.NullString

	err := row.Scan(
		&t.ID, &t.Timestamp, &t.Location.Latitude, &t.Location.Longitude,
		&t.Speed, &t.RPM, &t.FuelLevel, &t.EngineTemp,
		&t.BatteryLevel, &t.Odometer, &t.FuelEfficiency,
		&t.TirePressure.FrontLeft, &t.TirePressure.FrontRight,
		&t.TirePressure.RearLeft, &t.TirePressure.RearRight,
		&t.Diagnostics.HasError, &code, &desc,
	)
	if err != nil {
		return t, err
	}
	t.Diagnostics.ErrorCode = code.String
	t.Diagnostics.ErrorDescription = desc.String
	return t, nil
}

// InsertTelemetry adds a single telemetry record
func (db *Database) InsertTelemetry(t *models.TelemetryRecord) error {
	_, err := db.conn.Exec(insertTelemetrySQL, telemetryArgs(t)...)
	return err
}

// InsertTelemetryBatch efficiently inserts multiple telemetry records
func (db *Database) InsertTelemetryBatch(records []models.TelemetryRecord) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertTelemetrySQL)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var count int64
	for i := range records {
		if _, err := stmt.Exec(telemetryArgs(&records[i])...); err != nil {
			return count, err
		}
		count++
	}

	return count, tx.Commit()
}

// QueryTelemetry retrieves telemetry newest first.
func (db *Database) QueryTelemetry(q models.TelemetryQuery) ([]models.TelemetryRecord, error) {
	var conditions []string
	var args []interface{}

	query := selectTelemetrySQL

	if !q.StartTime.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, q.StartTime.UTC())
	}
	if !q.EndTime.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, q.EndTime.UTC())
	}
	if q.MinSpeed > 0 {
		conditions = append(conditions, "speed >= ?")
		args = append(args, q.MinSpeed)
	}
	if q.MaxSpeed > 0 {
		conditions = append(conditions, "speed <= ?")
		args = append(args, q.MaxSpeed)
	}
	if q.ErrorsOnly {
		conditions = append(conditions, "has_error = 1")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY timestamp DESC"

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.TelemetryRecord
	for rows.Next() {
		t, err := scanTelemetry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}

	return results, rows.Err()
}

// GetLatestTelemetry returns the most recent record.
func (db *Database) GetLatestTelemetry() (*models.TelemetryRecord, error) {
	row := db.conn.QueryRow(selectTelemetrySQL + " ORDER BY timestamp DESC LIMIT 1")
	t, err := scanTelemetry(row)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetDiagnosticAlerts returns records that carried an error code, newest
// first.
func (db *Database) GetDiagnosticAlerts(limit int) ([]models.DiagnosticAlert, error) {
	query := `
		SELECT id, timestamp, error_code, error_description
		FROM telemetry
		WHERE has_error = 1 AND error_code IS NOT NULL
		ORDER BY timestamp DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.DiagnosticAlert
	for rows.Next() {
		var a models.DiagnosticAlert
		var desc sql.NullString
		if err := rows.Scan(&a.RecordID, &a.Timestamp, &a.Code, &desc); err != nil {
			return nil, err
		}
		a.Description = desc.String
		results = append(results, a)
	}

	return results, rows.Err()
}

// GetStats returns database statistics
func (db *Database) GetStats() (*models.StoreStats, error) {
	var stats models.StoreStats

	err := db.conn.QueryRow("SELECT COUNT(*) FROM telemetry").Scan(&stats.TelemetryRecords)
	if err != nil {
		return nil, err
	}
	err = db.conn.QueryRow("SELECT COUNT(*) FROM telemetry WHERE has_error = 1").Scan(&stats.DiagnosticAlerts)
	if err != nil {
		return nil, err
	}
	err = db.conn.QueryRow("SELECT COUNT(*) FROM insights").Scan(&stats.InsightReports)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// SaveInsights appends a report to the history.
func (db *Database) SaveInsights(ctx context.Context, fingerprint string, report *models.Insights) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO insights (fingerprint, payload, created_at) VALUES (?, ?, ?)`,
		fingerprint, string(payload), time.Now().UTC(),
	)
	return err
}

// LatestInsights returns the newest stored report, or sql.ErrNoRows.
func (db *Database) LatestInsights(ctx context.Context) (*models.InsightsRecord, error) {
	history, err := db.InsightsHistory(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, sql.ErrNoRows
	}
	return &history[0], nil
}

// InsightsHistory returns up to limit reports, newest first.
func (db *Database) InsightsHistory(ctx context.Context, limit int) ([]models.InsightsRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, fingerprint, payload, created_at
		FROM insights
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.InsightsRecord
	for rows.Next() {
		var rec models.InsightsRecord
		var payload string
		if err := rows.Scan(&rec.ID, &rec.Fingerprint, &payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Insights); err != nil {
			return nil, fmt.Errorf("decode insights %d: %w", rec.ID, err)
		}
		results = append(results, rec)
	}

	return results, rows.Err()
}
