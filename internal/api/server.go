package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"vehicle-insights/internal/db"
	"vehicle-insights/internal/insights"
	"vehicle-insights/internal/marketplace"
	"vehicle-insights/internal/models"
	"vehicle-insights/internal/parser"
	"vehicle-insights/internal/telemetry"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Deps are the collaborators a Server routes to.
type Deps struct {
	DB        *db.Database
	Insights  *insights.Service
	Advisor   *insights.Advisor
	Generator *telemetry.Generator
	Listings  []models.MarketplaceListing

	// AnalysisWindow is how many stored records GET /insights analyses.
	AnalysisWindow int
}

// Server represents the API server
type Server struct {
	deps   Deps
	router *mux.Router
	log    *slog.Logger
}

// NewServer creates a new API server
func NewServer(deps Deps, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if deps.AnalysisWindow <= 0 {
		deps.AnalysisWindow = 7 * 24
	}
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
		log:    log.With("component", "api"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Telemetry endpoints
	v1.HandleFunc("/telemetry", s.handleQueryTelemetry).Methods("GET")
	v1.HandleFunc("/telemetry", s.handleCreateTelemetry).Methods("POST")
	v1.HandleFunc("/telemetry/batch", s.handleBatchTelemetry).Methods("POST")
	v1.HandleFunc("/telemetry/generate", s.handleGenerateTelemetry).Methods("POST")
	v1.HandleFunc("/telemetry/live", s.handleLiveTelemetry).Methods("GET")
	v1.HandleFunc("/telemetry/latest", s.handleLatestTelemetry).Methods("GET")

	v1.HandleFunc("/diagnostics", s.handleGetDiagnostics).Methods("GET")

	// Insights endpoints
	v1.HandleFunc("/insights", s.handleStoredInsights).Methods("GET")
	v1.HandleFunc("/insights", s.handleInsights).Methods("POST")
	v1.HandleFunc("/insights/local", s.handleLocalInsights).Methods("GET")
	v1.HandleFunc("/insights/history", s.handleInsightsHistory).Methods("GET")
	v1.HandleFunc("/insights/maintenance", s.handleMaintenance).Methods("POST")
	v1.HandleFunc("/insights/value", s.handleValueEstimate).Methods("POST")

	// Marketplace endpoints
	v1.HandleFunc("/marketplace/listings", s.handleListings).Methods("GET")
	v1.HandleFunc("/marketplace/categories", s.handleCategories).Methods("GET")

	v1.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Middleware
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("Request", "method", r.Method, "path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total   int   `json:"total,omitempty"`
	Limit   int   `json:"limit,omitempty"`
	Offset  int   `json:"offset,omitempty"`
	QueryMs int64 `json:"query_ms,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

func intParam(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// insightsStatus maps the insights error taxonomy onto HTTP.
func insightsStatus(err error) int {
	switch {
	case errors.Is(err, insights.ErrNoData):
		return http.StatusBadRequest
	case errors.Is(err, insights.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, insights.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, insights.ErrRequestFailed),
		errors.Is(err, insights.ErrNoAnalysisResult):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleQueryTelemetry(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := models.TelemetryQuery{
		Limit:      intParam(r, "limit", 100),
		Offset:     intParam(r, "offset", 0),
		ErrorsOnly: r.URL.Query().Get("errors_only") == "true",
	}
	if v := r.URL.Query().Get("start_time"); v != "" {
		q.StartTime, _ = time.Parse(time.RFC3339, v)
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		q.EndTime, _ = time.Parse(time.RFC3339, v)
	}
	if v := r.URL.Query().Get("min_speed"); v != "" {
		q.MinSpeed, _ = strconv.ParseFloat(v, 64)
	}
	if v := r.URL.Query().Get("max_speed"); v != "" {
		q.MaxSpeed, _ = strconv.ParseFloat(v, 64)
	}

	results, err := s.deps.DB.QueryTelemetry(q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithMeta(w, results, &meta{
		Total:   len(results),
		Limit:   q.Limit,
		Offset:  q.Offset,
		QueryMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleCreateTelemetry(w http.ResponseWriter, r *http.Request) {
	var t models.TelemetryRecord
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	if errs := parser.ValidateTelemetry(&t); len(errs) > 0 {
		respondError(w, http.StatusBadRequest, errs[0])
		return
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	if err := s.deps.DB.InsertTelemetry(&t); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) handleBatchTelemetry(w http.ResponseWriter, r *http.Request) {
	var records []models.TelemetryRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON array")
		return
	}

	if len(records) == 0 {
		respondError(w, http.StatusBadRequest, "empty array")
		return
	}

	now := time.Now().UTC()
	for i := range records {
		if records[i].Timestamp.IsZero() {
			records[i].Timestamp = now
		}
		if errs := parser.ValidateTelemetry(&records[i]); len(errs) > 0 {
			respondError(w, http.StatusBadRequest, "record "+strconv.Itoa(i)+": "+errs[0])
			return
		}
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
	}

	count, err := s.deps.DB.InsertTelemetryBatch(records)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"inserted": count})
}

func (s *Server) handleGenerateTelemetry(w http.ResponseWriter, r *http.Request) {
	days := intParam(r, "days", 7)
	if days <= 0 || days > 365 {
		respondError(w, http.StatusBadRequest, "days must be between 1 and 365")
		return
	}

	records := s.deps.Generator.History(days)
	count, err := s.deps.DB.InsertTelemetryBatch(records)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"inserted": count})
}

func (s *Server) handleLiveTelemetry(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Generator.Record())
}

func (s *Server) handleLatestTelemetry(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	t, err := s.deps.DB.GetLatestTelemetry()
	if err != nil {
		respondError(w, http.StatusNotFound, "no telemetry found")
		return
	}

	respondWithMeta(w, t, &meta{QueryMs: time.Since(start).Milliseconds()})
}

func (s *Server) handleGetDiagnostics(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.DB.GetDiagnosticAlerts(intParam(r, "limit", 100))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, alerts)
}

func (s *Server) recentTelemetry() ([]models.TelemetryRecord, error) {
	return s.deps.DB.QueryTelemetry(models.TelemetryQuery{Limit: s.deps.AnalysisWindow})
}

func (s *Server) respondInsights(w http.ResponseWriter, r *http.Request, records []models.TelemetryRecord) {
	report, err := s.deps.Insights.Generate(r.Context(), records)
	if err != nil {
		respondError(w, insightsStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var records []models.TelemetryRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON array")
		return
	}
	s.respondInsights(w, r, records)
}

func (s *Server) handleStoredInsights(w http.ResponseWriter, r *http.Request) {
	records, err := s.recentTelemetry()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondInsights(w, r, records)
}

func (s *Server) handleLocalInsights(w http.ResponseWriter, r *http.Request) {
	records, err := s.recentTelemetry()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	report, err := insights.Local(records)
	if err != nil {
		respondError(w, insightsStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleInsightsHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.deps.DB.InsightsHistory(r.Context(), intParam(r, "limit", 20))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// handleMaintenance accepts alerts in the body or, with an empty body,
// uses the stored diagnostics.
func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	var alerts []models.DiagnosticAlert
	if err := json.NewDecoder(r.Body).Decode(&alerts); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON array")
		return
	}
	if len(alerts) == 0 {
		stored, err := s.deps.DB.GetDiagnosticAlerts(50)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		alerts = stored
	}

	text := s.deps.Advisor.MaintenanceRecommendations(r.Context(), alerts)
	respondJSON(w, http.StatusOK, map[string]string{"recommendations": text})
}

func (s *Server) handleValueEstimate(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.DB.QueryTelemetry(models.TelemetryQuery{Limit: 24})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	text := s.deps.Advisor.ValueEstimate(r.Context(), records)
	respondJSON(w, http.StatusOK, map[string]string{"estimate": text})
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	q := marketplace.Query{
		Search:    r.URL.Query().Get("search"),
		Category:  r.URL.Query().Get("category"),
		SortBy:    r.URL.Query().Get("sort"),
		Ascending: r.URL.Query().Get("order") == "asc",
	}
	if err := q.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := marketplace.Apply(s.deps.Listings, q)
	respondWithMeta(w, results, &meta{Total: len(results)})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, marketplace.Categories(s.deps.Listings))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.DB.GetStats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
