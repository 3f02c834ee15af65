package insights

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vehicle-insights/internal/models"
)

// MetricsAnalyzed is reported in every Insights.DataPoints.
var MetricsAnalyzed = []string{"speed", "fuel_efficiency", "diagnostics"}

// Config holds the collaborators of a Service.
type Config struct {
	// Provider runs the structured analysis. A nil Provider means the
	// API key was not configured and every Generate fails with
	// ErrConfiguration.
	Provider AnalysisProvider

	// Cache defaults to a MemoryCache with DefaultCacheTTL.
	Cache Cache

	Retry RetryPolicy

	// ModelName and ModelVersion label generated reports.
	ModelName    string
	ModelVersion string

	Now func() time.Time
}

// Service generates Insights for telemetry batches.
type Service struct {
	cfg   Config
	cache Cache
	now   func() time.Time
	log   *slog.Logger
}

// NewService creates a new insights service.
func NewService(cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryCache(DefaultCacheTTL, cfg.Now)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "LLaMA"
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = "3.1-8b"
	}

	return &Service{
		cfg:   cfg,
		cache: cfg.Cache,
		now:   cfg.Now,
		log:   log.With("component", "insights"),
	}
}

// Generate returns insights for records, which are expected newest
// first.
//
// A fresh cached report for the same fingerprint is returned without
// calling the provider. When the provider ultimately fails, the last
// cached report (whatever its fingerprint or age) is returned with
// Stale set; the error only surfaces if nothing was ever cached.
func (s *Service) Generate(
	ctx context.Context, records []models.TelemetryRecord,
) (*models.Insights, error) {
	if s.cfg.Provider == nil {
		return nil, ErrConfiguration
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}

	fingerprint := Fingerprint(records)
	if cached, ok := s.cache.Get(fingerprint); ok {
		s.log.Debug("Serving cached insights", "fingerprint", fingerprint)
		return cached, nil
	}

	report, err := s.analyze(ctx, records, fingerprint)
	if err != nil {
		s.log.Error("Failed to generate insights",
			"fingerprint", fingerprint, "records", len(records),
			"error", err,
		)
		if fallback, ok := s.cache.Last(); ok {
			stale := *fallback
			stale.Stale = true
			return &stale, nil
		}
		return nil, err
	}

	s.cache.Put(fingerprint, report)
	return report, nil
}

func (s *Service) analyze(
	ctx context.Context, records []models.TelemetryRecord,
	fingerprint string,
) (*models.Insights, error) {
	summary := Summarize(records)

	analysis, err := Retry(ctx, s.cfg.Retry,
		func(ctx context.Context) (*Analysis, error) {
			a, err := s.cfg.Provider.Analyze(ctx, summary)
			if err != nil && !errors.Is(err, ErrNoAnalysisResult) {
				s.log.Warn("Analysis attempt failed",
					"rate_limited", IsRateLimited(err), "error", err,
				)
			}
			return a, err
		},
	)
	if err != nil {
		return nil, err
	}

	text, html, err := renderSummary(analysis)
	if err != nil {
		return nil, err
	}

	now := s.now()
	return &models.Insights{
		Fingerprint: fingerprint,
		Summary:     text,
		SummaryHTML: html,
		ModelInfo: models.ModelInfo{
			Name:      s.cfg.ModelName,
			Version:   s.cfg.ModelVersion,
			Timestamp: now,
		},
		DataPoints: models.DataPoints{
			TotalRecords:    len(records),
			TimeRange:       summary.TimeRange,
			MetricsAnalyzed: MetricsAnalyzed,
		},
		Visualizations: visualizations(analysis, summary),
		GeneratedAt:    now,
	}, nil
}
