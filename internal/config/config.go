package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Insights InsightsConfig `yaml:"insights"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// InsightsConfig configures the analysis API client and its cache.
type InsightsConfig struct {
	// APIKey is only ever read from GROQ_API_KEY.
	APIKey string `yaml:"-"`

	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	ModelName      string        `yaml:"model_name"`
	ModelVersion   string        `yaml:"model_version"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	HistoryDays    int           `yaml:"history_days"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "vehicle_insights.db",
		},
		Insights: InsightsConfig{
			BaseURL:        "https://api.groq.com",
			Model:          "llama-3.1-8b-instant",
			ModelName:      "LLaMA",
			ModelVersion:   "3.1-8b",
			MaxTokens:      1000,
			RequestTimeout: 30 * time.Second,
			CacheTTL:       15 * time.Minute,
			MaxAttempts:    3,
			RetryDelay:     2 * time.Second,
			HistoryDays:    7,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Insights.APIKey = strings.TrimSpace(os.Getenv("GROQ_API_KEY"))

	if v := os.Getenv("GROQ_BASE_URL"); v != "" {
		cfg.Insights.BaseURL = v
	}
	if v := os.Getenv("INSIGHTS_MODEL"); v != "" {
		cfg.Insights.Model = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(strings.TrimPrefix(v, ":"))
		if err != nil {
			return fmt.Errorf("invalid HTTP_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("INSIGHTS_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid INSIGHTS_CACHE_TTL %q: %w", v, err)
		}
		cfg.Insights.CacheTTL = ttl
	}
	return nil
}

// Validate checks ranges. The API key is not required here; the
// insights endpoints report its absence on use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Insights.MaxAttempts < 1 {
		return fmt.Errorf("insights.max_attempts must be at least 1, got %d", c.Insights.MaxAttempts)
	}
	if c.Insights.CacheTTL <= 0 {
		return fmt.Errorf("insights.cache_ttl must be positive")
	}
	if c.Insights.RetryDelay < 0 {
		return fmt.Errorf("insights.retry_delay cannot be negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
