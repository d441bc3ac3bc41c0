package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// HTTPConfig configures the quote API listener.
type HTTPConfig struct {
	Addr                string  `json:"addr"`
	ReadTimeoutSeconds  int     `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int     `json:"write_timeout_seconds"`
	RatePerSecond       float64 `json:"rate_per_second"`
	RateBurst           int     `json:"rate_burst"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8000"
	}
	if c.ReadTimeoutSeconds <= 0 {
		c.ReadTimeoutSeconds = 15
	}
	if c.WriteTimeoutSeconds <= 0 {
		c.WriteTimeoutSeconds = 30
	}
}

func (c HTTPConfig) Validate() error {
	if c.RatePerSecond < 0 || c.RateBurst < 0 {
		return errors.New("http: rate limits must not be negative")
	}
	return nil
}

func (c HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c HTTPConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// DatabaseConfig points at the relational store holding announcements and
// drivers.
type DatabaseConfig struct {
	// Driver is "postgres" (lib/pq) or "pgx".
	Driver              string `json:"driver"`
	DSN                 string `json:"dsn"`
	ConnectAttempts     int    `json:"connect_attempts"`
	RetryDelaySeconds   int    `json:"retry_delay_seconds"`
	MaxOpenConns        int    `json:"max_open_conns"`
	QueryTimeoutSeconds int    `json:"query_timeout_seconds"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "postgres"
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 3
	}
	if c.RetryDelaySeconds <= 0 {
		c.RetryDelaySeconds = 5
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.QueryTimeoutSeconds <= 0 {
		c.QueryTimeoutSeconds = 10
	}
}

func (c DatabaseConfig) Validate() error {
	if c.Driver != "postgres" && c.Driver != "pgx" {
		return fmt.Errorf("database: unknown driver %q", c.Driver)
	}
	if c.DSN == "" {
		return errors.New("database: dsn is required")
	}
	return nil
}

func (c DatabaseConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// GeocoderConfig configures the Google Geocoding client.
type GeocoderConfig struct {
	APIKey         string  `json:"api_key"`
	BaseURL        string  `json:"base_url"`
	Region         string  `json:"region"`
	Language       string  `json:"language"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	RatePerSecond  float64 `json:"rate_per_second"`
	Burst          int     `json:"burst"`
}

func (c *GeocoderConfig) SetDefaults() {
	if c.Region == "" {
		c.Region = "uz"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
}

func (c GeocoderConfig) Validate() error {
	if c.RatePerSecond < 0 {
		return errors.New("geocoder: rate_per_second must not be negative")
	}
	return nil
}

func (c GeocoderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheConfig configures the geocode cache and the region vocabulary
// refresh. An empty RedisAddr disables the geocode cache.
type CacheConfig struct {
	RedisAddr            string `json:"redis_addr"`
	RedisPassword        string `json:"redis_password"`
	RedisDB              int    `json:"redis_db"`
	GeocodeTTLHours      int    `json:"geocode_ttl_hours"`
	VocabularyTTLSeconds int    `json:"vocabulary_ttl_seconds"`
}

func (c *CacheConfig) SetDefaults() {
	if c.GeocodeTTLHours <= 0 {
		c.GeocodeTTLHours = 24 * 30
	}
	if c.VocabularyTTLSeconds == 0 {
		c.VocabularyTTLSeconds = 300
	}
}

func (c CacheConfig) Validate() error {
	if c.RedisDB < 0 {
		return errors.New("cache: redis_db must not be negative")
	}
	return nil
}

func (c CacheConfig) GeocodeTTL() time.Duration {
	return time.Duration(c.GeocodeTTLHours) * time.Hour
}

// VocabularyTTL is how long the region vocabulary is reused. A negative
// setting keeps it until the next retrain.
func (c CacheConfig) VocabularyTTL() time.Duration {
	return time.Duration(c.VocabularyTTLSeconds) * time.Second
}

// ModelsConfig locates the model state database.
type ModelsConfig struct {
	Path string `json:"path"`
}

func (c *ModelsConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "models.db"
	}
}

// TrainingConfig controls batch retraining of the price model.
type TrainingConfig struct {
	// Schedule is a standard five-field cron expression; empty disables
	// scheduled retrains.
	Schedule       string `json:"schedule"`
	SkipStartup    bool   `json:"skip_startup"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (c *TrainingConfig) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 300
	}
}

func (c TrainingConfig) Validate() error {
	if c.Schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("training: invalid schedule %q: %w", c.Schedule, err)
	}
	return nil
}

func (c TrainingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NormalizerConfig adds place name exceptions from a YAML file.
type NormalizerConfig struct {
	ExceptionsFile string `json:"exceptions_file"`
}
