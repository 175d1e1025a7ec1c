// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/skyaware/skyaware/internal/database"
)

// Config is the top-level configuration shared by the API and the worker.
// It is populated once at startup and never modified.
type Config struct {
	App       AppConfig
	Telemetry TelemetryConfig
	Database  database.Config
	Cache     CacheConfig
	Query     QueryConfig
	Ingest    IngestConfig
	PubSub    PubSubConfig
	Auth      AuthConfig
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development" validate:"oneof=development test staging production"`
	Port        int    `envconfig:"APP_PORT" default:"8080" validate:"min=1,max=65535"`
	HealthPort  int    `envconfig:"WORKER_HEALTH_PORT" default:"8081" validate:"min=1,max=65535"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	RequireTLS  bool   `envconfig:"REQUIRE_TLS" default:"false"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTLPEndpoint string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317" validate:"required"`
	SampleRatio  float64 `envconfig:"OTEL_TRACES_SAMPLER_ARG" default:"1" validate:"gt=0,lte=1"`
}

// CacheConfig holds Redis settings. An empty Addr disables the cache and
// every query is served from the durable store.
type CacheConfig struct {
	Addr        string        `envconfig:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	Password    string        `envconfig:"REDIS_PASSWORD"`
	DB          int           `envconfig:"REDIS_DB" default:"0" validate:"min=0,max=15"`
	TTL         time.Duration `envconfig:"CACHE_TTL" default:"1h" validate:"gt=0"`
	Compress    bool          `envconfig:"CACHE_COMPRESS" default:"true"`
	DialTimeout time.Duration `envconfig:"CACHE_DIAL_TIMEOUT" default:"2s"`
	IOTimeout   time.Duration `envconfig:"CACHE_IO_TIMEOUT" default:"2s"`
}

// Enabled reports whether a cache address is configured.
func (c CacheConfig) Enabled() bool {
	return c.Addr != ""
}

// QueryConfig holds spatial query limits.
type QueryConfig struct {
	MaxProcess      int     `envconfig:"QUERY_MAX_PROCESS" default:"5000" validate:"min=1"`
	DefaultRadiusKM float64 `envconfig:"QUERY_DEFAULT_RADIUS_KM" default:"50" validate:"gt=0"`
	DefaultLimit    int     `envconfig:"QUERY_DEFAULT_LIMIT" default:"100" validate:"min=1,ltefield=MaxLimit"`
	MaxLimit        int     `envconfig:"QUERY_MAX_LIMIT" default:"1000" validate:"min=1"`
	RateLimit       int     `envconfig:"QUERY_RATE_LIMIT" default:"120" validate:"min=1"`
}

// IngestConfig holds pipeline settings for the worker.
type IngestConfig struct {
	Interval    time.Duration `envconfig:"INGEST_INTERVAL" default:"1h" validate:"gte=1m"`
	ChunkSize   int           `envconfig:"INGEST_CHUNK_SIZE" default:"5000" validate:"min=1"`
	Timeout     time.Duration `envconfig:"INGEST_TIMEOUT" default:"10m" validate:"gt=0"`
	RunOnStart  bool          `envconfig:"INGEST_RUN_ON_START" default:"true"`
	GranuleURL  string        `envconfig:"GRANULE_URL" validate:"omitempty,url"`
	GranulePath string        `envconfig:"GRANULE_PATH"`
}

// ErrNoGranuleSource is returned when neither GRANULE_URL nor GRANULE_PATH is set.
var ErrNoGranuleSource = errors.New("one of GRANULE_URL or GRANULE_PATH is required")

// RequireSource checks that the worker has somewhere to read granules from.
func (c IngestConfig) RequireSource() error {
	if c.GranuleURL == "" && c.GranulePath == "" {
		return ErrNoGranuleSource
	}
	return nil
}

// PubSubConfig holds the optional ingest trigger subscription.
type PubSubConfig struct {
	ProjectID    string `envconfig:"PUBSUB_PROJECT_ID"`
	Subscription string `envconfig:"PUBSUB_SUBSCRIPTION" validate:"required_with=ProjectID"`
}

// Enabled reports whether a subscription is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Subscription != ""
}

// AuthConfig holds service token settings for the ops endpoints.
type AuthConfig struct {
	SigningKey string `envconfig:"OPS_TOKEN_SIGNING_KEY" validate:"omitempty,min=32"`
	Issuer     string `envconfig:"OPS_TOKEN_ISSUER" default:"skyaware"`
	Audience   string `envconfig:"OPS_TOKEN_AUDIENCE" default:"skyaware-ops"`
}

// ErrorType classifies configuration failures.
type ErrorType string

const (
	ErrParsing    ErrorType = "PARSING"
	ErrValidation ErrorType = "VALIDATION"
)

// Error is returned by Load.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads an optional .env file, processes the environment and
// validates the result. Variables already set in the environment win over
// the .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &Error{Type: ErrParsing, Message: "failed to process environment configuration", Err: err}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &Error{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	return &cfg, nil
}

// Level parses the configured log level.
func (c AppConfig) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
