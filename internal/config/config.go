// Package config loads service configuration from an optional file, a .env
// file and AQF_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aqforecast/aqforecast/internal/forecast"
)

// EnvPrefix prefixes every environment override, e.g. AQF_SERVER_PORT.
const EnvPrefix = "AQF"

var validate = validator.New()

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Forecast  ForecastConfig  `mapstructure:"forecast"`
	Sources   []SourceConfig  `mapstructure:"sources" validate:"required,min=1,dive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required,numeric"`
	Env  string `mapstructure:"env" validate:"required"`

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool `mapstructure:"require_tls"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

// TelemetryConfig holds OpenTelemetry exporter configuration.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// ForecastConfig holds refresh and lookup behaviour.
type ForecastConfig struct {
	MaxStepsBack    int           `mapstructure:"max_steps_back" validate:"gte=0,lte=60"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
	Concurrency     int           `mapstructure:"concurrency" validate:"gte=1"`
	DefaultSources  []string      `mapstructure:"default_sources"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gte=0"`
	CoordinatesTTL  time.Duration `mapstructure:"coordinates_ttl" validate:"gt=0"`
	HTTPRetries     int           `mapstructure:"http_retries" validate:"gte=0,lte=10"`
}

// SourceConfig describes one forecast source.
type SourceConfig struct {
	Name           string `mapstructure:"name" validate:"required"`
	Format         string `mapstructure:"format" validate:"oneof=geojson csv"`
	BaseURL        string `mapstructure:"base_url" validate:"omitempty,url"`
	CoordinatesURL string `mapstructure:"coordinates_url" validate:"omitempty,url"`
}

// PubSubConfig enables refresh triggers from a Pub/Sub subscription. Both
// fields must be set for the subscriber to start.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Subscription string `mapstructure:"subscription" validate:"required_with=ProjectID"`
}

// Enabled reports whether a subscription is configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Subscription != ""
}

// Load reads configuration from path (optional), a .env file in the working
// directory (optional) and the environment. The result is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.require_tls", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("forecast.max_steps_back", forecast.DefaultMaxStepsBack)
	v.SetDefault("forecast.probe_timeout", forecast.DefaultProbeTimeout)
	v.SetDefault("forecast.concurrency", 4)
	v.SetDefault("forecast.default_sources", []string{string(forecast.SourceDoS)})
	v.SetDefault("forecast.refresh_interval", "1h")
	v.SetDefault("forecast.coordinates_ttl", "24h")
	v.SetDefault("forecast.http_retries", 1)

	sources := make([]map[string]any, 0, len(forecast.AllSources()))
	for _, s := range forecast.AllSources() {
		sources = append(sources, map[string]any{
			"name":   string(s),
			"format": string(forecast.FormatGeoJSON),
		})
	}
	v.SetDefault("sources", sources)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.subscription", "")
}

// Validate checks struct constraints and that every named source is known.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[forecast.Source]bool, len(c.Sources))
	for _, s := range c.Sources {
		src, err := forecast.ParseSource(s.Name)
		if err != nil {
			return fmt.Errorf("invalid config: sources: %w", err)
		}
		if seen[src] {
			return fmt.Errorf("invalid config: source %q listed twice", s.Name)
		}
		seen[src] = true
	}

	for _, name := range c.Forecast.DefaultSources {
		src, err := forecast.ParseSource(name)
		if err != nil {
			return fmt.Errorf("invalid config: forecast.default_sources: %w", err)
		}
		if !seen[src] {
			return fmt.Errorf("invalid config: default source %q has no sources entry", name)
		}
	}
	return nil
}

// SourceConfigs returns the configured sources in forecast terms.
func (c *Config) SourceConfigs() []forecast.SourceConfig {
	out := make([]forecast.SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		src, err := forecast.ParseSource(s.Name)
		if err != nil {
			continue
		}
		out = append(out, forecast.SourceConfig{
			Name:           src,
			Format:         forecast.Format(s.Format),
			BaseURL:        s.BaseURL,
			CoordinatesURL: s.CoordinatesURL,
		})
	}
	return out
}

// DefaultSources returns the sources enabled before any refresh request.
func (c *Config) DefaultSources() []forecast.Source {
	out := make([]forecast.Source, 0, len(c.Forecast.DefaultSources))
	for _, name := range c.Forecast.DefaultSources {
		if src, err := forecast.ParseSource(name); err == nil {
			out = append(out, src)
		}
	}
	return out
}
