package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Logging     LogConfig         `yaml:"logging" toml:"logging"`
	Library     LibraryConfig     `yaml:"library" toml:"library"`
	Acquisition AcquisitionConfig `yaml:"acquisition" toml:"acquisition"`
	Transfer    TransferConfig    `yaml:"transfer" toml:"transfer"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" toml:"rate_limit"`
	CORS        CORSConfig        `yaml:"cors" toml:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" yaml:"port" toml:"port"`
	Host string `envconfig:"HOST" yaml:"host" toml:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
	Sampling    bool   `envconfig:"LOG_SAMPLING" yaml:"sampling" toml:"sampling"`
}

// LibraryConfig holds storage and pipeline configuration.
type LibraryConfig struct {
	StoragePath string `envconfig:"LIBRARY_STORAGE_PATH" yaml:"storage_path" toml:"storage_path"`
	// KeepFailed leaves scratch directories of failed imports on disk.
	KeepFailed     bool     `envconfig:"LIBRARY_KEEP_FAILED" yaml:"keep_failed" toml:"keep_failed"`
	ScratchTTL     Duration `envconfig:"LIBRARY_SCRATCH_TTL" yaml:"scratch_ttl" toml:"scratch_ttl"`
	MaxUploadBytes int64    `envconfig:"LIBRARY_MAX_UPLOAD_BYTES" yaml:"max_upload_bytes" toml:"max_upload_bytes"`
}

// AcquisitionConfig holds download configuration.
type AcquisitionConfig struct {
	QueueDepth int      `envconfig:"ACQUISITION_QUEUE_DEPTH" yaml:"queue_depth" toml:"queue_depth"`
	Timeout    Duration `envconfig:"ACQUISITION_TIMEOUT" yaml:"timeout" toml:"timeout"`
	Retries    int      `envconfig:"ACQUISITION_RETRIES" yaml:"retries" toml:"retries"`
	RateLimit  float64  `envconfig:"ACQUISITION_RATE_LIMIT" yaml:"rate_limit" toml:"rate_limit"`
	UserAgent  string   `envconfig:"ACQUISITION_USER_AGENT" yaml:"user_agent" toml:"user_agent"`
}

// TransferConfig holds configuration for ephemeral transfer services.
type TransferConfig struct {
	Host string `envconfig:"TRANSFER_HOST" yaml:"host" toml:"host"`
	// AdvertiseHost is the host written into transfer URLs; defaults to Host.
	AdvertiseHost string `envconfig:"TRANSFER_ADVERTISE_HOST" yaml:"advertise_host" toml:"advertise_host"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" yaml:"allow_origins" toml:"allow_origins"`
}

// Duration is a time.Duration that decodes from strings like "30s" in
// environment variables, YAML and TOML alike.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" || s == "0" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load builds configuration from defaults, the optional CONFIG_FILE, and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns defaults on error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile overlays a YAML or TOML file onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file type: %s", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Library.StoragePath == "" {
		return fmt.Errorf("library storage path is required")
	}
	if c.Acquisition.QueueDepth < 1 {
		return fmt.Errorf("acquisition queue depth must be at least 1, got %d", c.Acquisition.QueueDepth)
	}
	if c.Acquisition.Retries < 0 {
		return fmt.Errorf("acquisition retries cannot be negative")
	}
	return nil
}

// TransferAdvertiseHost returns the host used in transfer URLs.
func (c *Config) TransferAdvertiseHost() string {
	if c.Transfer.AdvertiseHost != "" {
		return c.Transfer.AdvertiseHost
	}
	return c.Transfer.Host
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			Sampling:    true,
		},
		Library: LibraryConfig{
			StoragePath:    "/tmp/app-library",
			KeepFailed:     false,
			ScratchTTL:     Duration{24 * time.Hour},
			MaxUploadBytes: 4 << 30,
		},
		Acquisition: AcquisitionConfig{
			QueueDepth: 4,
			Timeout:    Duration{0},
			Retries:    0,
			RateLimit:  0,
			UserAgent:  "AppLibrary/1.0",
		},
		Transfer: TransferConfig{
			Host: "127.0.0.1",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}
