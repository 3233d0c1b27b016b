package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the configuration file is looked up when no path is given
const DefaultPath = "config/config.yaml"

// Config holds the application configuration
type Config struct {
	Environment Environment     `yaml:"environment"`
	Explore     ExploreConfig   `yaml:"explore"`
	Storage     StorageConfig   `yaml:"storage"`
	Server      ServerConfig    `yaml:"server"`
	Reporting   ReportingConfig `yaml:"reporting"`
	Logging     LoggingConfig   `yaml:"logging"`
	LLM         LLMConfig       `yaml:"llm"`
}

// Environment holds environment-specific configuration
type Environment struct {
	// BaseURL overrides the server URL declared by the API schema
	BaseURL string     `yaml:"base_url"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Type  string `yaml:"type"`
	Token string `yaml:"token"`
}

// ExploreConfig holds call dispatch configuration
type ExploreConfig struct {
	Timeout          int     `yaml:"timeout"`    // seconds
	RateLimit        float64 `yaml:"rate_limit"` // calls per second, 0 is unlimited
	Burst            int     `yaml:"burst"`
	MaxResponseBytes int64   `yaml:"max_response_bytes"`
	SessionTTL       int     `yaml:"session_ttl"` // minutes
}

// StorageConfig selects the database holding schemas and sequences
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig holds HTTP front configuration
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path"`
}

// ReportingConfig holds reporting configuration
type ReportingConfig struct {
	Format    []string `yaml:"format"`
	OutputDir string   `yaml:"output_dir"`
	Detailed  bool     `yaml:"detailed"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// LoadConfig loads the configuration from a .env file, the config file at
// path and environment variables, in that order of increasing precedence.
// A missing config file leaves the defaults in place.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	// .env is optional
	_ = godotenv.Load()

	var config Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.LLM.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		c.Environment.Auth.Token = token
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		c.Storage.DSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	c.LLM.applyEnv()
}

func (c *Config) applyDefaults() {
	if c.Explore.Timeout == 0 {
		c.Explore.Timeout = 30
	}
	if c.Explore.Burst == 0 {
		c.Explore.Burst = 1
	}
	if c.Explore.SessionTTL == 0 {
		c.Explore.SessionTTL = 60
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite3"
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "api-explore.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = "/metrics"
	}
	if len(c.Reporting.Format) == 0 {
		c.Reporting.Format = []string{"json"}
	}
	if c.Reporting.OutputDir == "" {
		c.Reporting.OutputDir = filepath.Join("reports")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.LLM.applyDefaults()
}
