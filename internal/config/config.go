package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no explicit path is given.
const DefaultConfigPath = "config.yaml"

// DatabaseConfig holds the target database settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// MetadataConfig points at the file-based metadata directory.
type MetadataConfig struct {
	Dir string `yaml:"dir"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AuthConfig holds the admin API credentials and token settings.
type AuthConfig struct {
	AdminUsername       string `yaml:"admin-username"`
	AdminPasswordBcrypt string `yaml:"admin-password-bcrypt"`
	JWTSecret           string `yaml:"jwt-secret"`
	TokenTTLMinutes     int    `yaml:"token-ttl-minutes"`
}

// TokenTTL returns the configured token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	minutes := a.TokenTTLMinutes
	if minutes < 1 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// WorkerConfig controls the background poll loop.
type WorkerConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// PollEnabled reports whether the poll loop should run; absent means on.
func (w WorkerConfig) PollEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// Config is the root YAML configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Metadata MetadataConfig `yaml:"metadata"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ResolveConfigPath returns the explicit path or the default.
func ResolveConfigPath(path string) string {
	if strings.TrimSpace(path) == "" {
		return DefaultConfigPath
	}
	return path
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(ResolveConfigPath(path))
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	var cfg Config
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8318"
	}
	return &cfg, nil
}
