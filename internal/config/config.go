// ABOUTME: Configuration loading and parsing for the wisp-cms daemon
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete wisp-cms configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Site     SiteConfig     `yaml:"site"`
	Sessions SessionsConfig `yaml:"sessions"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the flat-file store configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SiteConfig holds install-level site configuration
type SiteConfig struct {
	// RootDir scopes file operations for an authenticated session.
	// Defaults to the directory containing the database file.
	RootDir string `yaml:"root_dir"`
	BaseURL string `yaml:"base_url"`
}

// SessionsConfig holds session lifetime configuration
type SessionsConfig struct {
	Duration time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DurationRaw string `yaml:"duration"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration suitable for a local single-admin
// install rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:8080"},
		Database: DatabaseConfig{Path: filepath.Join(dataDir, "database.json")},
		Site:     SiteConfig{RootDir: dataDir},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Sessions.DurationRaw != "" {
		cfg.Sessions.Duration, err = time.ParseDuration(cfg.Sessions.DurationRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing sessions.duration %q: %w", cfg.Sessions.DurationRaw, err)
		}
	}

	if cfg.Site.RootDir == "" {
		cfg.Site.RootDir = filepath.Dir(cfg.Database.Path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure
// encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}
