package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// maxFrameSize mirrors protocol.MaxFrameSize; config stays free of BLE imports.
const maxFrameSize = 20

// Config holds all application configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Scan     ScanConfig    `yaml:"scan"`
	Connect  ConnectConfig `yaml:"connect"`
	Console  ConsoleConfig `yaml:"console"`
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	Verbose       bool          `yaml:"verbose"`
	FilterUnnamed bool          `yaml:"filter_unnamed"`
	LostTimeout   time.Duration `yaml:"lost_timeout"` // 0 disables lost reports
}

// ConnectConfig holds connection retry settings.
type ConnectConfig struct {
	RetryBackoff    time.Duration `yaml:"retry_backoff"` // 0 retries immediately
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max"`
}

// ConsoleConfig holds interactive session settings.
type ConsoleConfig struct {
	FrameSize  int           `yaml:"frame_size"`
	WriteDelay time.Duration `yaml:"write_delay"`
	Prompt     string        `yaml:"prompt"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hm-remote")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "warn",
		Scan: ScanConfig{
			LostTimeout: 10 * time.Second,
		},
		Connect: ConnectConfig{
			RetryBackoff:    100 * time.Millisecond,
			RetryBackoffMax: 2 * time.Second,
		},
		Console: ConsoleConfig{
			FrameSize:  maxFrameSize,
			WriteDelay: 10 * time.Millisecond,
			Prompt:     ">",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

const defaultHeader = "# hm-remote configuration\n# CLI flags override these values.\n\n"

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the written path, or "" when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Scan.LostTimeout < 0 {
		return fmt.Errorf("scan.lost_timeout must be >= 0")
	}

	if c.Connect.RetryBackoff < 0 {
		return fmt.Errorf("connect.retry_backoff must be >= 0")
	}
	if c.Connect.RetryBackoffMax < c.Connect.RetryBackoff {
		return fmt.Errorf("connect.retry_backoff_max must be >= connect.retry_backoff")
	}

	if c.Console.FrameSize < 1 || c.Console.FrameSize > maxFrameSize {
		return fmt.Errorf("console.frame_size must be between 1 and %d, got %d", maxFrameSize, c.Console.FrameSize)
	}
	if c.Console.WriteDelay < 0 {
		return fmt.Errorf("console.write_delay must be >= 0")
	}

	return nil
}

// ParseLogLevel maps a log_level string to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
