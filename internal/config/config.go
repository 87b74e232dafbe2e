// Package config handles configuration and the device address book for crestctl.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/crestctl/config.yaml or ~/.config/crestctl/config.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "crestctl", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	Devices []DeviceConfig `yaml:"devices"`
	Session SessionConfig  `yaml:"session"`
	Upload  UploadConfig   `yaml:"upload"`
	Logging LoggingConfig  `yaml:"logging"`
}

// DeviceConfig is one address-book entry for a control processor.
// Passwords are never stored here; they live in the OS keyring or an
// environment variable named by PasswordEnv.
type DeviceConfig struct {
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	KeyPath     string `yaml:"key_path"`
	PasswordEnv string `yaml:"password_env"`

	// Per-device session overrides; zero values fall back to the
	// session defaults.
	ExitCommand       string        `yaml:"exit_command"`
	EscapeMarker      string        `yaml:"escape_marker"`
	ReconnectAttempts *int          `yaml:"reconnect_attempts"` // -1 = unlimited
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
}

// SessionConfig defines pass-through session defaults.
type SessionConfig struct {
	ExitCommand       string        `yaml:"exit_command"`
	EscapeMarker      string        `yaml:"escape_marker"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"` // -1 = unlimited
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	CommandTimeout    time.Duration `yaml:"command_timeout"` // scripted sub-command wait
}

// UploadConfig defines program upload settings.
type UploadConfig struct {
	RemoteDir string   `yaml:"remote_dir"`
	Patterns  []string `yaml:"patterns"` // doublestar globs, e.g. "**/*.lpz"
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			ExitCommand:       "bye",
			EscapeMarker:      ":",
			ReconnectAttempts: 5,
			ReconnectDelay:    2 * time.Second,
			CommandTimeout:    30 * time.Second,
		},
		Upload: UploadConfig{
			RemoteDir: "/SIMPL",
			Patterns:  []string{"**/*.lpz", "**/*.cpz"},
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file, creating the directory as
// needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate normalizes and checks the configuration.
func (c *Config) Validate() error {
	if c.Session.ExitCommand == "" {
		c.Session.ExitCommand = "bye"
	}
	if c.Session.EscapeMarker == "" {
		c.Session.EscapeMarker = ":"
	}
	if len(c.Session.EscapeMarker) != 1 {
		return fmt.Errorf("session escape_marker must be a single character, got %q", c.Session.EscapeMarker)
	}
	if c.Session.ReconnectDelay <= 0 {
		c.Session.ReconnectDelay = 2 * time.Second
	}
	if c.Session.CommandTimeout <= 0 {
		c.Session.CommandTimeout = 30 * time.Second
	}

	seen := make(map[string]bool, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Name == "" {
			return fmt.Errorf("device %d: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate device name %q", d.Name)
		}
		seen[d.Name] = true
		if d.Host == "" {
			return fmt.Errorf("device %q: host is required", d.Name)
		}
		if d.Port == 0 {
			d.Port = 22
		}
		if d.EscapeMarker != "" && len(d.EscapeMarker) != 1 {
			return fmt.Errorf("device %q: escape_marker must be a single character", d.Name)
		}
	}

	return nil
}

// FindDevice looks up an address-book entry by name (case-insensitive).
func (c *Config) FindDevice(name string) (*DeviceConfig, bool) {
	for i := range c.Devices {
		if strings.EqualFold(c.Devices[i].Name, name) {
			return &c.Devices[i], true
		}
	}
	return nil, false
}

// AddDevice adds an address-book entry, rejecting duplicate names.
func (c *Config) AddDevice(dev DeviceConfig) error {
	if _, ok := c.FindDevice(dev.Name); ok {
		return fmt.Errorf("device %q already exists", dev.Name)
	}
	c.Devices = append(c.Devices, dev)
	return nil
}

// SessionFor resolves the effective session settings for a device,
// applying per-device overrides on top of the session defaults.
func (c *Config) SessionFor(dev *DeviceConfig) SessionConfig {
	s := c.Session
	if dev == nil {
		return s
	}
	if dev.ExitCommand != "" {
		s.ExitCommand = dev.ExitCommand
	}
	if dev.EscapeMarker != "" {
		s.EscapeMarker = dev.EscapeMarker
	}
	if dev.ReconnectAttempts != nil {
		s.ReconnectAttempts = *dev.ReconnectAttempts
	}
	if dev.ReconnectDelay > 0 {
		s.ReconnectDelay = dev.ReconnectDelay
	}
	return s
}
