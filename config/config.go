package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fahmaliyi/volcred/credential"
	"gopkg.in/yaml.v3"
)

// Config holds the operator's preferences for credential changes
type Config struct {
	// PreserveTimestamps restores the container's access and modification times after a rekey
	PreserveTimestamps bool `yaml:"preserve_timestamps"`

	// HeaderWipePasses is the number of random overwrites before a new header is written
	HeaderWipePasses int `yaml:"header_wipe_passes"`

	// DefaultKdf is used when creating volumes
	DefaultKdf string `yaml:"default_kdf"`

	// LogLevel is a zerolog level name
	LogLevel string `yaml:"log_level"`

	// ClipboardClearSeconds is how long a generated password stays on the clipboard
	ClipboardClearSeconds int `yaml:"clipboard_clear_seconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		PreserveTimestamps:    true,
		HeaderWipePasses:      credential.DefaultWipePasses,
		DefaultKdf:            credential.KdfSHA512.Name,
		LogLevel:              "info",
		ClipboardClearSeconds: 30,
	}
}

// DefaultPath returns ~/.volcred/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".volcred", "config.yaml"), nil
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Use defaults if no config file
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the change engine cannot use
func (c *Config) Validate() error {
	if c.HeaderWipePasses < 0 || c.HeaderWipePasses > 256 {
		return fmt.Errorf("header_wipe_passes must be between 0 and 256, got %d", c.HeaderWipePasses)
	}
	if _, err := credential.LookupKdf(c.DefaultKdf); err != nil {
		return fmt.Errorf("default_kdf: %w", err)
	}
	if c.ClipboardClearSeconds < 0 {
		return fmt.Errorf("clipboard_clear_seconds must not be negative")
	}
	return nil
}

// Apply copies the request-level preferences onto req
func (c *Config) Apply(req *credential.ChangeRequest) {
	req.PreserveTimestamps = c.PreserveTimestamps
	req.WipePasses = c.HeaderWipePasses
}
