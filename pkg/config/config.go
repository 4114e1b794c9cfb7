// Package config provides configuration file support for the snapshot subsystem.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ChronicleDirName is the per-project directory holding config, the
// serialized store, and the revision history.
const ChronicleDirName = ".chronicle"

// Config represents the subsystem configuration.
type Config struct {
	// DebounceWindow is the quiet period required before a batch of
	// mutations is flushed to a commit.
	DebounceWindow time.Duration `yaml:"debounce_window"`
	// MaxWait caps how long a continuous burst can defer a flush.
	// Zero disables the cap.
	MaxWait time.Duration `yaml:"max_wait"`
	// ExcludeUnits lists tables skipped by dumps (large or derived
	// tables such as full-text indexes).
	ExcludeUnits []string `yaml:"exclude_units"`
	// GitBinary names or paths the history backend executable.
	GitBinary string        `yaml:"git_binary"`
	Logging   LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DebounceWindow: 500 * time.Millisecond,
		MaxWait:        0,
		GitBinary:      "git",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func path(projectRoot string) string {
	return filepath.Join(projectRoot, ChronicleDirName, "config.yaml")
}

// Load loads configuration from <projectRoot>/.chronicle/config.yaml.
// Returns default config if the file doesn't exist.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path(projectRoot))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = Default().DebounceWindow
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = Default().GitBinary
	}
	return cfg, nil
}

// Save writes configuration to <projectRoot>/.chronicle/config.yaml.
func Save(projectRoot string, cfg *Config) error {
	cfgPath := path(projectRoot)
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
