// Package config holds TOML-backed defaults for the tracer and the VM it
// drives: RAM size, spin count, op quota, memory tracing, and TUI mode.
// CLI flags always take precedence over whatever a config file sets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config holds the tracer's tunable knobs: RAM size, spin count, op
// quota, memory tracing, and whether to render the live TUI view.
type Config struct {
	RAMSize     int  `toml:"ram_size"`
	Spins       int  `toml:"spins"`
	MaxOps      int  `toml:"max_ops"` // 0 means unbounded
	TraceMemory bool `toml:"trace_memory"`
	UseTUI      bool `toml:"use_tui"`
}

// DefaultConfig returns the tracer's built-in defaults: ram_size 8,
// spins 1, max_ops unbounded, memory tracing off, text mode.
func DefaultConfig() *Config {
	return &Config{
		RAMSize:     8,
		Spins:       1,
		MaxOps:      0,
		TraceMemory: false,
		UseTUI:      false,
	}
}

// GetConfigPath returns the platform-specific default config file path,
// creating its parent directory if necessary.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "stripvm")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "stripvm")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the default config file, per GetConfigPath.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from path. A missing file yields defaults
// with no error; a present file overrides whichever fields it sets,
// leaving the rest at their defaults (toml.DecodeFile decodes onto the
// already-populated struct).
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	return cfg, nil
}
