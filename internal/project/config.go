package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glommer/cachebro/internal/config"
)

const (
	// Dir is the per-project directory that also holds the cache database.
	Dir = ".cachebro"
	// ConfigFile is the name of the project configuration file
	ConfigFile = "config.json"
)

// ProjectConfig holds per-project settings checked into or kept beside a
// repository. Unset fields leave the user configuration alone.
type ProjectConfig struct {
	Watch          *bool    `json:"watch,omitempty"`
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`
	DebounceMS     int      `json:"debounce_ms,omitempty"`
	DiffContext    int      `json:"diff_context,omitempty"`
}

// configPath returns the full path to the project config file.
func configPath(repoRoot string) string {
	return filepath.Join(repoRoot, Dir, ConfigFile)
}

// ConfigExists checks if a project configuration file exists.
func ConfigExists(repoRoot string) bool {
	_, err := os.Stat(configPath(repoRoot))
	return !os.IsNotExist(err)
}

// LoadConfig reads the project configuration from disk.
// Returns nil and no error if the config file does not exist.
func LoadConfig(repoRoot string) (*ProjectConfig, error) {
	data, err := os.ReadFile(configPath(repoRoot))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	var cfg ProjectConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes the project configuration to disk.
// Creates the .cachebro directory if it doesn't exist.
func SaveConfig(repoRoot string, cfg *ProjectConfig) error {
	if err := os.MkdirAll(filepath.Join(repoRoot, Dir), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project config: %w", err)
	}

	if err := os.WriteFile(configPath(repoRoot), data, 0644); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}

	return nil
}

// ApplyTo overlays the fields set in p onto cfg. A nil p is a no-op.
func (p *ProjectConfig) ApplyTo(cfg *config.Config) {
	if p == nil {
		return
	}
	if p.Watch != nil {
		cfg.Watch = *p.Watch
	}
	if len(p.IgnorePatterns) > 0 {
		cfg.IgnorePatterns = append(cfg.IgnorePatterns, p.IgnorePatterns...)
	}
	if p.DebounceMS > 0 {
		cfg.DebounceMS = p.DebounceMS
	}
	if p.DiffContext > 0 {
		cfg.DiffContext = p.DiffContext
	}
}
