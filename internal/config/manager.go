package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultDebounceMS is the watcher quiet period when none is configured.
const DefaultDebounceMS = 300

// Config holds the user's persistent configuration preferences.
type Config struct {
	DBPath         string   `json:"db_path,omitempty"`         // Cache database file; default <root>/.cachebro/cache.db
	SessionID      string   `json:"session_id,omitempty"`      // Fixed session; a fresh UUID per run when empty
	Watch          bool     `json:"watch"`                     // Run the file watcher while serving
	WatchRoots     []string `json:"watch_roots,omitempty"`     // Directories to watch; default the repo root
	IgnorePatterns []string `json:"ignore_patterns,omitempty"` // Extra gitignore-style patterns the watcher skips
	DebounceMS     int      `json:"debounce_ms,omitempty"`     // Watcher quiet period in milliseconds
	DiffContext    int      `json:"diff_context,omitempty"`    // Context lines per diff hunk
}

// DefaultDBPath is where the cache lives for a repository.
func DefaultDBPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".cachebro", "cache.db")
}

// Debounce returns the configured quiet period as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// ApplyEnvOverrides overlays CACHEBRO_* environment variables onto c.
// Malformed numbers and booleans are reported, not ignored.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("CACHEBRO_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CACHEBRO_SESSION"); v != "" {
		c.SessionID = v
	}
	if v := os.Getenv("CACHEBRO_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CACHEBRO_WATCH %q: %w", v, err)
		}
		c.Watch = b
	}
	if v := os.Getenv("CACHEBRO_WATCH_ROOTS"); v != "" {
		c.WatchRoots = filepath.SplitList(v)
	}
	if v := os.Getenv("CACHEBRO_DEBOUNCE_MS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid CACHEBRO_DEBOUNCE_MS %q: %w", v, err)
		}
		c.DebounceMS = n
	}
	if v := os.Getenv("CACHEBRO_DIFF_CONTEXT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid CACHEBRO_DIFF_CONTEXT %q: %w", v, err)
		}
		c.DiffContext = n
	}
	return nil
}

// Resolve fills every unset field with its default for repoRoot.
func (c *Config) Resolve(repoRoot string) {
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath(repoRoot)
	}
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if len(c.WatchRoots) == 0 {
		c.WatchRoots = []string{repoRoot}
	}
	if c.DebounceMS <= 0 {
		c.DebounceMS = DefaultDebounceMS
	}
	if c.DiffContext < 0 {
		c.DiffContext = 0
	}
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return NewManagerAt(filepath.Join(configDir, "cachebro")), nil
}

// NewManagerAt creates a manager rooted at dir instead of the user config dir.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk.
// If the file does not exist, it returns an empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}
