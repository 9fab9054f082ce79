package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/muxboard/muxboard/internal/pool"
	"github.com/muxboard/muxboard/internal/snapshot"
)

// DesktopConfig represents the [desktop] section of config.toml.
type DesktopConfig struct {
	Theme string `toml:"theme"` // "dark", "light", or "auto"
}

// PoolConfig represents the [pool] section of config.toml. Capacity is
// the only tunable of the connection pool.
type PoolConfig struct {
	Capacity int `toml:"capacity"` // 1-32, default 6
}

// SnapshotConfig represents the [snapshots] section of config.toml.
type SnapshotConfig struct {
	MaxEntries int `toml:"max_entries"` // 1-1024, default 64
}

// SettingsManager reads and writes ~/.muxboard/config.toml, preserving
// sections it does not own.
type SettingsManager struct {
	configPath string
}

// NewSettingsManager creates a settings manager for the default config
// location.
func NewSettingsManager() *SettingsManager {
	home, _ := os.UserHomeDir()
	return &SettingsManager{
		configPath: filepath.Join(home, ".muxboard", "config.toml"),
	}
}

type fullConfig struct {
	Desktop   DesktopConfig  `toml:"desktop"`
	Pool      PoolConfig     `toml:"pool"`
	Snapshots SnapshotConfig `toml:"snapshots"`
}

// load reads the config file and applies defaults and clamps. A missing
// or unparsable file yields defaults rather than an error: the app must
// start with whatever is on disk.
func (sm *SettingsManager) load() (*fullConfig, error) {
	defaults := &fullConfig{
		Desktop:   DesktopConfig{Theme: "dark"},
		Pool:      PoolConfig{Capacity: pool.DefaultCapacity},
		Snapshots: SnapshotConfig{MaxEntries: snapshot.DefaultMaxEntries},
	}

	data, err := os.ReadFile(sm.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return nil, err
	}

	var config fullConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return defaults, nil
	}

	switch config.Desktop.Theme {
	case "dark", "light", "auto":
	default:
		config.Desktop.Theme = "dark"
	}

	config.Pool.Capacity = clampInt(config.Pool.Capacity, pool.DefaultCapacity, 1, 32)
	config.Snapshots.MaxEntries = clampInt(config.Snapshots.MaxEntries, snapshot.DefaultMaxEntries, 1, 1024)

	return &config, nil
}

// clampInt applies a default for the zero value and clamps to lo..hi.
func clampInt(v, def, lo, hi int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// save writes the managed sections back, preserving unknown sections.
func (sm *SettingsManager) save(config *fullConfig) error {
	existingData, _ := os.ReadFile(sm.configPath)

	var existing map[string]interface{}
	if len(existingData) > 0 {
		if err := toml.Unmarshal(existingData, &existing); err != nil {
			existing = make(map[string]interface{})
		}
	} else {
		existing = make(map[string]interface{})
	}

	existing["desktop"] = map[string]interface{}{
		"theme": config.Desktop.Theme,
	}
	existing["pool"] = map[string]interface{}{
		"capacity": config.Pool.Capacity,
	}
	existing["snapshots"] = map[string]interface{}{
		"max_entries": config.Snapshots.MaxEntries,
	}

	if err := os.MkdirAll(filepath.Dir(sm.configPath), 0700); err != nil {
		return err
	}

	var buf bytes.Buffer
	if len(existingData) == 0 {
		buf.WriteString("# Muxboard Configuration\n\n")
	}
	if err := toml.NewEncoder(&buf).Encode(existing); err != nil {
		return err
	}

	return os.WriteFile(sm.configPath, buf.Bytes(), 0600)
}

// GetTheme returns the desktop theme preference.
func (sm *SettingsManager) GetTheme() (string, error) {
	config, err := sm.load()
	if err != nil {
		return "dark", err
	}
	return config.Desktop.Theme, nil
}

// SetTheme sets the desktop theme preference.
func (sm *SettingsManager) SetTheme(theme string) error {
	theme = strings.ToLower(strings.TrimSpace(theme))
	switch theme {
	case "dark", "light", "auto":
	default:
		theme = "dark"
	}

	config, err := sm.load()
	if err != nil {
		return err
	}
	config.Desktop.Theme = theme
	return sm.save(config)
}

// GetPoolCapacity returns the configured pool capacity.
func (sm *SettingsManager) GetPoolCapacity() (int, error) {
	config, err := sm.load()
	if err != nil {
		return pool.DefaultCapacity, err
	}
	return config.Pool.Capacity, nil
}

// SetPoolCapacity stores the pool capacity. Takes effect at next app
// start; resizing a live pool would mean evicting panes, which the pool
// deliberately does not do.
func (sm *SettingsManager) SetPoolCapacity(capacity int) error {
	config, err := sm.load()
	if err != nil {
		return err
	}
	config.Pool.Capacity = clampInt(capacity, pool.DefaultCapacity, 1, 32)
	return sm.save(config)
}

// GetSnapshotMaxEntries returns the snapshot retention bound.
func (sm *SettingsManager) GetSnapshotMaxEntries() (int, error) {
	config, err := sm.load()
	if err != nil {
		return snapshot.DefaultMaxEntries, err
	}
	return config.Snapshots.MaxEntries, nil
}

// SetSnapshotMaxEntries stores the snapshot retention bound.
func (sm *SettingsManager) SetSnapshotMaxEntries(n int) error {
	config, err := sm.load()
	if err != nil {
		return err
	}
	config.Snapshots.MaxEntries = clampInt(n, snapshot.DefaultMaxEntries, 1, 1024)
	return sm.save(config)
}
