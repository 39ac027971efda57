package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDir returns the GeoEngine state directory (~/.geoengine), creating
// it if needed.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".geoengine")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// SettingsFile returns the default settings file path.
func SettingsFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.yaml"), nil
}

// HistoryFile returns the default job-history database path.
func HistoryFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// JobsDir returns the directory used for per-job scratch data, creating it
// if needed.
func JobsDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	jobs := filepath.Join(dir, "jobs")
	if err := os.MkdirAll(jobs, 0755); err != nil {
		return "", err
	}
	return jobs, nil
}
