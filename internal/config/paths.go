package config

import (
	"os"
	"path/filepath"
)

const appName = "omorifit"

// Environment variables that point omorifit at a specific database or
// config file, bypassing the XDG layout.
const (
	EnvDBPath     = "OMORIFIT_DB"
	EnvConfigPath = "OMORIFIT_CONFIG"
)

// DefaultDBPath returns $OMORIFIT_DB, or omorifit.db under the XDG data home.
func DefaultDBPath() string {
	if v := os.Getenv(EnvDBPath); v != "" {
		return v
	}
	return filepath.Join(baseDir("XDG_DATA_HOME", ".local", "share"), appName, appName+".db")
}

// DefaultConfigPath returns $OMORIFIT_CONFIG, or config.toml under the XDG config home.
func DefaultConfigPath() string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return filepath.Join(baseDir("XDG_CONFIG_HOME", ".config"), appName, "config.toml")
}

// baseDir returns $env, or the fallback path under the home directory.
// Without a home directory it falls back to the working directory.
func baseDir(env string, fallback ...string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}
