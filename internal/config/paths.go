package config

import (
	"os"
	"path/filepath"
)

// GetFerryDir returns the per-user directory ferry keeps its files in.
// Honours XDG_CONFIG_HOME on Linux.
func GetFerryDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return filepath.Join(os.TempDir(), "ferry")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "ferry")
}

// GetStateDir holds the session database
func GetStateDir() string {
	return filepath.Join(GetFerryDir(), "state")
}

func GetLogsDir() string {
	return filepath.Join(GetFerryDir(), "logs")
}

func GetSettingsPath() string {
	return filepath.Join(GetFerryDir(), "settings.yaml")
}

// EnsureDirs creates every directory ferry writes to
func EnsureDirs() error {
	for _, dir := range []string{GetFerryDir(), GetStateDir(), GetLogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
