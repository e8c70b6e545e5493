package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir picks where the Pebble data and queue files live when no
// directory is configured: XDG_DATA_HOME wins, then the first writable
// platform location, then a dotdir under the user's home.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "superstream")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	candidates := []struct {
		probe string
		dir   string
	}{
		{"/var/lib", "/var/lib/superstream"},
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", "Superstream")},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", "Superstream")},
	}
	for _, c := range candidates {
		if info, err := os.Stat(c.probe); err == nil && info.IsDir() {
			return c.dir
		}
	}
	return filepath.Join(home, ".superstream")
}
