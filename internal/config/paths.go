package config

import (
	"os"
	"path/filepath"
)

// DefaultStateDir returns $WEB_HOME, or ~/.web.
func DefaultStateDir() string {
	if dir := os.Getenv("WEB_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".web"
	}
	return filepath.Join(home, ".web")
}

// Paths resolves files inside a state directory.
type Paths struct {
	StateDir string
}

// NewPaths returns Paths rooted at dir, or the default state dir when empty.
func NewPaths(dir string) Paths {
	if dir == "" {
		dir = DefaultStateDir()
	}
	return Paths{StateDir: dir}
}

func (p Paths) IdentityPath() string { return filepath.Join(p.StateDir, "config.json") }
func (p Paths) SettingsPath() string { return filepath.Join(p.StateDir, "settings.yaml") }
func (p Paths) SoulPath() string     { return filepath.Join(p.StateDir, "SOUL.md") }
func (p Paths) LogsDir() string      { return filepath.Join(p.StateDir, "logs") }
func (p Paths) UsagePath() string    { return filepath.Join(p.StateDir, "usage.json") }

// ConstitutionPath is the constitution in the working directory, falling back
// to the state directory.
func (p Paths) ConstitutionPath() string {
	if _, err := os.Stat("constitution.md"); err == nil {
		if abs, err := filepath.Abs("constitution.md"); err == nil {
			return abs
		}
	}
	return filepath.Join(p.StateDir, "constitution.md")
}

// DatabasePath resolves the configured database path against the state dir.
func (p Paths) DatabasePath(cfg *Config) string {
	return p.resolve(cfg.Storage.DatabasePath)
}

// ChildrenDir is where child identities are provisioned.
func (p Paths) ChildrenDir(cfg *Config) string {
	if cfg.Replication.ChildrenDir != "" {
		return p.resolve(cfg.Replication.ChildrenDir)
	}
	return filepath.Join(filepath.Dir(filepath.Clean(p.StateDir)), ".web-children")
}

func (p Paths) resolve(path string) string {
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.StateDir, path)
}
