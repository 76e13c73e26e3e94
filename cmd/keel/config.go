package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk keel.yaml configuration. All relative paths resolve
// against the directory containing the file.
type Config struct {
	// Roots maps package names to source directories, e.g. app: ./src/app.
	Roots map[string]string `yaml:"roots"`

	// Strong enables strict typing: unresolved references are errors and
	// ambiguous imported names stay unresolved.
	Strong bool `yaml:"strong"`

	Store StoreConfig `yaml:"store"`

	// Rules lists Risor lint scripts run against every analyzed unit.
	Rules []string `yaml:"rules"`

	// dir is where the config file lives; the anchor for relative paths.
	dir string
}

// StoreConfig selects the byte-store backend.
type StoreConfig struct {
	// Backend is memory, sqlite, or badger. Memory stores survive nothing;
	// the others persist summaries and diagnostics across runs.
	Backend string `yaml:"backend"`
	// Path is the database file (sqlite) or directory (badger).
	Path string `yaml:"path"`
}

// DefaultConfig returns the configuration used when no keel.yaml exists:
// a single root named after the working directory, lenient mode, and an
// in-memory store.
func DefaultConfig(dir string) *Config {
	return &Config{
		Roots: map[string]string{filepath.Base(dir): dir},
		Store: StoreConfig{Backend: "memory"},
		dir:   dir,
	}
}

// LoadConfig reads and validates a keel.yaml.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg, err := parseConfig(data, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte, dir string) (*Config, error) {
	cfg := &Config{dir: dir}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("no roots configured")
	}
	for name, root := range cfg.Roots {
		if !filepath.IsAbs(root) {
			cfg.Roots[name] = filepath.Join(dir, root)
		}
	}
	switch cfg.Store.Backend {
	case "":
		cfg.Store.Backend = "memory"
	case "memory":
	case "sqlite", "badger":
		if cfg.Store.Path == "" {
			return nil, fmt.Errorf("store backend %q needs a path", cfg.Store.Backend)
		}
		if !filepath.IsAbs(cfg.Store.Path) {
			cfg.Store.Path = filepath.Join(dir, cfg.Store.Path)
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return cfg, nil
}
