// Package config loads the project configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the source root when no explicit
// config path is given.
const DefaultFileName = "codegraph.yaml"

// Config holds the index configuration.
type Config struct {
	// SourceRoot is the directory tree to index. Defaults to the
	// directory containing the config file.
	SourceRoot string `yaml:"sourceRoot"`
	// GraphPath is the persisted graph file. Defaults to
	// .codegraph/graph.db under the source root.
	GraphPath string `yaml:"graphPath"`
	// CachePath is the digest cache file. Empty disables the cache.
	CachePath string `yaml:"cachePath"`
	// Languages restricts the registered frontends. Empty means all.
	Languages []string `yaml:"languages"`
	// IgnorePatterns are gitignore-style patterns excluded from the
	// manifest walk, in addition to the built-in defaults.
	IgnorePatterns []string `yaml:"ignore"`
	// Workers bounds the hashing pool. Zero picks the default.
	Workers int `yaml:"workers"`
	// StagingDir overrides the temp location for staged build deltas.
	StagingDir string `yaml:"stagingDir"`
	// DebounceMs is the watch-mode debounce interval in milliseconds.
	DebounceMs int `yaml:"debounceMs"`
}

// Default returns the configuration used when no file exists.
func Default(sourceRoot string) *Config {
	return &Config{
		SourceRoot: sourceRoot,
		GraphPath:  filepath.Join(sourceRoot, ".codegraph", "graph.db"),
		CachePath:  filepath.Join(sourceRoot, ".codegraph", "digests.db"),
		DebounceMs: 500,
	}
}

// Load reads a config file and fills defaults relative to its
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	base := filepath.Dir(path)
	if cfg.SourceRoot == "" {
		cfg.SourceRoot = base
	} else if !filepath.IsAbs(cfg.SourceRoot) {
		cfg.SourceRoot = filepath.Join(base, cfg.SourceRoot)
	}
	if cfg.GraphPath == "" {
		cfg.GraphPath = filepath.Join(cfg.SourceRoot, ".codegraph", "graph.db")
	} else if !filepath.IsAbs(cfg.GraphPath) {
		cfg.GraphPath = filepath.Join(base, cfg.GraphPath)
	}
	if cfg.CachePath != "" && !filepath.IsAbs(cfg.CachePath) {
		cfg.CachePath = filepath.Join(base, cfg.CachePath)
	}
	if cfg.DebounceMs <= 0 {
		cfg.DebounceMs = 500
	}
	return &cfg, nil
}

// LoadOrDefault loads DefaultFileName from sourceRoot, or returns the
// defaults when the file does not exist.
func LoadOrDefault(sourceRoot string) (*Config, error) {
	path := filepath.Join(sourceRoot, DefaultFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(sourceRoot), nil
	}
	return Load(path)
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
