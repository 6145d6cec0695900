package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	doc := `
languages: [java, python]
ignore:
  - "vendor/"
workers: 8
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SourceRoot != dir {
		t.Errorf("SourceRoot = %q, want %q", cfg.SourceRoot, dir)
	}
	if want := filepath.Join(dir, ".codegraph", "graph.db"); cfg.GraphPath != want {
		t.Errorf("GraphPath = %q, want %q", cfg.GraphPath, want)
	}
	if len(cfg.Languages) != 2 || cfg.Languages[0] != "java" {
		t.Errorf("Languages = %v", cfg.Languages)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if cfg.DebounceMs != 500 {
		t.Errorf("DebounceMs = %d, want default 500", cfg.DebounceMs)
	}
}

func TestLoadRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	doc := `
sourceRoot: src
graphPath: out/graph.db
cachePath: out/digests.db
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "src"); cfg.SourceRoot != want {
		t.Errorf("SourceRoot = %q, want %q", cfg.SourceRoot, want)
	}
	if want := filepath.Join(dir, "out", "graph.db"); cfg.GraphPath != want {
		t.Errorf("GraphPath = %q, want %q", cfg.GraphPath, want)
	}
	if want := filepath.Join(dir, "out", "digests.db"); cfg.CachePath != want {
		t.Errorf("CachePath = %q, want %q", cfg.CachePath, want)
	}
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SourceRoot != dir {
		t.Errorf("SourceRoot = %q", cfg.SourceRoot)
	}
	if cfg.GraphPath == "" || cfg.CachePath == "" {
		t.Error("defaults not filled")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default(dir)
	cfg.Languages = []string{"javascript"}

	path := filepath.Join(dir, "sub", DefaultFileName)
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.SourceRoot != cfg.SourceRoot || loaded.GraphPath != cfg.GraphPath {
		t.Errorf("round trip changed paths: %+v", loaded)
	}
	if len(loaded.Languages) != 1 || loaded.Languages[0] != "javascript" {
		t.Errorf("Languages = %v", loaded.Languages)
	}
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	if err := os.WriteFile(path, []byte(":\n  - ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
