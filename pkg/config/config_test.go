package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadOverlaysRecursively(t *testing.T) {
	dir := t.TempDir()
	defaults := writeFile(t, dir, "defaults.yaml", `
database:
  host: localhost
  port: 5432
ports:
  websocket: 8300
`)
	site := writeFile(t, dir, "site.yaml", `
database:
  host: db.internal
security:
  strict: false
`)

	cfg, err := Load(defaults, site)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if got := cfg.String("database.host", ""); got != "db.internal" {
		t.Errorf("overlay should win: got %q", got)
	}
	if got := cfg.Int("database.port", 0); got != 5432 {
		t.Errorf("sibling keys should survive the overlay: got %d", got)
	}
	if got := cfg.Int("ports.websocket", 0); got != 8300 {
		t.Errorf("untouched sections should survive: got %d", got)
	}
	if cfg.Bool("security.strict", true) {
		t.Errorf("overlay-only keys should appear")
	}
}

func TestMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should be skipped, got %v", err)
	}
	if got := cfg.String("anything", "fallback"); got != "fallback" {
		t.Errorf("expected default, got %q", got)
	}
}

func TestDottedAccess(t *testing.T) {
	cfg := New()
	cfg.Set("a.b.c", 7)

	if got := cfg.Int("a.b.c", 0); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
	if got := cfg.Get("a.b.missing"); got != nil {
		t.Errorf("missing leaf should be nil, got %v", got)
	}
	if got := cfg.Get("a.b.c.too.deep"); got != nil {
		t.Errorf("indexing past a scalar should be nil, got %v", got)
	}
}

func TestDurationInterpretsSeconds(t *testing.T) {
	cfg := New()
	cfg.Set("database.pool_recycle", 3600)

	if got := cfg.Duration("database.pool_recycle", 0); got != time.Hour {
		t.Errorf("got %v, want 1h", got)
	}
}

func TestStringSliceAcceptsScalar(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "cfg.yaml", `
services:
  disabled: "*"
  enabled:
    - api
    - websocket
`)
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if got := cfg.StringSlice("services.disabled"); len(got) != 1 || got[0] != "*" {
		t.Errorf(`scalar "*" should become a one-element slice, got %v`, got)
	}
	if got := cfg.StringSlice("services.enabled"); len(got) != 2 || got[0] != "api" {
		t.Errorf("list should pass through, got %v", got)
	}
	if got := cfg.StringSlice("services.missing"); got != nil {
		t.Errorf("missing key should be nil, got %v", got)
	}
}
