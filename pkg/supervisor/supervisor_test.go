package supervisor

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFragment(t *testing.T, root, service, body string) {
	t.Helper()
	dir := filepath.Join(root, service)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create service dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FragmentFile), []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write fragment: %v", err)
	}
}

func TestDiscoverLoadsFragments(t *testing.T) {
	root := t.TempDir()
	writeFragment(t, root, "api", `
name: api
command: baselayer-api
processes: 4
auto_restart: true
`)
	writeFragment(t, root, "websocket", `
name: websocket
command: baselayer-websocket
`)
	// Directories without a fragment are skipped
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	services, err := Discover([]string{root})
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}
	if services[0].Name != "api" || services[1].Name != "websocket" {
		t.Errorf("services should sort by name: %+v", services)
	}
	if services[0].Processes != 4 || !services[0].AutoRestart {
		t.Errorf("fragment fields not carried: %+v", services[0])
	}
	if services[1].Processes != 1 {
		t.Errorf("process count should default to 1, got %d", services[1].Processes)
	}
}

func TestDiscoverMissingRootIsEmpty(t *testing.T) {
	services, err := Discover([]string{filepath.Join(t.TempDir(), "absent")})
	if err != nil {
		t.Fatalf("missing root should be skipped, got %v", err)
	}
	if len(services) != 0 {
		t.Errorf("expected no services, got %d", len(services))
	}
}

func TestDiscoverRejectsDuplicateNames(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeFragment(t, rootA, "api", "name: api\ncommand: a\n")
	writeFragment(t, rootB, "api-v2", "name: api\ncommand: b\n")

	if _, err := Discover([]string{rootA, rootB}); err == nil {
		t.Errorf("expected duplicate service name to error")
	}
}

func TestDiscoverRejectsIncompleteFragments(t *testing.T) {
	root := t.TempDir()
	writeFragment(t, root, "nameless", "command: run\n")
	if _, err := Discover([]string{root}); err == nil {
		t.Errorf("expected fragment without a name to error")
	}

	root = t.TempDir()
	writeFragment(t, root, "commandless", "name: idle\n")
	if _, err := Discover([]string{root}); err == nil {
		t.Errorf("expected fragment without a command to error")
	}
}

func TestFilterSemantics(t *testing.T) {
	services := []Service{{Name: "api"}, {Name: "proxy"}, {Name: "websocket"}}

	kept, err := Filter(services, []string{"proxy"}, nil)
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if len(kept) != 2 || kept[0].Name != "api" || kept[1].Name != "websocket" {
		t.Errorf("disabled service should be removed: %+v", kept)
	}

	kept, err = Filter(services, []string{All}, []string{"api"})
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if len(kept) != 1 || kept[0].Name != "api" {
		t.Errorf("enabled list should re-add under a wildcard disable: %+v", kept)
	}

	kept, err = Filter(services, nil, nil)
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if len(kept) != 3 {
		t.Errorf("empty lists should keep everything: %+v", kept)
	}
}

func TestFilterRejectsContradictions(t *testing.T) {
	services := []Service{{Name: "api"}}

	if _, err := Filter(services, []string{"api"}, []string{"api"}); err == nil {
		t.Errorf("service named in both lists should error")
	}
	if _, err := Filter(services, []string{All}, []string{All}); err == nil {
		t.Errorf("wildcard in both lists should error")
	}
}
