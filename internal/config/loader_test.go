package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFrom_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Orchestrator.MaxReplans != 3 {
		t.Errorf("expected max_replans=3, got %d", cfg.Orchestrator.MaxReplans)
	}
	if cfg.Orchestrator.MinConfidence != 0.7 {
		t.Errorf("expected min_confidence=0.7, got %f", cfg.Orchestrator.MinConfidence)
	}
	if len(cfg.Registry.Workers) != 3 {
		t.Errorf("expected 3 default workers, got %d", len(cfg.Registry.Workers))
	}
}

func TestLoadFrom_YAMLOverridesDefaults(t *testing.T) {
	yaml := `
server:
  port: "9090"
orchestrator:
  max_replans: 2
  routing_threshold: 0.8
registry:
  mode: dynamic
  transport: nats
`
	path := filepath.Join(t.TempDir(), "percept.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Orchestrator.MaxReplans != 2 {
		t.Errorf("expected max_replans=2, got %d", cfg.Orchestrator.MaxReplans)
	}
	if cfg.Orchestrator.RoutingThreshold != 0.8 {
		t.Errorf("expected routing_threshold=0.8, got %f", cfg.Orchestrator.RoutingThreshold)
	}
	if cfg.Registry.Mode != "dynamic" {
		t.Errorf("expected dynamic registry mode, got %s", cfg.Registry.Mode)
	}
	// Untouched values keep defaults.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default nats url, got %s", cfg.NATS.URL)
	}
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	yaml := "server:\n  port: \"9090\"\n"
	path := filepath.Join(t.TempDir(), "percept.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PERCEPT_PORT", "7070")
	t.Setenv("PERCEPT_WORKER_TIMEOUT", "45s")
	t.Setenv("PERCEPT_MIN_CONFIDENCE", "0.85")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected env port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Orchestrator.WorkerTimeout != 45*time.Second {
		t.Errorf("expected worker_timeout=45s, got %s", cfg.Orchestrator.WorkerTimeout)
	}
	if cfg.Orchestrator.MinConfidence != 0.85 {
		t.Errorf("expected min_confidence=0.85, got %f", cfg.Orchestrator.MinConfidence)
	}
}

func TestLoadFrom_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad registry mode", "registry:\n  mode: magic\n"},
		{"bad transport", "registry:\n  transport: pigeon\n"},
		{"zero replans", "orchestrator:\n  max_replans: 0\n"},
		{"confidence out of range", "orchestrator:\n  min_confidence: 1.5\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "percept.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFrom(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
