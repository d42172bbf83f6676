package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
engine: hashicorp
interface: eth0
resolve_timeout: 3s
browse_interval: 1m30s
log_level: debug
protocol_log: /tmp/bridge.nlog
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Engine != EngineHashicorp {
		t.Errorf("Engine = %q", cfg.Engine)
	}
	if cfg.Interface != "eth0" {
		t.Errorf("Interface = %q", cfg.Interface)
	}
	if cfg.ResolveTimeout.Std() != 3*time.Second {
		t.Errorf("ResolveTimeout = %v", cfg.ResolveTimeout)
	}
	if cfg.BrowseInterval.Std() != 90*time.Second {
		t.Errorf("BrowseInterval = %v", cfg.BrowseInterval)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v", cfg.SlogLevel())
	}
	// Untouched fields keep their defaults.
	if cfg.Domain != "local" || cfg.TTL.Std() != 120*time.Second {
		t.Errorf("defaults lost: domain=%q ttl=%v", cfg.Domain, cfg.TTL)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown engine", "engine: bonjour", "engine"},
		{"empty domain", `domain: ""`, "domain"},
		{"zero resolve timeout", "resolve_timeout: 0s", "resolve_timeout"},
		{"negative buffer", "event_buffer: -1", "event_buffer"},
		{"bad level", "log_level: loud", "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			var ce *Error
			if !errors.As(err, &ce) {
				t.Fatalf("Parse error = %v, want *Error", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse([]byte("resolve_timeout: soon")); err == nil {
		t.Error("expected error for malformed duration")
	}
	if _, err := Parse([]byte("engine: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	if err := os.WriteFile(path, []byte("engine: zeroconf\nttl: 60s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TTL.Std() != time.Minute {
		t.Errorf("TTL = %v", cfg.TTL)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("engine: nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = Load(bad)
	if err == nil || !strings.HasPrefix(err.Error(), bad) {
		t.Errorf("Load error = %v, want prefix %q", err, bad)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDurationMarshal(t *testing.T) {
	out, err := yaml.Marshal(Default())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(out), "resolve_timeout: 10s") {
		t.Errorf("marshaled config:\n%s", out)
	}
}
