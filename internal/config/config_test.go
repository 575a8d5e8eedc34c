package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Coordinator.ID != "coordinator" {
		t.Errorf("Coordinator.ID = %q, want coordinator", cfg.Coordinator.ID)
	}
	if cfg.Coordinator.WaitTimeout() != time.Minute {
		t.Errorf("WaitTimeout() = %v, want 1m", cfg.Coordinator.WaitTimeout())
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Retry.MaxRetries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelay() != time.Second {
		t.Errorf("BaseDelay() = %v, want 1s", cfg.Retry.BaseDelay())
	}
	if cfg.Retry.MaxDelay() != 30*time.Second {
		t.Errorf("MaxDelay() = %v, want 30s", cfg.Retry.MaxDelay())
	}
	if cfg.Transport.Kind != "file" {
		t.Errorf("Transport.Kind = %q, want file", cfg.Transport.Kind)
	}
	if cfg.Store.Kind != "memory" {
		t.Errorf("Store.Kind = %q, want memory", cfg.Store.Kind)
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config must validate, got %v", errs)
	}
}

func TestSetDefaultsAndLoad(t *testing.T) {
	resetViper(t)

	SetDefaults()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.Name != "colony" {
		t.Errorf("Queue.Name = %q, want colony", cfg.Queue.Name)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
retry:
  max_retries: 5
  base_delay_ms: 200
transport:
  kind: chan
domains:
  - id: backend
    default_role: engineer
    roles:
      - id: engineer
        skills: ["api", "database"]
        can_lead: true
    rules:
      - keywords: ["deploy"]
        target_roles: ["engineer"]
        priority: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	SetDefaults()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("Retry.MaxRetries = %d, want 5", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelay() != 200*time.Millisecond {
		t.Errorf("BaseDelay() = %v, want 200ms", cfg.Retry.BaseDelay())
	}
	if cfg.Transport.Kind != "chan" {
		t.Errorf("Transport.Kind = %q, want chan", cfg.Transport.Kind)
	}
	// Unset values keep defaults.
	if cfg.Retry.Multiplier != 2.0 {
		t.Errorf("Retry.Multiplier = %v, want default 2.0", cfg.Retry.Multiplier)
	}

	domains := cfg.DomainConfigs()
	if len(domains) != 1 {
		t.Fatalf("DomainConfigs() = %d domains, want 1", len(domains))
	}
	d := domains[0]
	if d.ID != "backend" || d.DefaultRole != "engineer" {
		t.Errorf("domain = %+v", d)
	}
	if len(d.Roles) != 1 || len(d.Roles[0].Skills) != 2 {
		t.Errorf("roles = %+v", d.Roles)
	}
	if len(d.Rules) != 1 || d.Rules[0].Priority != 10 {
		t.Errorf("rules = %+v", d.Rules)
	}
}

func TestResolveDir(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"empty uses default", "", filepath.Join("/base", ".colony")},
		{"relative resolves against base", "sessions", filepath.Join("/base", "sessions")},
		{"absolute kept", "/var/colony", "/var/colony"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := TransportConfig{Dir: tt.dir}
			if got := c.ResolveDir("/base"); got != tt.want {
				t.Errorf("ResolveDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetFallsBackToDefaults(t *testing.T) {
	resetViper(t)

	// No defaults registered and nothing loaded: validation fails, Get
	// falls back.
	cfg := Get()
	if cfg.Queue.Name != "colony" {
		t.Errorf("Queue.Name = %q, want default colony", cfg.Queue.Name)
	}
}
