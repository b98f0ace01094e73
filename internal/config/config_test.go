package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ardenflow/l4lb/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Admin.SocketPath != "/run/l4lbd/admin.sock" {
		t.Errorf("Admin.SocketPath = %q, want %q", cfg.Admin.SocketPath, "/run/l4lbd/admin.sock")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.LB.DefaultTimeout != 30*time.Second {
		t.Errorf("LB.DefaultTimeout = %v, want %v", cfg.LB.DefaultTimeout, 30*time.Second)
	}

	if cfg.LB.DefaultDiscipline != "rr" {
		t.Errorf("LB.DefaultDiscipline = %q, want %q", cfg.LB.DefaultDiscipline, "rr")
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
admin:
  socket_path: "/tmp/l4lb.sock"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
lb:
  default_timeout: "15s"
  default_discipline: "h"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.SocketPath != "/tmp/l4lb.sock" {
		t.Errorf("Admin.SocketPath = %q, want %q", cfg.Admin.SocketPath, "/tmp/l4lb.sock")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.LB.DefaultTimeout != 15*time.Second {
		t.Errorf("LB.DefaultTimeout = %v, want %v", cfg.LB.DefaultTimeout, 15*time.Second)
	}

	if cfg.LB.DefaultDiscipline != "h" {
		t.Errorf("LB.DefaultDiscipline = %q, want %q", cfg.LB.DefaultDiscipline, "h")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override admin.socket_path and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
admin:
  socket_path: "/tmp/other.sock"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Admin.SocketPath != "/tmp/other.sock" {
		t.Errorf("Admin.SocketPath = %q, want %q", cfg.Admin.SocketPath, "/tmp/other.sock")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.LB.DefaultTimeout != 30*time.Second {
		t.Errorf("LB.DefaultTimeout = %v, want default %v", cfg.LB.DefaultTimeout, 30*time.Second)
	}

	if cfg.LB.DefaultDiscipline != "rr" {
		t.Errorf("LB.DefaultDiscipline = %q, want default %q", cfg.LB.DefaultDiscipline, "rr")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty admin socket path",
			modify: func(cfg *config.Config) {
				cfg.Admin.SocketPath = ""
			},
			wantErr: config.ErrEmptyAdminSocketPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// -------------------------------------------------------------------------
// Service Config Tests
// -------------------------------------------------------------------------

func TestLoadWithServices(t *testing.T) {
	t.Parallel()

	yamlContent := `
admin:
  socket_path: "/tmp/l4lb.sock"
services:
  - public: "10.0.0.1:80"
    protocol: tcp
    nic: eth0
    discipline: rr
    private_interfaces: [eth1]
    timeout: "45s"
    servers:
      - address: "192.168.0.2:8080"
        nic: eth1
        weight: 2
        mode: nat
  - public: "10.0.0.1:53"
    protocol: udp
    nic: eth0
    discipline: h
    servers:
      - address: "192.168.0.3:53"
        nic: eth1
        weight: 1
        mode: dr
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if len(cfg.Services) != 2 {
		t.Fatalf("Services count = %d, want 2", len(cfg.Services))
	}

	// Verify first service.
	s1 := cfg.Services[0]
	if s1.Public != "10.0.0.1:80" {
		t.Errorf("Services[0].Public = %q, want %q", s1.Public, "10.0.0.1:80")
	}
	if s1.Protocol != "tcp" {
		t.Errorf("Services[0].Protocol = %q, want %q", s1.Protocol, "tcp")
	}
	if s1.NIC != "eth0" {
		t.Errorf("Services[0].NIC = %q, want %q", s1.NIC, "eth0")
	}
	if s1.Timeout != 45*time.Second {
		t.Errorf("Services[0].Timeout = %v, want %v", s1.Timeout, 45*time.Second)
	}
	if len(s1.Servers) != 1 {
		t.Fatalf("Services[0].Servers count = %d, want 1", len(s1.Servers))
	}
	if s1.Servers[0].Weight != 2 {
		t.Errorf("Services[0].Servers[0].Weight = %d, want 2", s1.Servers[0].Weight)
	}
	if s1.Servers[0].Mode != "nat" {
		t.Errorf("Services[0].Servers[0].Mode = %q, want nat", s1.Servers[0].Mode)
	}

	// Verify second service.
	s2 := cfg.Services[1]
	if s2.Protocol != "udp" {
		t.Errorf("Services[1].Protocol = %q, want %q", s2.Protocol, "udp")
	}
	if s2.Discipline != "h" {
		t.Errorf("Services[1].Discipline = %q, want %q", s2.Discipline, "h")
	}

	// Service keys should be distinct.
	if s1.ServiceKey() == s2.ServiceKey() {
		t.Error("Services[0] and Services[1] have the same key, expected different")
	}
}

func TestValidateServiceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty service public",
			modify: func(cfg *config.Config) {
				cfg.Services = []config.ServiceConfig{
					{Public: "", Protocol: "tcp"},
				}
			},
			wantErr: config.ErrInvalidServicePublic,
		},
		{
			name: "invalid service public",
			modify: func(cfg *config.Config) {
				cfg.Services = []config.ServiceConfig{
					{Public: "not-an-endpoint", Protocol: "tcp"},
				}
			},
			wantErr: config.ErrInvalidServicePublic,
		},
		{
			name: "invalid protocol",
			modify: func(cfg *config.Config) {
				cfg.Services = []config.ServiceConfig{
					{Public: "10.0.0.1:80", Protocol: "bogus"},
				}
			},
			wantErr: config.ErrInvalidProtocol,
		},
		{
			name: "invalid discipline",
			modify: func(cfg *config.Config) {
				cfg.Services = []config.ServiceConfig{
					{Public: "10.0.0.1:80", Protocol: "tcp", Discipline: "bogus"},
				}
			},
			wantErr: config.ErrInvalidDiscipline,
		},
		{
			name: "invalid server mode",
			modify: func(cfg *config.Config) {
				cfg.Services = []config.ServiceConfig{
					{
						Public: "10.0.0.1:80", Protocol: "tcp",
						Servers: []config.ServerConfig{{Address: "192.168.0.2:8080", Mode: "bogus"}},
					},
				}
			},
			wantErr: config.ErrInvalidMode,
		},
		{
			name: "duplicate service keys",
			modify: func(cfg *config.Config) {
				cfg.Services = []config.ServiceConfig{
					{Public: "10.0.0.1:80", Protocol: "tcp", NIC: "eth0"},
					{Public: "10.0.0.1:80", Protocol: "tcp", NIC: "eth0"},
				}
			},
			wantErr: config.ErrDuplicateServiceKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServiceValidProtocols(t *testing.T) {
	t.Parallel()

	for _, proto := range []string{"tcp", "udp", ""} {
		cfg := config.DefaultConfig()
		cfg.Services = []config.ServiceConfig{
			{Public: "10.0.0.1:80", Protocol: proto},
		}

		if err := config.Validate(cfg); err != nil {
			t.Errorf("Validate() with protocol %q returned error: %v", proto, err)
		}
	}
}

func TestServiceConfigKey(t *testing.T) {
	t.Parallel()

	sc := config.ServiceConfig{
		Public:   "10.0.0.1:80",
		Protocol: "tcp",
		NIC:      "eth0",
	}

	want := "10.0.0.1:80|tcp|eth0"
	if got := sc.ServiceKey(); got != want {
		t.Errorf("ServiceKey() = %q, want %q", got, want)
	}
}

func TestServiceConfigPublicAddrPort(t *testing.T) {
	t.Parallel()

	sc := config.ServiceConfig{Public: "10.0.0.1:80"}
	ap, err := sc.PublicAddrPort()
	if err != nil {
		t.Fatalf("PublicAddrPort() error: %v", err)
	}
	if ap.Port() != 80 {
		t.Errorf("PublicAddrPort() port = %d, want 80", ap.Port())
	}
}

func TestServerConfigAddrPort(t *testing.T) {
	t.Parallel()

	rc := config.ServerConfig{Address: "192.168.0.2:8080"}
	ap, err := rc.AddrPort()
	if err != nil {
		t.Fatalf("AddrPort() error: %v", err)
	}
	if ap.Addr().String() != "192.168.0.2" {
		t.Errorf("AddrPort() = %s, want 192.168.0.2", ap.Addr())
	}
}

func TestServerConfigAddrPortEmpty(t *testing.T) {
	t.Parallel()

	rc := config.ServerConfig{Address: ""}
	if _, err := rc.AddrPort(); !errors.Is(err, config.ErrInvalidServerAddress) {
		t.Errorf("AddrPort() error = %v, want ErrInvalidServerAddress", err)
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
admin:
  socket_path: "/tmp/l4lb.sock"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	// Set env overrides.
	t.Setenv("L4LBD_ADMIN_SOCKET_PATH", "/tmp/env.sock")
	t.Setenv("L4LBD_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.SocketPath != "/tmp/env.sock" {
		t.Errorf("Admin.SocketPath = %q, want %q (from env)", cfg.Admin.SocketPath, "/tmp/env.sock")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
admin:
  socket_path: "/tmp/l4lb.sock"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("L4LBD_METRICS_ADDR", ":9200")
	t.Setenv("L4LBD_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "l4lbd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
