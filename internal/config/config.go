// Package config manages l4lbd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete l4lbd configuration.
type Config struct {
	Admin    AdminConfig     `koanf:"admin"`
	Metrics  MetricsConfig   `koanf:"metrics"`
	Log      LogConfig       `koanf:"log"`
	LB       LBConfig        `koanf:"lb"`
	Services []ServiceConfig `koanf:"services"`
}

// AdminConfig holds the administrative control-socket configuration.
type AdminConfig struct {
	// SocketPath is the filesystem path of the admin Unix socket.
	SocketPath string `koanf:"socket_path"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// LBConfig holds the default load-balancing parameters.
// A service entry in the configuration file can override them; services
// added through the admin socket do not consult them.
type LBConfig struct {
	// Interfaces lists the NIC names the daemon should open worker loops on.
	Interfaces []string `koanf:"interfaces"`

	// DefaultTimeout is the default per-service session idle timeout,
	// used when a service declaration omits one (§2 Session.timeout).
	DefaultTimeout time.Duration `koanf:"default_timeout"`

	// DefaultDiscipline is the scheduling discipline code (rr, w, r, l, h)
	// applied to a service that declares none.
	DefaultDiscipline string `koanf:"default_discipline"`
}

// ServiceConfig describes a declarative virtual service from the
// configuration file. Each entry creates a Service (and its listed
// Servers) on daemon startup.
type ServiceConfig struct {
	// Public is the VIP address:port the service listens on.
	Public string `koanf:"public"`

	// Protocol is "tcp" or "udp".
	Protocol string `koanf:"protocol"`

	// NIC is the interface the VIP is reachable on.
	NIC string `koanf:"nic"`

	// Discipline is the scheduling discipline code: rr, w, r, l, h.
	Discipline string `koanf:"discipline"`

	// PrivateInterfaces lists the NICs backend traffic may egress/ingress on.
	PrivateInterfaces []string `koanf:"private_interfaces"`

	// Timeout overrides LBConfig.DefaultTimeout for this service's sessions.
	Timeout time.Duration `koanf:"timeout"`

	// Servers lists the backends registered to this service at startup.
	Servers []ServerConfig `koanf:"servers"`
}

// ServerConfig describes a declarative backend server.
type ServerConfig struct {
	// Address is the backend's address:port.
	Address string `koanf:"address"`

	// NIC is the interface the backend is reachable on.
	NIC string `koanf:"nic"`

	// Weight is the scheduling weight (used by the weighted round-robin
	// discipline; ignored by the others).
	Weight int `koanf:"weight"`

	// Mode is the forwarding mode: "nat", "dnat", or "dr".
	Mode string `koanf:"mode"`
}

// ServiceKey returns a unique identifier for the service based on
// (public, protocol, nic). Used for diffing declarations across reloads.
func (sc ServiceConfig) ServiceKey() string {
	return sc.Public + "|" + sc.Protocol + "|" + sc.NIC
}

// PublicAddrPort parses Public as a netip.AddrPort.
func (sc ServiceConfig) PublicAddrPort() (netip.AddrPort, error) {
	if sc.Public == "" {
		return netip.AddrPort{}, fmt.Errorf("service public: %w", ErrInvalidServicePublic)
	}
	ap, err := netip.ParseAddrPort(sc.Public)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse service public %q: %w", sc.Public, err)
	}
	return ap, nil
}

// AddrPort parses Address as a netip.AddrPort.
func (rc ServerConfig) AddrPort() (netip.AddrPort, error) {
	if rc.Address == "" {
		return netip.AddrPort{}, fmt.Errorf("server address: %w", ErrInvalidServerAddress)
	}
	ap, err := netip.ParseAddrPort(rc.Address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse server address %q: %w", rc.Address, err)
	}
	return ap, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// DefaultTimeout of 30s matches the session idle timeout a flow falls
// back to when a service declares none (§2).
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			SocketPath: "/run/l4lbd/admin.sock",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		LB: LBConfig{
			DefaultTimeout:    30 * time.Second,
			DefaultDiscipline: "rr",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for l4lbd configuration.
// Variables are named L4LBD_<section>_<key>, e.g., L4LBD_ADMIN_SOCKET_PATH.
const envPrefix = "L4LBD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (L4LBD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	L4LBD_ADMIN_SOCKET_PATH -> admin.socket_path
//	L4LBD_METRICS_ADDR      -> metrics.addr
//	L4LBD_METRICS_PATH      -> metrics.path
//	L4LBD_LOG_LEVEL         -> log.level
//	L4LBD_LOG_FORMAT        -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// L4LBD_ADMIN_SOCKET_PATH -> admin.socket_path (strip prefix, lowercase, first _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms L4LBD_ADMIN_SOCKET_PATH -> admin.socket_path.
// Strips the L4LBD_ prefix, lowercases, and replaces the first _ (the
// section separator) with . so multi-word keys keep their underscores.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.socket_path":   defaults.Admin.SocketPath,
		"metrics.addr":        defaults.Metrics.Addr,
		"metrics.path":        defaults.Metrics.Path,
		"log.level":           defaults.Log.Level,
		"log.format":          defaults.Log.Format,
		"lb.default_timeout":  defaults.LB.DefaultTimeout.String(),
		"lb.default_discipline": defaults.LB.DefaultDiscipline,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminSocketPath indicates the admin socket path is empty.
	ErrEmptyAdminSocketPath = errors.New("admin.socket_path must not be empty")

	// ErrInvalidServicePublic indicates a service has an invalid public endpoint.
	ErrInvalidServicePublic = errors.New("service public address is invalid")

	// ErrInvalidServerAddress indicates a server has an invalid address.
	ErrInvalidServerAddress = errors.New("server address is invalid")

	// ErrInvalidProtocol indicates a service's protocol is neither tcp nor udp.
	ErrInvalidProtocol = errors.New("service protocol must be tcp or udp")

	// ErrInvalidDiscipline indicates a service's discipline code is unrecognized.
	ErrInvalidDiscipline = errors.New("service discipline must be one of rr, w, r, l, h")

	// ErrInvalidMode indicates a server's forwarding mode is unrecognized.
	ErrInvalidMode = errors.New("server mode must be nat, dnat, or dr")

	// ErrDuplicateServiceKey indicates two services share the same (public, protocol, nic) key.
	ErrDuplicateServiceKey = errors.New("duplicate service key")
)

// ValidProtocols lists the recognized protocol strings.
var ValidProtocols = map[string]bool{
	"tcp": true,
	"udp": true,
}

// ValidDisciplines lists the recognized discipline codes.
var ValidDisciplines = map[string]bool{
	"rr": true,
	"w":  true,
	"r":  true,
	"l":  true,
	"h":  true,
}

// ValidModes lists the recognized forwarding mode names.
var ValidModes = map[string]bool{
	"nat":  true,
	"dnat": true,
	"dr":   true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.SocketPath == "" {
		return ErrEmptyAdminSocketPath
	}

	if err := validateServices(cfg.Services); err != nil {
		return err
	}

	return nil
}

// validateServices checks each declarative service entry for correctness.
func validateServices(services []ServiceConfig) error {
	seen := make(map[string]struct{}, len(services))

	for i, sc := range services {
		if _, err := sc.PublicAddrPort(); err != nil {
			return fmt.Errorf("services[%d]: %w: %w", i, ErrInvalidServicePublic, err)
		}

		if sc.Protocol != "" && !ValidProtocols[sc.Protocol] {
			return fmt.Errorf("services[%d] protocol %q: %w", i, sc.Protocol, ErrInvalidProtocol)
		}

		if sc.Discipline != "" && !ValidDisciplines[sc.Discipline] {
			return fmt.Errorf("services[%d] discipline %q: %w", i, sc.Discipline, ErrInvalidDiscipline)
		}

		for j, rc := range sc.Servers {
			if _, err := rc.AddrPort(); err != nil {
				return fmt.Errorf("services[%d].servers[%d]: %w: %w", i, j, ErrInvalidServerAddress, err)
			}
			if rc.Mode != "" && !ValidModes[rc.Mode] {
				return fmt.Errorf("services[%d].servers[%d] mode %q: %w", i, j, rc.Mode, ErrInvalidMode)
			}
		}

		key := sc.ServiceKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("services[%d] key %q: %w", i, key, ErrDuplicateServiceKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
