// Package config loads and validates the colony configuration via viper.
// Defaults come from SetDefaults, overridden by the config file and COLONY_*
// environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/colonycore/colony/internal/domain"
)

// Config represents the complete colony configuration.
type Config struct {
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Store       StoreConfig       `mapstructure:"store"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Domains     []DomainConfig    `mapstructure:"domains"`
}

// CoordinatorConfig controls the scheduler.
type CoordinatorConfig struct {
	// ID is the coordinator's transport identity
	ID string `mapstructure:"id"`
	// WaitTimeoutSeconds bounds result waits (default: 60)
	WaitTimeoutSeconds int `mapstructure:"wait_timeout_seconds"`
	// HeartbeatTTLSeconds is how long worker heartbeat keys live in the store (default: 30)
	HeartbeatTTLSeconds int `mapstructure:"heartbeat_ttl_seconds"`
}

// QueueConfig controls the task queue.
type QueueConfig struct {
	// Name namespaces the queue's store keys so multiple queues can share one store
	Name string `mapstructure:"name"`
	// ResultTTLMinutes is how long completed results are retained in the store (default: 60)
	ResultTTLMinutes int `mapstructure:"result_ttl_minutes"`
}

// RetryConfig controls the shared retry policy.
type RetryConfig struct {
	// MaxRetries is the retry budget per task (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// BaseDelayMs is the first-attempt backoff in milliseconds (default: 1000)
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	// Multiplier is the per-attempt growth factor (default: 2.0)
	Multiplier float64 `mapstructure:"multiplier"`
	// MaxDelayMs caps the backoff in milliseconds (default: 30000)
	MaxDelayMs int `mapstructure:"max_delay_ms"`
}

// TransportConfig controls envelope delivery.
type TransportConfig struct {
	// Kind selects the implementation: "file" or "chan" (default: "file")
	Kind string `mapstructure:"kind"`
	// Dir is the session directory for the file transport.
	// Supports ~ for home directory expansion.
	Dir string `mapstructure:"dir"`
	// PollIntervalMs is the file transport's subscription poll interval (default: 500)
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// StoreConfig controls the persistent store.
type StoreConfig struct {
	// Kind selects the implementation: "memory" or "redis" (default: "memory")
	Kind string `mapstructure:"kind"`
	// Addr is the redis address, host:port
	Addr string `mapstructure:"addr"`
	// Password is the redis password, empty for none
	Password string `mapstructure:"password"`
	// DB is the redis database number
	DB int `mapstructure:"db"`
}

// HTTPConfig controls the HTTP API server.
type HTTPConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `mapstructure:"addr"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where the log file is written; empty logs to stderr
	Dir string `mapstructure:"dir"`
}

// DomainConfig declares one routing domain: its roles, its routing rules,
// and the role used when no rule applies.
type DomainConfig struct {
	ID          string         `mapstructure:"id"`
	DefaultRole string         `mapstructure:"default_role"`
	Roles       []RoleConfig   `mapstructure:"roles"`
	Rules       []RuleConfig   `mapstructure:"rules"`
	Members     []MemberConfig `mapstructure:"members"`
}

// RoleConfig declares one role within a domain.
type RoleConfig struct {
	ID      string   `mapstructure:"id"`
	Skills  []string `mapstructure:"skills"`
	CanLead bool     `mapstructure:"can_lead"`
}

// RuleConfig declares one keyword routing rule.
type RuleConfig struct {
	Keywords    []string `mapstructure:"keywords"`
	TargetRoles []string `mapstructure:"target_roles"`
	Priority    int      `mapstructure:"priority"`
}

// MemberConfig declares one worker as a member of a domain.
type MemberConfig struct {
	ID           string   `mapstructure:"id"`
	Role         string   `mapstructure:"role"`
	Skills       []string `mapstructure:"skills"`
	Availability float64  `mapstructure:"availability"`
}

// WaitTimeout returns the coordinator wait timeout as a time.Duration.
func (c *CoordinatorConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds) * time.Second
}

// HeartbeatTTL returns the heartbeat TTL as a time.Duration.
func (c *CoordinatorConfig) HeartbeatTTL() time.Duration {
	return time.Duration(c.HeartbeatTTLSeconds) * time.Second
}

// ResultTTL returns the result retention window as a time.Duration.
func (c *QueueConfig) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLMinutes) * time.Minute
}

// BaseDelay returns the base backoff as a time.Duration.
func (c *RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap as a time.Duration.
func (c *RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// PollInterval returns the file transport poll interval as a time.Duration.
func (c *TransportConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ResolveDir returns the resolved session directory for the file transport.
// If Dir is empty it defaults to ".colony" under baseDir; ~ expands to the
// user's home directory; relative paths resolve against baseDir.
func (c *TransportConfig) ResolveDir(baseDir string) string {
	if c.Dir == "" {
		return filepath.Join(baseDir, ".colony")
	}

	path := c.Dir
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// DomainConfigs converts the configured domains into domain.Config values
// for the routing registry.
func (c *Config) DomainConfigs() []domain.Config {
	out := make([]domain.Config, 0, len(c.Domains))
	for _, d := range c.Domains {
		roles := make([]domain.Role, 0, len(d.Roles))
		for _, r := range d.Roles {
			roles = append(roles, domain.Role{
				ID:      r.ID,
				Skills:  r.Skills,
				CanLead: r.CanLead,
			})
		}
		rules := make([]domain.RoutingRule, 0, len(d.Rules))
		for _, r := range d.Rules {
			rules = append(rules, domain.RoutingRule{
				Keywords:    r.Keywords,
				TargetRoles: r.TargetRoles,
				Priority:    r.Priority,
			})
		}
		out = append(out, domain.Config{
			ID:          d.ID,
			DefaultRole: d.DefaultRole,
			Roles:       roles,
			Rules:       rules,
		})
	}
	return out
}

// DomainMembers converts the configured members of every domain into
// domain.Member values for the routing engine's candidate pool.
func (c *Config) DomainMembers() []domain.Member {
	var out []domain.Member
	for _, d := range c.Domains {
		for _, m := range d.Members {
			out = append(out, domain.Member{
				ID:           m.ID,
				Domain:       d.ID,
				Role:         m.Role,
				Skills:       m.Skills,
				Availability: m.Availability,
			})
		}
	}
	return out
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			ID:                  "coordinator",
			WaitTimeoutSeconds:  60,
			HeartbeatTTLSeconds: 30,
		},
		Queue: QueueConfig{
			Name:             "colony",
			ResultTTLMinutes: 60,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMs: 1000,
			Multiplier:  2.0,
			MaxDelayMs:  30000,
		},
		Transport: TransportConfig{
			Kind:           "file",
			Dir:            "",
			PollIntervalMs: 500,
		},
		Store: StoreConfig{
			Kind: "memory",
			Addr: "localhost:6379",
			DB:   0,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
		Domains: []DomainConfig{},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("coordinator.id", defaults.Coordinator.ID)
	viper.SetDefault("coordinator.wait_timeout_seconds", defaults.Coordinator.WaitTimeoutSeconds)
	viper.SetDefault("coordinator.heartbeat_ttl_seconds", defaults.Coordinator.HeartbeatTTLSeconds)

	viper.SetDefault("queue.name", defaults.Queue.Name)
	viper.SetDefault("queue.result_ttl_minutes", defaults.Queue.ResultTTLMinutes)

	viper.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	viper.SetDefault("retry.base_delay_ms", defaults.Retry.BaseDelayMs)
	viper.SetDefault("retry.multiplier", defaults.Retry.Multiplier)
	viper.SetDefault("retry.max_delay_ms", defaults.Retry.MaxDelayMs)

	viper.SetDefault("transport.kind", defaults.Transport.Kind)
	viper.SetDefault("transport.dir", defaults.Transport.Dir)
	viper.SetDefault("transport.poll_interval_ms", defaults.Transport.PollIntervalMs)

	viper.SetDefault("store.kind", defaults.Store.Kind)
	viper.SetDefault("store.addr", defaults.Store.Addr)
	viper.SetDefault("store.password", defaults.Store.Password)
	viper.SetDefault("store.db", defaults.Store.DB)

	viper.SetDefault("http.addr", defaults.HTTP.Addr)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates
// it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when
// unmarshaling fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Save writes the active configuration to the user's config file, creating
// the config directory if needed.
func Save() error {
	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		return err
	}
	return viper.WriteConfigAs(ConfigFile())
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "colony")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".colony"
	}
	return filepath.Join(home, ".config", "colony")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
