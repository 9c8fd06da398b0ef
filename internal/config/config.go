// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/modelgate/gateway/internal/adapters"
	"github.com/modelgate/gateway/internal/breaker"
	"github.com/modelgate/gateway/internal/budget"
	"github.com/modelgate/gateway/internal/connmgr"
	"github.com/modelgate/gateway/internal/metricstore"
	"github.com/modelgate/gateway/internal/offlinecache"
	"github.com/modelgate/gateway/internal/profiles"
	"github.com/modelgate/gateway/internal/quota"
	"github.com/modelgate/gateway/internal/scheduler"
)

// Config represents the complete gateway configuration.
type Config struct {
	Server      ServerConfig           `yaml:"server"`
	Logging     LoggingConfig          `yaml:"logging"`
	Metrics     MetricsConfig          `yaml:"metrics"`
	Tracing     TracingConfig          `yaml:"tracing"`
	CORS        CORSConfig             `yaml:"cors"`
	Auth        AuthConfig             `yaml:"auth"`
	Database    metricstore.Config     `yaml:"database"`
	Cache       CacheConfig            `yaml:"cache"`
	Sources     []SourceConfig         `yaml:"sources"`
	Retry       adapters.RetryConfig   `yaml:"retry"`
	Profiles    []ProfileConfig        `yaml:"profiles"`
	Quota       quota.WindowConfig     `yaml:"quota"`
	Budget      budget.Limits          `yaml:"budget"`
	Breaker     breaker.Config         `yaml:"breaker"`
	ConnManager connmgr.Config         `yaml:"connections"`
	Scheduler   scheduler.Config       `yaml:"scheduler"`
}

// SourceConfig configures one benchmark/pricing adapter.
type SourceConfig struct {
	Type    string `yaml:"type"` // pricing, arena, leaderboard, local
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// ProfileConfig is the YAML shape for a named routing profile; it is
// converted into a profiles.Profile (which normalizes the weights) at load
// time rather than duplicating that normalization here.
type ProfileConfig struct {
	Name          string  `yaml:"name"`
	Description   string  `yaml:"description"`
	WeightQuality float64 `yaml:"weight_quality"`
	WeightLatency float64 `yaml:"weight_latency"`
	WeightCost    float64 `yaml:"weight_cost"`
	WeightContext float64 `yaml:"weight_context"`

	MinQuality       float64 `yaml:"min_quality"`
	MaxLatencyMs     float64 `yaml:"max_latency_ms"`
	MaxCostPerMillion float64 `yaml:"max_cost_per_million"`
	MinContextLength float64 `yaml:"min_context_length"`
}

// Profile converts the YAML shape into a normalized profiles.Profile.
func (p ProfileConfig) Profile() profiles.Profile {
	return profiles.New(p.Name, p.Description, p.WeightQuality, p.WeightLatency, p.WeightCost, p.WeightContext,
		profiles.Constraints{
			MinQuality:        p.MinQuality,
			MaxLatencyMs:      p.MaxLatencyMs,
			MaxCostPerMillion: p.MaxCostPerMillion,
			MinContextLength:  p.MinContextLength,
		})
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	AdminPort    int           `yaml:"admin_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// CORSConfig defines cross-origin settings for the gateway.
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowAllOrigins  bool          `yaml:"allow_all_origins"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	AllowMethods     []string      `yaml:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers"`
	MaxAge           time.Duration `yaml:"max_age"`
	Allowlist        []string      `yaml:"allowlist"`
}

// AuthConfig contains bearer-token authentication settings for the
// gateway's own HTTP surface (not to be confused with provider API keys).
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	SkipPaths []string `yaml:"skip_paths"`
	Tokens    []string `yaml:"tokens"`
}

// CacheConfig selects and configures the offline cache backing benchmark
// payloads and computed model-metrics views.
type CacheConfig struct {
	Type   string                  `yaml:"type"` // memory, redis
	Memory offlinecache.Config     `yaml:"memory"`
	Redis  offlinecache.RedisConfig `yaml:"redis"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "modelgate",
			SampleRate:  1.0,
			Insecure:    true,
		},
		CORS: CORSConfig{
			Enabled:          false,
			AllowAllOrigins:  false,
			AllowCredentials: false,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			MaxAge:           10 * time.Minute,
		},
		Auth: AuthConfig{
			Enabled:   false,
			SkipPaths: []string{"/health/live", "/health/ready", "/metrics"},
		},
		Database: metricstore.DefaultConfig(),
		Cache: CacheConfig{
			Type:   "memory",
			Memory: offlinecache.DefaultConfig(),
			Redis:  offlinecache.DefaultRedisConfig(),
		},
		Sources: []SourceConfig{
			{Type: "pricing", URL: "", Enabled: false},
			{Type: "arena", URL: "", Enabled: false},
			{Type: "leaderboard", URL: "", Enabled: false},
			{Type: "local", URL: "http://localhost:11434/api/tags", Enabled: false},
		},
		Retry:       adapters.DefaultRetryConfig(),
		Quota:       quota.DefaultWindowConfig(),
		Budget:      budget.DefaultLimits(),
		Breaker:     breaker.DefaultConfig(),
		ConnManager: connmgr.DefaultConfig(),
		Scheduler:   scheduler.DefaultConfig(),
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.AdminPort != 0 {
		if c.Server.AdminPort <= 0 || c.Server.AdminPort > 65535 {
			return fmt.Errorf("invalid admin port: %d", c.Server.AdminPort)
		}
		if c.Server.AdminPort == c.Server.Port {
			return fmt.Errorf("admin port must differ from server port: %d", c.Server.AdminPort)
		}
	}

	for i, s := range c.Sources {
		if !s.Enabled {
			continue
		}
		switch s.Type {
		case "pricing", "arena", "leaderboard", "local":
		default:
			return fmt.Errorf("sources[%d]: unknown type %q", i, s.Type)
		}
		if s.URL == "" {
			return fmt.Errorf("sources[%d] %q: url is required when enabled", i, s.Type)
		}
	}

	seen := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profiles[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("profiles[%d]: duplicate profile name %q", i, p.Name)
		}
		seen[p.Name] = true
	}

	if c.CORS.MaxAge < 0 {
		return fmt.Errorf("cors.max_age cannot be negative")
	}
	if !c.CORS.AllowAllOrigins && containsWildcard(c.CORS.Allowlist) {
		return fmt.Errorf("cors.allowlist cannot include wildcard when allow_all_origins is false")
	}

	if c.Auth.Enabled && len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("auth.tokens must be non-empty when auth.enabled is true")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns cannot be negative")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.ConnLifetime < 0 {
		return fmt.Errorf("database.conn_lifetime cannot be negative")
	}

	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.type must be one of: memory, redis")
	}
	if c.Cache.Type == "redis" && c.Cache.Redis.Addr == "" && len(c.Cache.Redis.ClusterAddrs) == 0 {
		return fmt.Errorf("cache.redis.addr or cache.redis.cluster_addrs is required when cache.type is redis")
	}

	if c.Quota.PerMinute < 0 || c.Quota.PerHour < 0 || c.Quota.PerDay < 0 {
		return fmt.Errorf("quota windows cannot be negative")
	}
	if c.Budget.Mode != "" && c.Budget.Mode != budget.ModeAdvisory && c.Budget.Mode != budget.ModeHard {
		return fmt.Errorf("budget.mode must be one of: advisory, hard")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be positive")
	}
	if c.ConnManager.MaxConnections <= 0 {
		return fmt.Errorf("connections.max_connections must be positive")
	}
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_jobs must be positive")
	}

	return nil
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
