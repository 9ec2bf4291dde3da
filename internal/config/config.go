package config

import (
	"time"

	"github.com/netlens/netlens/internal/core"
)

// Config represents the complete application configuration: built-in
// defaults, an optional YAML config file, and NETLENS_* environment
// variables, in increasing precedence.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Governor GovernorConfig `mapstructure:"governor"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Workers  int            `mapstructure:"workers"`
}

// ServerConfig contains HTTP status server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects and configures the snapshot backend.
type StoreConfig struct {
	Driver    string      `mapstructure:"driver"`
	Path      string      `mapstructure:"path"`
	URL       string      `mapstructure:"url"`
	AuthToken string      `mapstructure:"auth_token"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the Redis snapshot backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// GovernorConfig contains traffic-governance tuning.
type GovernorConfig struct {
	Margin             float64                       `mapstructure:"margin"`
	JitterMax          time.Duration                 `mapstructure:"jitter_max"`
	MaxWait            time.Duration                 `mapstructure:"max_wait"`
	CheckpointInterval time.Duration                 `mapstructure:"checkpoint_interval"`
	Breaker            BreakerConfig                 `mapstructure:"breaker"`
	Services           map[string]ServiceLimitConfig `mapstructure:"services"`
}

// BreakerConfig tunes the per-service circuit breakers.
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Interval  time.Duration `mapstructure:"interval"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// ServiceLimitConfig overrides the built-in policy for one service.
type ServiceLimitConfig struct {
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	RequestsPerHour   int           `mapstructure:"requests_per_hour"`
	BurstLimit        int           `mapstructure:"burst_limit"`
	BurstWindow       time.Duration `mapstructure:"burst_window"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level: trace, debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// Policies merges configured service overrides over the built-in defaults.
func (c *Config) Policies() map[string]core.ServicePolicy {
	policies := make(map[string]core.ServicePolicy, len(core.DefaultPolicies))
	for service, policy := range core.DefaultPolicies {
		policies[service] = policy
	}
	if c == nil {
		return policies
	}

	for service, override := range c.Governor.Services {
		policy, ok := policies[service]
		if !ok {
			policy = core.FallbackPolicy(service)
		}
		if override.RequestsPerMinute > 0 {
			policy.RequestsPerMinute = override.RequestsPerMinute
		}
		if override.RequestsPerHour > 0 {
			policy.RequestsPerHour = override.RequestsPerHour
		}
		if override.BurstLimit > 0 {
			policy.BurstLimit = override.BurstLimit
		}
		if override.BurstWindow > 0 {
			policy.BurstWindow = override.BurstWindow
		}
		policies[service] = policy
	}
	return policies
}
