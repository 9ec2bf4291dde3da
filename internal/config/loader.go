// Package config provides centralized configuration management for NetLens.
package config

import (
	"fmt"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for configuration environment variables.
	EnvPrefix = "NETLENS"

	// DefaultSnapshotPath is the file-backend snapshot location when none
	// is configured.
	DefaultSnapshotPath = "netlens-state.json"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers default configuration values with viper. It must run
// before Load, typically from the root command's config initialization.
func SetDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")

	// Store defaults
	viper.SetDefault("store.driver", "file")
	viper.SetDefault("store.path", DefaultSnapshotPath)
	viper.SetDefault("store.url", "")
	viper.SetDefault("store.auth_token", "")
	viper.SetDefault("store.redis.addr", "localhost:6379")
	viper.SetDefault("store.redis.db", 0)
	viper.SetDefault("store.redis.prefix", "netlens")

	// Governor defaults
	viper.SetDefault("governor.margin", 0.0)
	viper.SetDefault("governor.jitter_max", "250ms")
	viper.SetDefault("governor.max_wait", "2m")
	viper.SetDefault("governor.checkpoint_interval", "1m")
	viper.SetDefault("governor.breaker.threshold", 5)
	viper.SetDefault("governor.breaker.interval", "1m")
	viper.SetDefault("governor.breaker.cooldown", "30s")
	viper.SetDefault("governor.services", map[string]any{})

	// Worker defaults
	viper.SetDefault("workers", 4)
}

// Load unmarshals the merged viper state into a typed Config.
func Load() (*Config, error) {
	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	setConfig(cfg)
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe).
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
