// ABOUTME: Viper-backed process configuration, bound to cobra persistent flags
// ABOUTME: Mirrors the teacher's root.go initConfig/viper.BindPFlag pattern

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowctl/engine/internal/breaker"
	"github.com/flowctl/engine/internal/logging"
	"github.com/flowctl/engine/pkg/types"
)

// EngineConfig is the process-wide configuration fixing the values §5
// says are "a single, process-wide engine configuration": concurrency,
// cache TTLs, and circuit-breaker defaults.
type EngineConfig struct {
	MaxConcurrency int
	CatalogDir     string
	LogFormat      string
	LogLevel       logging.Level
	CacheTTL       time.Duration
	CacheStaleTTL  time.Duration
	RedisAddr      string
	Breaker        breaker.Config
}

// BindFlags registers the engine's persistent flags on cmd and binds them
// into viper, following the teacher's `rootCmd.PersistentFlags()` +
// `viper.BindPFlag` pairing.
func BindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.Int("max-concurrency", types.DefaultConcurrency, "maximum number of tasks run concurrently within a wave")
	flags.String("catalog-dir", "./catalog", "directory containing tasks/ and workflows/ resource YAML files")
	flags.String("log-format", "text", "log output format (text, json)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Duration("cache-ttl", 5*time.Minute, "fresh cache entry lifetime (kept in the config only; each step's cache.ttl sets the lifetime used)")
	flags.Duration("cache-stale-ttl", 30*time.Minute, "maximum age served as a stale-while-revalidate hit (kept in the config only; each step's cache.staleTtl sets the age used)")
	flags.String("redis-addr", "", "redis address for the task cache (empty uses the in-memory store)")
	flags.Int("breaker-failure-threshold", breaker.DefaultConfig().FailureThreshold, "consecutive failures before the circuit opens")
	flags.Duration("breaker-sampling-duration", breaker.DefaultConfig().SamplingDuration, "window over which breaker failures are counted")
	flags.Duration("breaker-break-duration", breaker.DefaultConfig().BreakDuration, "how long the circuit stays open before probing")
	flags.Int("breaker-half-open-requests", breaker.DefaultConfig().HalfOpenRequests, "trial requests allowed while half-open")

	for _, name := range []string{
		"max-concurrency", "catalog-dir", "log-format", "log-level",
		"cache-ttl", "cache-stale-ttl", "redis-addr",
		"breaker-failure-threshold", "breaker-sampling-duration",
		"breaker-break-duration", "breaker-half-open-requests",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// Load reads the bound flags/environment/config-file values into an
// EngineConfig, following the teacher's `viper.AutomaticEnv()` +
// `SetEnvPrefix` convention.
func Load() *EngineConfig {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("FLOWCTL")

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".flowctl")
	}
	_ = viper.ReadInConfig()

	return &EngineConfig{
		MaxConcurrency: types.ValidateConcurrency(viper.GetInt("max-concurrency")),
		CatalogDir:     viper.GetString("catalog-dir"),
		LogFormat:      viper.GetString("log-format"),
		LogLevel:       logging.Level(viper.GetString("log-level")),
		CacheTTL:       viper.GetDuration("cache-ttl"),
		CacheStaleTTL:  viper.GetDuration("cache-stale-ttl"),
		RedisAddr:      viper.GetString("redis-addr"),
		Breaker: breaker.Config{
			FailureThreshold: viper.GetInt("breaker-failure-threshold"),
			SamplingDuration: viper.GetDuration("breaker-sampling-duration"),
			BreakDuration:    viper.GetDuration("breaker-break-duration"),
			HalfOpenRequests: viper.GetInt("breaker-half-open-requests"),
		},
	}
}

// NewLogger builds the process logger for the resolved format/level.
func (c *EngineConfig) NewLogger() types.Logger {
	if c.LogFormat == "json" {
		return logging.NewJSONLogger(c.LogLevel, os.Stderr)
	}
	return logging.NewLogger(c.LogLevel, os.Stderr)
}

// Validate reports a config-level error before the engine is built from it.
func (c *EngineConfig) Validate() error {
	if c.CatalogDir == "" {
		return fmt.Errorf("catalog-dir must not be empty")
	}
	return nil
}
