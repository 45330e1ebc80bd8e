// Package config loads the engine's environment-variable configuration
// surface (spec.md §6) with caarlos0/env, following the same env>defaults
// precedence Napageneral-eve's config.Load documents, minus that
// package's config.json layer — this engine has no local file store to
// layer over environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the full set of environment variables the jobqueue server
// reads at startup.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file::memory:?cache=shared"`

	APIHost string `env:"API_HOST" envDefault:"0.0.0.0"`
	APIPort int    `env:"API_PORT" envDefault:"8080"`

	JWTSecret string `env:"JWT_SECRET,required"`

	WorkerPoolSize       int `env:"WORKER_POOL_SIZE" envDefault:"4"`
	WorkerLeaseTTLSec    int `env:"WORKER_LEASE_TTL_SECONDS" envDefault:"30"`
	WorkerPollIntervalMs int `env:"WORKER_POLL_INTERVAL_MS" envDefault:"500"`

	DefaultMaxConcurrentJobs  int `env:"DEFAULT_MAX_CONCURRENT_JOBS" envDefault:"5"`
	DefaultRateLimitPerMinute int `env:"DEFAULT_RATE_LIMIT_PER_MINUTE" envDefault:"10"`

	ReaperIntervalSec int `env:"REAPER_INTERVAL_SECONDS" envDefault:"15"`

	Debug bool `env:"DEBUG" envDefault:"false"`
}

// Load reads Config from the process environment, applying envDefault
// tags for anything unset. JWT_SECRET has no default: a missing value
// is a startup error, since an empty HMAC key would silently accept
// any unsigned token.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
