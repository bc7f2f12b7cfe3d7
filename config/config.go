package config

import (
	"os"
	"path/filepath"
	"strings"
)

// AppConfig is the process-level runtime configuration for report-runner. It is
// loaded from environment variables (and an optional .env file) using
// github.com/caarlos0/env and composed from the per-concern structs in this package:
//   - render.go: fault boundary and rendering engine
//   - delivery.go: archive location, object storage and SMTP transport
//   - status.go: status-service client and authentication
//   - database.go: PostgreSQL delivery history and Redis lock/cache
//   - observability.go: metrics, lifecycle events and on-call notifications
//
// The per-job config descriptor passed with -c is separate; see model.RunConfig.
type AppConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL"  envDefault:"info"`
	// LogFormat is json or text.
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// WorkDir is the parent of every job-scoped working directory. Empty means the OS temp dir.
	WorkDir string `env:"WORK_DIR"`

	Render   RenderConfig
	Delivery DeliveryConfig
	Status   StatusConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "text" {
		c.LogFormat = "json"
	}

	c.WorkDir = strings.TrimSpace(c.WorkDir)
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}

	c.Render.Sanitize()
	c.Delivery.Sanitize(c.WorkDir)
	c.Status.Sanitize()
	c.Postgres.Sanitize()
	c.Redis.Sanitize()
	c.Cache.Sanitize()
	c.Observability.Sanitize()
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func absOrEmpty(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
