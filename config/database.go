package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL configuration for the delivery history table.
type DBConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"reports"`
	Password string `env:"PASSWORD" envDefault:"reports"`
	Name     string `env:"NAME"     envDefault:"reports"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the schema is migrated before the job runs.
	RunMigrationsOnStart bool          `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	ConnectTimeout       time.Duration `env:"CONNECT_TIMEOUT"         envDefault:"5s"`
}

// Sanitize applies guardrails to database configuration values.
func (c *DBConfig) Sanitize() {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		c.Enabled = false
	}
	if c.Port <= 0 {
		c.Port = 5432
	}
	if c.SSLMode = strings.TrimSpace(c.SSLMode); c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// RedisConfig contains Redis configuration for the per-job run lock and the
// status snapshot cache.
type RedisConfig struct {
	Enabled            bool     `env:"ENABLED"              envDefault:"false"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:""`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`

	// KeyPrefix namespaces every key written by report-runner.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"report-runner:"`
}

// Sanitize applies guardrails to redis configuration values.
func (c *RedisConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	c.SentinelNodes = cleanList(c.SentinelNodes)
	c.ClusterNodes = cleanList(c.ClusterNodes)
	if c.UseSentinel && len(c.SentinelNodes) == 0 {
		c.UseSentinel = false
	}
	if c.UseCluster && len(c.ClusterNodes) == 0 {
		c.UseCluster = false
	}
	if c.URI == "" && !c.UseSentinel && !c.UseCluster {
		c.Enabled = false
	}
}

// CacheConfig contains TTLs for the Redis-backed run lock and status snapshot cache.
type CacheConfig struct {
	// LockTTL is how long a job run lock lives if the process dies without releasing it.
	LockTTL time.Duration `env:"JOB_LOCK_TTL" envDefault:"45m"`
	// StatusCacheTTL is how long the last pushed status snapshot is kept.
	StatusCacheTTL time.Duration `env:"STATUS_CACHE_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to cache TTLs.
func (c *CacheConfig) Sanitize() {
	if c.LockTTL <= 0 {
		c.LockTTL = 45 * time.Minute
	}
	if c.StatusCacheTTL <= 0 {
		c.StatusCacheTTL = 24 * time.Hour
	}
}
