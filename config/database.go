package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"jobgather"`
	Password string `env:"PASSWORD"                envDefault:"jobgather"`
	Name     string `env:"NAME"                    envDefault:"jobgather"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	MaxOpenConns         int  `env:"MAX_OPEN_CONNS"          envDefault:"20"`
	// ApplicationName is reported in pg_stat_activity.
	ApplicationName string `env:"APPLICATION_NAME" envDefault:"jobgather"`
	// StatementTimeout caps every statement server-side; zero leaves the server default.
	StatementTimeout time.Duration `env:"STATEMENT_TIMEOUT" envDefault:"15s"`
}

// RedisConfig contains Redis configuration for the delivery guard.
// With Enabled=false the ingestor relies on the store alone and accepts duplicate counting on redelivery.
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

	KeyPrefix string        `env:"KEY_PREFIX" envDefault:"jobgather:delivery:"`
	LeaseTTL  time.Duration `env:"LEASE_TTL"  envDefault:"5m"`
	DoneTTL   time.Duration `env:"DONE_TTL"   envDefault:"24h"`
}

// Sanitize applies guardrails to Redis configuration values.
func (r *RedisConfig) Sanitize() {
	r.URI = strings.TrimSpace(r.URI)
	r.SentinelNodes = compact(r.SentinelNodes)
	r.ClusterNodes = compact(r.ClusterNodes)
	if r.LeaseTTL < time.Second {
		r.LeaseTTL = time.Second
	}
	// A done marker that expires before the lease would let a redelivery slip through.
	if r.DoneTTL < r.LeaseTTL {
		r.DoneTTL = r.LeaseTTL
	}
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
