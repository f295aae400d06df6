package testutil

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// TestRedisConfig locates the integration Redis. The default port matches the
// docker-compose test profile.
type TestRedisConfig struct {
	Addr    string `env:"TEST_REDIS_ADDR" envDefault:"localhost:56379"`
	DB      int    `env:"TEST_REDIS_DB"   envDefault:"15"`
	Require bool   `env:"TEST_REQUIRE_REDIS"`
}

// SetupTestRedis connects to the integration Redis, skipping when it is unreachable.
// Tests share the database, so keys must be namespaced with RedisKeyPrefix.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()
	cfg, err := env.ParseAs[TestRedisConfig]()
	if err != nil {
		t.Fatalf("test redis config: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		_ = client.Close()
		skipOrFail(t, cfg.Require, "Redis not available for testing at "+cfg.Addr+":", pingErr)
		return nil
	}
	t.Cleanup(func() {
		if closeErr := client.Close(); closeErr != nil {
			t.Logf("warning: failed to close redis client: %v", closeErr)
		}
	})
	return client
}

// RedisKeyPrefix returns a key namespace unique to this test run.
func RedisKeyPrefix() string {
	return "jobgather:test:" + schemaName() + ":"
}
