package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	// Registers the pgx driver with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/interop/jobgather/internal/migrate"
)

// TestDBConfig locates the integration database. The default port matches the
// docker-compose test profile; CI sets TEST_DB_PORT=5432.
type TestDBConfig struct {
	Host     string `env:"TEST_DB_HOST"     envDefault:"localhost"`
	Port     string `env:"TEST_DB_PORT"     envDefault:"55432"`
	User     string `env:"TEST_DB_USER"     envDefault:"jobgather"`
	Password string `env:"TEST_DB_PASSWORD" envDefault:"jobgather"`
	DBName   string `env:"TEST_DB_NAME"     envDefault:"jobgather"`
	SSLMode  string `env:"TEST_DB_SSL_MODE" envDefault:"disable"`
	Require  bool   `env:"TEST_REQUIRE_DB"`
}

// LoadTestDBConfig reads TestDBConfig from the environment.
func LoadTestDBConfig() (TestDBConfig, error) {
	return env.ParseAs[TestDBConfig]()
}

// DSN renders the config as a postgres URL, optionally pinned to a search_path.
func (c TestDBConfig) DSN(searchPath string) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	if searchPath != "" {
		q.Set("search_path", searchPath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func openAndPing(dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, pingErr
	}
	return db, nil
}

// SkipIfNoTestDB skips the test if the integration database is not reachable.
// TEST_REQUIRE_DB or TEST_REQUIRE_INFRA turn the skip into a failure.
func SkipIfNoTestDB(t TestingTB) TestDBConfig {
	t.Helper()
	cfg, err := LoadTestDBConfig()
	if err != nil {
		t.Fatalf("test db config: %v", err)
	}
	db, err := openAndPing(cfg.DSN(""), 2*time.Second)
	if err != nil {
		skipOrFail(t, cfg.Require, "Test database not available:", err)
		return cfg
	}
	if closeErr := db.Close(); closeErr != nil {
		t.Logf("test db close failed: %v", closeErr)
	}
	return cfg
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

// SetupEphemeralSchemaDB gives the test its own freshly migrated schema and drops it on cleanup,
// so integration tests in different packages can run in parallel against one database.
func SetupEphemeralSchemaDB(t TestingTB) *sql.DB {
	t.Helper()
	cfg := SkipIfNoTestDB(t)

	admin, err := openAndPing(cfg.DSN(""), 5*time.Second)
	if err != nil {
		t.Fatal("Failed to open admin DB:", err)
	}
	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, execErr := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); execErr != nil {
		_ = admin.Close()
		t.Fatalf("Failed to create schema %s: %v", schema, execErr)
	}

	db, err := openAndPing(cfg.DSN(schema+",public"), 5*time.Second)
	t.Cleanup(func() {
		if db != nil {
			_ = db.Close()
		}
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, dropErr := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); dropErr != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, dropErr)
		}
		_ = admin.Close()
	})
	if err != nil {
		t.Fatal("Failed to open schema-scoped DB:", err)
	}
	db.SetMaxOpenConns(10)

	if migrateErr := migrate.Run(ctx, db); migrateErr != nil {
		t.Fatal("Failed to run migrations in ephemeral schema:", migrateErr)
	}
	t.Logf("%s: using ephemeral schema %s", t.Name(), schema)
	return db
}
