package testutil

import (
	"errors"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTestDBConfig(t *testing.T) {
	t.Run("defaults to the compose test profile", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(k, "")
			require.NoError(t, os.Unsetenv(k))
		}
		cfg, err := LoadTestDBConfig()
		require.NoError(t, err)
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, "55432", cfg.Port)
		assert.Equal(t, "jobgather", cfg.DBName)
	})

	t.Run("CI overrides", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("TEST_REQUIRE_DB", "true")
		cfg, err := LoadTestDBConfig()
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Host)
		assert.Equal(t, "5432", cfg.Port)
		assert.True(t, cfg.Require)
	})
}

func TestTestDBConfig_DSN(t *testing.T) {
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "jobs", SSLMode: "disable"}

	u, err := url.Parse(cfg.DSN("t_abc,public"))
	require.NoError(t, err)
	assert.Equal(t, "db:5432", u.Host)
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss", pass)
	assert.Equal(t, "t_abc,public", u.Query().Get("search_path"))

	u, err = url.Parse(cfg.DSN(""))
	require.NoError(t, err)
	assert.False(t, u.Query().Has("search_path"))
}

func TestRunConcurrent_PreservesOrder(t *testing.T) {
	boom := errors.New("boom")
	errs := RunConcurrent(
		func() error { return nil },
		func() error { return boom },
		func() error { return nil },
	)
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.NoError(t, errs[2])
}

func TestSchemaName_IsUnquotedIdentifier(t *testing.T) {
	name := schemaName()
	assert.Regexp(t, `^t_[0-9a-f]+$`, name)
	assert.NotEqual(t, name, schemaName())
}
