package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)
	assert.Equal(t, "none", cfg.Storage.Backend)
	assert.Equal(t, 5*time.Second, cfg.Manager.FlushTimeout)
	assert.False(t, cfg.Auth.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9000
cache:
  max_entries: 50
  default_ttl: 30m
storage:
  backend: redis
  redis:
    addr: redis:6379
    key_prefix: "test:"
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, 30*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, "test:", cfg.Storage.Redis.KeyPrefix)

	// Untouched sections keep their defaults.
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o644))

	t.Setenv("JOBFLOW_SERVER_HTTP_PORT", "7000")
	t.Setenv("JOBFLOW_CACHE_MAX_AGE", "48h")
	t.Setenv("JOBFLOW_STORAGE_DATABASE_DRIVER", "postgres")
	t.Setenv("JOBFLOW_AUTH_ENABLED", "true")
	t.Setenv("JOBFLOW_AUTH_JWT_SECRET", "sekrit")
	t.Setenv("JOBFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/jobflow.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.HTTPPort)
	assert.Equal(t, 48*time.Hour, cfg.Cache.MaxAge)
	assert.Equal(t, "postgres", cfg.Storage.Database.Driver)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "sekrit", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"stdout", "/var/log/jobflow.log"}, cfg.Log.OutputPaths)
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("TESTAPP_SERVER_HTTP_PORT", "6060")
	cfg, err := NewLoader().WithEnvPrefix("TESTAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.HTTPPort)
}

func TestValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Storage.Backend = "etcd"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Auth.Enabled = true
	assert.Error(t, cfg.Validate(), "auth without a secret must fail")
	cfg.Auth.JWTSecret = "sekrit"
	assert.NoError(t, cfg.Validate())
}

func TestValidatorHookFailure(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		c.Server.HTTPPort = 0
		return c.Validate()
	}).Load()
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "jobs", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=jobs sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "jobs"}
	assert.Equal(t, "u:p@tcp(db:3306)/jobs?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "jobs.db"}
	assert.Equal(t, "jobs.db", lite.DSN())

	unknown := DatabaseConfig{Driver: "oracle"}
	assert.Equal(t, "", unknown.DSN())
}
