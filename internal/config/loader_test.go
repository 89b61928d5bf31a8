package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/snippets/internal/policy"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "snippets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "sqlite3", cfg.Database.Driver)
		assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
		assert.Equal(t, "snippets", cfg.Auth.Issuer)
		assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
		assert.Equal(t, policy.ModeEnforce, cfg.Policy.Mode)
		assert.True(t, cfg.Analysis.AutoSuggest)
		assert.Equal(t, "/metrics", cfg.Metrics.Path)
		assert.True(t, cfg.UsesDefaultSecret())
	})

	t.Run("file values", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), `
server:
  port: 9090
  app_url: https://snippets.example.com
database:
  driver: postgres
  dsn: postgres://localhost/snippets
  max_lifetime: 10m
auth:
  jwt_secret: a-much-longer-secret-for-the-test-run
  token_ttl: 24h
analysis:
  auto_suggest: false
`)
		t.Setenv("CONFIG_PATH", path)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "https://snippets.example.com", cfg.Server.AppURL)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 10*time.Minute, cfg.Database.MaxLifetime)
		assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
		assert.False(t, cfg.Analysis.AutoSuggest)
		assert.False(t, cfg.UsesDefaultSecret())
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "server:\n  port: 9090\n")
		t.Setenv("CONFIG_PATH", path)
		t.Setenv("SNIPPETS_SERVER_PORT", "7070")
		t.Setenv("SNIPPETS_LOGGING_LEVEL", "debug")
		t.Setenv("SNIPPETS_REDIS_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.True(t, cfg.Redis.Enabled)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "server: [unterminated\n")
		t.Setenv("CONFIG_PATH", path)

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("invalid policy mode falls back to off", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
		t.Setenv("SNIPPETS_POLICY_MODE", "sometimes")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, policy.ModeOff, cfg.Policy.Mode)
		assert.False(t, cfg.Policy.Enabled)
	})
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		{"ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "auth.token_ttl"},
		{"ratelimit", func(c *Config) { c.RateLimit.AuthPerMinute = -1 }, "ratelimit"},
		{"redis url", func(c *Config) { c.Redis.Enabled = true; c.Redis.URL = "" }, "redis.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestManager_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: info\nratelimit:\n  requests_per_minute: 60\n")

	m, err := NewManager(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "info", m.Current().Logging.Level)

	var gotOld, gotNew *Config
	m.OnChange(func(old, updated *Config) {
		gotOld, gotNew = old, updated
	})

	writeConfig(t, dir, "logging:\n  level: debug\nratelimit:\n  requests_per_minute: 30\n")
	require.NoError(t, m.reload())

	require.NotNil(t, gotNew)
	assert.Equal(t, "info", gotOld.Logging.Level)
	assert.Equal(t, "debug", gotNew.Logging.Level)
	assert.Equal(t, 30, m.Current().RateLimit.RequestsPerMinute)

	// an invalid file keeps the previous config
	writeConfig(t, dir, "server:\n  port: -5\n")
	require.Error(t, m.reload())
	assert.Equal(t, "debug", m.Current().Logging.Level)
}

func TestManager_PolicyDirectoryWatch(t *testing.T) {
	dir := t.TempDir()
	policyDir := filepath.Join(dir, "policies")
	require.NoError(t, os.Mkdir(policyDir, 0o755))
	path := writeConfig(t, dir, "policy:\n  path: "+policyDir+"\n")

	m, err := NewManager(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	var reloads atomic.Int32
	m.RegisterPolicyHandler(func() error {
		reloads.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(policyDir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(policyDir, "access.rego"), []byte("package snippets.access\n"), 0o644))

	assert.Eventually(t, func() bool { return reloads.Load() > 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestManager_StopIsIdempotent(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "server:\n  port: 8081\n")
	m, err := NewManager(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, m.Stop())
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}
