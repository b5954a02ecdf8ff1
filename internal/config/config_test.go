package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "env: production\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.False(t, cfg.IsDev())
	assert.Contains(t, cfg.DSN, "tcp(127.0.0.1:3306)/emberfall")
	assert.Contains(t, cfg.DSN, "parseTime=True")
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 24*time.Hour, cfg.PendingTTL())
	assert.Equal(t, defaultRateLimitMax, cfg.Newsletter.RateLimitMax)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow())
	assert.Equal(t, 5*time.Minute, cfg.CountCacheTTL())
}

func TestLoadDevLoosensRateLimit(t *testing.T) {
	path := writeConfig(t, "env: development\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, defaultDevRateLimitMax, cfg.Newsletter.RateLimitMax)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
port: 9000
env: production
database:
  host: db.internal
  name: fans
redis:
  host: cache.internal
  db: 3
site:
  name: Emberfall Zone
  url: https://emberfall.zone/
release:
  title: Emberfall
  date: "2026-11-20"
newsletter:
  confirm_base_url: https://api.emberfall.zone/api/v1/subscribe/confirm
  rate_limit_max: 10
  rate_limit_window_minutes: 30
  blocked_domains: [tempmail.org]
admin:
  api_keys: [local-admin-key]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Contains(t, cfg.DSN, "tcp(db.internal:3306)/fans")
	assert.Equal(t, "redis://cache.internal:6379/3", cfg.RedisURL)
	assert.Equal(t, "https://emberfall.zone", cfg.Site.URL)
	assert.Equal(t, 10, cfg.Newsletter.RateLimitMax)
	assert.Equal(t, 30*time.Minute, cfg.RateLimitWindow())
	assert.Equal(t, []string{"tempmail.org"}, cfg.Newsletter.BlockedDomains)
	assert.Equal(t, []string{"local-admin-key"}, cfg.Admin.APIKeys)

	release := cfg.ReleaseDate()
	assert.Equal(t, time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC), release)

	url := cfg.ConfirmURL("abc123")
	assert.Equal(t, "https://api.emberfall.zone/api/v1/subscribe/confirm?token=abc123", url)
	assert.Equal(t, "https://emberfall.zone/newsletter/unsubscribe?token=abc123", cfg.UnsubscribeURL("abc123"))
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "port: 99999\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "release:\n  date: not-a-date\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
