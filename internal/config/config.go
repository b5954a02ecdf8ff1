package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type rawAppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"`
	NodeEnv        string                `yaml:"node_env"`
	DSN            string                `yaml:"dsn"`
	DatabaseURL    string                `yaml:"database_url"`
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	CORSOrigins    []string              `yaml:"cors_allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Site           SiteConfig            `yaml:"site"`
	Release        ReleaseConfig         `yaml:"release"`
	Mail           MailConfig            `yaml:"mail"`
	Newsletter     NewsletterConfig      `yaml:"newsletter"`
	Admin          AdminConfig           `yaml:"admin"`
	Bark           BarkConfig            `yaml:"bark"`
}

func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	applyRawAppConfig(&cfg, raw)
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return nil, fmt.Errorf("invalid database.port %d in %q, expected 1-65535", cfg.Database.Port, path)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, path)
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("invalid redis.db %d in %q, expected >= 0", cfg.Redis.DB, path)
	}
	if err := parseReleaseDate(&cfg.Release); err != nil {
		return nil, fmt.Errorf("invalid release.date in %q: %w", path, err)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:     defaultDBHost,
			Port:     defaultDBPort,
			User:     defaultDBUser,
			Password: defaultDBPassword,
			Name:     defaultDBName,
			Charset:  defaultDBCharset,
			Loc:      defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Site: SiteConfig{
			Name: defaultSiteName,
		},
		Release: ReleaseConfig{
			Title: defaultReleaseTitle,
			Date:  defaultReleaseDate,
		},
		Newsletter: NewsletterConfig{
			PendingTTLHours:      defaultPendingTTLHours,
			CountCacheTTLMinutes: defaultCountCacheTTLMinutes,
		},
	}
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.NodeEnv); v != "" {
		cfg.Env = v
	}
	cfg.Env = normalizeEnv(cfg.Env)

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSOrigins)
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}

	if v := strings.TrimSpace(raw.Site.Name); v != "" {
		cfg.Site.Name = v
	}
	if v := strings.TrimSpace(raw.Site.URL); v != "" {
		cfg.Site.URL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(raw.Release.Title); v != "" {
		cfg.Release.Title = v
	}
	if v := strings.TrimSpace(raw.Release.Date); v != "" {
		cfg.Release.Date = v
	}

	cfg.Mail = raw.Mail
	cfg.Mail.Host = strings.TrimSpace(cfg.Mail.Host)
	cfg.Mail.User = strings.TrimSpace(cfg.Mail.User)
	cfg.Mail.From = strings.TrimSpace(cfg.Mail.From)
	cfg.Mail.ReplyTo = strings.TrimSpace(cfg.Mail.ReplyTo)
	cfg.Mail.ResendKey = strings.TrimSpace(cfg.Mail.ResendKey)

	cfg.Newsletter = applyRawNewsletterConfig(cfg.Newsletter, raw.Newsletter, cfg.IsDev())
	cfg.Admin.APIKeys = normalizeKeyList(raw.Admin.APIKeys)
	cfg.Admin.APIKeyHashes = normalizeKeyList(raw.Admin.APIKeyHashes)
	cfg.Bark.Key = strings.TrimSpace(raw.Bark.Key)
	cfg.Bark.ServerURL = strings.TrimRight(strings.TrimSpace(raw.Bark.ServerURL), "/")
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Database.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.Host); v != "" {
		cfg.Host = v
	}
	if raw.Database.Port != 0 {
		cfg.Port = raw.Database.Port
	}
	if v := strings.TrimSpace(raw.Database.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Database.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		cfg.Charset = v
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		cfg.Loc = v
	}

	return cfg
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != 0 {
		cfg.DB = raw.Redis.DB
	}

	return cfg
}

func applyRawNewsletterConfig(current, raw NewsletterConfig, dev bool) NewsletterConfig {
	cfg := current

	if v := strings.TrimSpace(raw.ConfirmBaseURL); v != "" {
		cfg.ConfirmBaseURL = strings.TrimRight(v, "/")
	}
	if raw.PendingTTLHours > 0 {
		cfg.PendingTTLHours = raw.PendingTTLHours
	}
	if raw.CountCacheTTLMinutes > 0 {
		cfg.CountCacheTTLMinutes = raw.CountCacheTTLMinutes
	}
	if raw.BlockedDomains != nil {
		cfg.BlockedDomains = normalizeKeyList(raw.BlockedDomains)
	}

	// Development loosens the subscribe limiter unless explicitly pinned.
	cfg.RateLimitMax = raw.RateLimitMax
	cfg.RateLimitWindowMinutes = raw.RateLimitWindowMinutes
	if cfg.RateLimitMax <= 0 {
		if dev {
			cfg.RateLimitMax = defaultDevRateLimitMax
		} else {
			cfg.RateLimitMax = defaultRateLimitMax
		}
	}
	if cfg.RateLimitWindowMinutes <= 0 {
		if dev {
			cfg.RateLimitWindowMinutes = defaultDevRateLimitWindowMin
		} else {
			cfg.RateLimitWindowMinutes = defaultRateLimitWindowMinutes
		}
	}

	return cfg
}

func parseReleaseDate(rc *ReleaseConfig) error {
	date := strings.TrimSpace(rc.Date)
	if date == "" {
		date = defaultReleaseDate
		rc.Date = date
	}
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return err
	}
	rc.parsed = parsed.UTC()
	return nil
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeKeyList(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		trimmed := strings.TrimSpace(key)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	trimmed := strings.ToLower(strings.TrimSpace(env))
	if trimmed == "" {
		return defaultEnv
	}
	return trimmed
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

// ReleaseDate returns the release moment at midnight UTC.
func (c *AppConfig) ReleaseDate() time.Time {
	if c.Release.parsed.IsZero() {
		parsed, err := time.Parse("2006-01-02", defaultReleaseDate)
		if err == nil {
			return parsed.UTC()
		}
	}
	return c.Release.parsed
}

func (c *AppConfig) PendingTTL() time.Duration {
	hours := c.Newsletter.PendingTTLHours
	if hours <= 0 {
		hours = defaultPendingTTLHours
	}
	return time.Duration(hours) * time.Hour
}

func (c *AppConfig) RateLimitWindow() time.Duration {
	minutes := c.Newsletter.RateLimitWindowMinutes
	if minutes <= 0 {
		minutes = defaultRateLimitWindowMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (c *AppConfig) CountCacheTTL() time.Duration {
	minutes := c.Newsletter.CountCacheTTLMinutes
	if minutes <= 0 {
		minutes = defaultCountCacheTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// ConfirmURL builds the link embedded in confirmation emails.
func (c *AppConfig) ConfirmURL(token string) string {
	base := strings.TrimRight(c.Newsletter.ConfirmBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(c.Site.URL, "/")
	}
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d/api/v1/subscribe/confirm", c.Port)
		return base + "?token=" + token
	}
	return base + "?token=" + token
}

// UnsubscribeURL builds the link embedded in welcome emails.
func (c *AppConfig) UnsubscribeURL(token string) string {
	base := strings.TrimRight(c.Site.URL, "/")
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	return base + "/newsletter/unsubscribe?token=" + token
}
