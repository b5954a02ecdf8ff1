package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	DSN            string                `yaml:"dsn"` // MySQL DSN, overrides Database
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Site           SiteConfig            `yaml:"site"`
	Release        ReleaseConfig         `yaml:"release"`
	Mail           MailConfig            `yaml:"mail"`
	Newsletter     NewsletterConfig      `yaml:"newsletter"`
	Admin          AdminConfig           `yaml:"admin"`
	Bark           BarkConfig            `yaml:"bark"`
}

type DatabaseRuntimeConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
	Loc      string `yaml:"loc"`
}

type RedisRuntimeConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SiteConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ReleaseConfig pins the game release the countdown widget and the email
// templates count toward.
type ReleaseConfig struct {
	Title string `yaml:"title"`
	Date  string `yaml:"date"` // YYYY-MM-DD, midnight UTC

	parsed time.Time
}

type MailConfig struct {
	Enable    bool   `yaml:"enable"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
	From      string `yaml:"from"`
	ReplyTo   string `yaml:"reply_to"`
	UseResend bool   `yaml:"use_resend"`
	ResendKey string `yaml:"resend_key"`
}

// NewsletterConfig carries the subscription workflow knobs.
type NewsletterConfig struct {
	ConfirmBaseURL         string   `yaml:"confirm_base_url"`
	PendingTTLHours        int      `yaml:"pending_ttl_hours"`
	RateLimitMax           int      `yaml:"rate_limit_max"`
	RateLimitWindowMinutes int      `yaml:"rate_limit_window_minutes"`
	BlockedDomains         []string `yaml:"blocked_domains"`
	CountCacheTTLMinutes   int      `yaml:"count_cache_ttl_minutes"`
}

// AdminConfig authenticates the stats/health detail endpoints. Keys may be
// stored plain or bcrypt-hashed.
type AdminConfig struct {
	APIKeys      []string `yaml:"api_keys"`
	APIKeyHashes []string `yaml:"api_key_hashes"`
}

type BarkConfig struct {
	Key       string `yaml:"key"`
	ServerURL string `yaml:"server_url"`
}
