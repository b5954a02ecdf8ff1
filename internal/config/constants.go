package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort = 8090
	defaultEnv  = "development"

	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "emberfall"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultSiteName = "Emberfall Zone"

	defaultPendingTTLHours        = 24
	defaultRateLimitMax           = 5
	defaultRateLimitWindowMinutes = 15
	defaultDevRateLimitMax        = 100
	defaultDevRateLimitWindowMin  = 1
	defaultCountCacheTTLMinutes   = 5

	defaultReleaseTitle = "Emberfall"
	defaultReleaseDate  = "2026-11-20"
)
