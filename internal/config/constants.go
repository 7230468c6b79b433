package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	// EnvPrefix prefixes every environment override, e.g. PAPERGRADE_JWT_SECRET.
	EnvPrefix = "PAPERGRADE_"

	defaultPort        = 3480
	defaultEnv         = "development"
	defaultDBHost      = "127.0.0.1"
	defaultDBPort      = 3306
	defaultDBUser      = "root"
	defaultDBPassword  = "password"
	defaultDBName      = "papergrade"
	defaultDBCharset   = "utf8mb4"
	defaultDBLoc       = "Local"
	defaultRedisHost   = "localhost"
	defaultRedisPort   = 6379
	defaultRedisDB     = 0
	defaultStorage     = "local"
	defaultMaxPages    = 10
	defaultMaxUploadMB = 15
	defaultMaxEdge     = 2048
	defaultAnalyzerTTL = 120 // seconds
	defaultRateLimit   = 20  // grading requests per IP per minute
)
