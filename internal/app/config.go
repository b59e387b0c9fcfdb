package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// RedisAddr enables the unread-count cache when non-empty.
	RedisAddr      string
	UnreadCacheTTL time.Duration

	// JWTSecret verifies session tokens minted by the accounts service.
	// The server refuses to start without one; silently accepting
	// unauthenticated traffic is not a fallback.
	JWTSecret string

	// ConversationLimit caps chat-log fetches to the newest n messages.
	// 0 keeps the full history.
	ConversationLimit int

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("SOUK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("SOUK_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("SOUK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("SOUK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("SOUK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("SOUK_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("SOUK_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("SOUK_DATABASE_URL", ""),
		DBSchema:    EnvString("SOUK_DB_SCHEMA", "souk"),
		DBMaxConns:  EnvInt32("SOUK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("SOUK_DB_MIN_CONNS", 0),

		RedisAddr:      EnvString("SOUK_REDIS_ADDR", ""),
		UnreadCacheTTL: EnvDuration("SOUK_UNREAD_CACHE_TTL", 5*time.Minute),

		JWTSecret: EnvString("SOUK_JWT_SECRET", ""),

		ConversationLimit: EnvInt("SOUK_CONVERSATION_LIMIT", 0),

		ReadinessRequireDB: EnvBool("SOUK_READINESS_REQUIRE_DB", false),
	}
}
