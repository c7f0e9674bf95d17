package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	// SessionLoadingDeadline bounds how long session restoration may keep
	// the client in a loading state before it is forcibly resolved.
	SessionLoadingDeadline time.Duration

	Identity IdentityConfig

	FlowStateBackend string // "memory" or "redis"
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	DBType        string
	DBHost        string
	DBPort        string
	DBName        string
	DBUser        string
	DBPassword    string
	DBSSLMode     string
	DBMaxIdleConn int
	DBMaxOpenConn int
}

// IdentityConfig points at the passwordless identity provider.
type IdentityConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:                getenv("APP_SERVICE", "lumera"),
		AppVersion:             getenv("APP_VERSION", "0.1.0"),
		Environment:            getenv("ENVIRONMENT", "development"),
		HTTPAddr:               getenv("HTTP_ADDR", ":8080"),
		LogLevel:               getenv("LOG_LEVEL", "info"),
		SessionLoadingDeadline: getenvDuration("SESSION_LOADING_DEADLINE", 4*time.Second),
		Identity: IdentityConfig{
			BaseURL: strings.TrimRight(getenv("IDENTITY_BASE_URL", "http://localhost:9999"), "/"),
			APIKey:  strings.TrimSpace(getenv("IDENTITY_API_KEY", "")),
			Timeout: getenvDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},
		FlowStateBackend: strings.ToLower(getenv("FLOWSTATE_BACKEND", "memory")),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		RedisDB:          getenvInt("REDIS_DB", 0),
		DBType:           getenv("DATABASE_TYPE", "postgres"),
		DBHost:           getenv("DATABASE_HOST", "localhost"),
		DBPort:           getenv("DATABASE_PORT", "5432"),
		DBName:           getenv("DATABASE_NAME", "lumera"),
		DBUser:           getenv("DATABASE_USER", "postgres"),
		DBPassword:       getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:        getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:    getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:    getenvInt("DATABASE_MAX_OPEN_CONN", 10),
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
