package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backends.
const (
	CacheBackendFile     = "file"
	CacheBackendSQLite   = "sqlite"
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string

	// Backend
	ProjectKey       string
	BackendURL       string
	BackendTimeout   time.Duration
	DebugMode        bool
	InstallDate      int64
	OperationTimeout time.Duration

	// Circuit breaker
	BreakerEnabled          bool
	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold uint32

	// Pending purchase replay
	ReplayBackoffBase time.Duration
	ReplayBackoffMax  time.Duration

	// Cache
	CacheBackend string
	CacheDir     string
	CacheKey     string
	CacheTTL     time.Duration

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// RabbitMQ
	RabbitMQURL string

	// Store
	SandboxCatalog               string
	GooglePlayPackageName        string
	GooglePlayServiceAccountJSON string

	// MCP
	MCPAddr      string
	MCPAuthToken string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", ""),

		ProjectKey:       getEnv("ENTITLEKIT_PROJECT_KEY", ""),
		BackendURL:       getEnv("ENTITLEKIT_BACKEND_URL", "https://api.qonversion.io"),
		BackendTimeout:   getDurationEnv("ENTITLEKIT_BACKEND_TIMEOUT", 30*time.Second),
		DebugMode:        getBoolEnv("ENTITLEKIT_DEBUG_MODE", false),
		InstallDate:      getInt64Env("ENTITLEKIT_INSTALL_DATE", 0),
		OperationTimeout: getDurationEnv("ENTITLEKIT_OPERATION_TIMEOUT", time.Minute),

		BreakerEnabled:          getBoolEnv("ENTITLEKIT_BREAKER_ENABLED", true),
		BreakerMaxRequests:      getUint32Env("ENTITLEKIT_BREAKER_MAX_REQUESTS", 1),
		BreakerInterval:         getDurationEnv("ENTITLEKIT_BREAKER_INTERVAL", 60*time.Second),
		BreakerTimeout:          getDurationEnv("ENTITLEKIT_BREAKER_TIMEOUT", 30*time.Second),
		BreakerFailureThreshold: getUint32Env("ENTITLEKIT_BREAKER_FAILURE_THRESHOLD", 5),

		ReplayBackoffBase: getDurationEnv("ENTITLEKIT_REPLAY_BACKOFF_BASE", time.Second),
		ReplayBackoffMax:  getDurationEnv("ENTITLEKIT_REPLAY_BACKOFF_MAX", 5*time.Minute),

		CacheBackend: strings.ToLower(getEnv("ENTITLEKIT_CACHE_BACKEND", CacheBackendFile)),
		CacheDir:     getEnv("ENTITLEKIT_CACHE_DIR", defaultCacheDir()),
		CacheKey:     getEnv("ENTITLEKIT_CACHE_KEY", ""),
		CacheTTL:     getDurationEnv("ENTITLEKIT_CACHE_TTL", 0),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		SandboxCatalog:               getEnv("ENTITLEKIT_SANDBOX_CATALOG", ""),
		GooglePlayPackageName:        getEnv("GOOGLE_PLAY_PACKAGE_NAME", ""),
		GooglePlayServiceAccountJSON: getEnv("GOOGLE_PLAY_SERVICE_ACCOUNT_JSON", ""),

		MCPAddr:      getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case CacheBackendFile, CacheBackendSQLite:
	case CacheBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("ENTITLEKIT_CACHE_BACKEND=postgres requires DATABASE_URL")
		}
	case CacheBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("ENTITLEKIT_CACHE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown ENTITLEKIT_CACHE_BACKEND %q (want file, sqlite, postgres or redis)", c.CacheBackend)
	}
	if c.ReplayBackoffMax < c.ReplayBackoffBase {
		return fmt.Errorf("ENTITLEKIT_REPLAY_BACKOFF_MAX (%s) is below ENTITLEKIT_REPLAY_BACKOFF_BASE (%s)", c.ReplayBackoffMax, c.ReplayBackoffBase)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// SandboxMode reports whether purchases go to the in-memory sandbox store.
// That is always the case when no Google Play finalizer is configured.
func (c *Config) SandboxMode() bool {
	return c.GooglePlayPackageName == "" || c.GooglePlayServiceAccountJSON == ""
}

// SQLitePath is the database file used by the sqlite cache backend.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.CacheDir, "entitlekit.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUint32Env(key string, defaultValue uint32) uint32 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseUint(value, 10, 32); err == nil {
			return uint32(i)
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".entitlekit"
	}
	return filepath.Join(home, ".entitlekit")
}
