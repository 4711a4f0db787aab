package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       string

	// Frontend URL
	FrontendURL string

	// Service URLs
	SessionServiceURL string

	// Sessions
	SessionDurationHours            int
	SessionCookieName               string
	SessionCookieSecure             bool
	SessionCleanupIntervalMinutes   int
	ImpersonationMaxDurationMinutes int
	ImpersonationRestrictedActions  []string
	ImpersonationStartMaxPerHour    int
	WebSocketConnectMaxPerMinute    int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// MinIO Configuration
	MinIOServerURL    string
	MinIORootUser     string
	MinIORootPassword string
	MinIOUseSSL       bool

	// Audit archive
	AuditArchiveEnabled   bool
	AuditArchiveBucket    string
	AuditArchiveBatchSize int
}

var cfg *Config

// LoadConfig loads configuration from environment variables, reading the
// first .env file found. It returns that file's path, or "" when none exists.
func LoadConfig() string {
	envPaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	loadedFrom := ""
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			loadedFrom = path
			break
		}
	}

	cfg = FromEnv()
	return loadedFrom
}

// FromEnv builds a Config from the process environment without touching .env files.
func FromEnv() *Config {
	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "linkforge"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-this"),

		// Redis (empty host disables distributed job locks)
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		SessionServiceURL: getEnv("SESSION_SERVICE_URL", "http://localhost:8006"),

		// Sessions
		SessionDurationHours:            getEnvAsInt("SESSION_DURATION_HOURS", 24),
		SessionCookieName:               getEnv("SESSION_COOKIE_NAME", "session_token"),
		SessionCookieSecure:             getEnvAsBool("SESSION_COOKIE_SECURE", false),
		SessionCleanupIntervalMinutes:   getEnvAsInt("SESSION_CLEANUP_INTERVAL_MINUTES", 5),
		ImpersonationMaxDurationMinutes: getEnvAsInt("IMPERSONATION_MAX_DURATION_MINUTES", 120),
		ImpersonationRestrictedActions:  getEnvAsList("IMPERSONATION_RESTRICTED_ACTIONS", nil),
		ImpersonationStartMaxPerHour:    getEnvAsInt("IMPERSONATION_START_MAX_PER_HOUR", 30),
		WebSocketConnectMaxPerMinute:    getEnvAsInt("WS_CONNECT_MAX_PER_MINUTE", 30),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
		LogJSON:  getEnvAsBool("LOG_JSON", false),

		// MinIO Configuration
		MinIOServerURL:    getEnv("MINIO_SERVER_URL", "http://localhost:9000"),
		MinIORootUser:     getEnv("MINIO_ROOT_USER", "minioadmin"),
		MinIORootPassword: getEnv("MINIO_ROOT_PASSWORD", "minioadmin"),
		MinIOUseSSL:       getEnvAsBool("MINIO_USE_SSL", false),

		// Audit archive
		AuditArchiveEnabled:   getEnvAsBool("AUDIT_ARCHIVE_ENABLED", false),
		AuditArchiveBucket:    getEnv("AUDIT_ARCHIVE_BUCKET", "linkforge-audit"),
		AuditArchiveBatchSize: getEnvAsInt("AUDIT_ARCHIVE_BATCH_SIZE", 50),
	}
}

// GetConfig returns the current configuration
func GetConfig() *Config {
	if cfg == nil {
		LoadConfig()
	}
	return cfg
}

// SessionDuration returns the lifetime of a freshly created session
func (c *Config) SessionDuration() time.Duration {
	if c.SessionDurationHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.SessionDurationHours) * time.Hour
}

// ImpersonationMaxDuration returns how long an impersonation may run before it is reported as overdue
func (c *Config) ImpersonationMaxDuration() time.Duration {
	if c.ImpersonationMaxDurationMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.ImpersonationMaxDurationMinutes) * time.Minute
}

// CleanupInterval returns the janitor cadence
func (c *Config) CleanupInterval() time.Duration {
	if c.SessionCleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SessionCleanupIntervalMinutes) * time.Minute
}

// ServicePort extracts the port from SessionServiceURL
func (c *Config) ServicePort() string {
	parts := strings.Split(c.SessionServiceURL, ":")
	if len(parts) < 3 || parts[2] == "" {
		return "8006"
	}
	return strings.TrimSuffix(parts[2], "/")
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer with default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
