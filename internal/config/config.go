package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Realtime backends for the reply insert feed
const (
	RealtimeMemory   = "memory"
	RealtimePostgres = "postgres"
	RealtimeRedis    = "redis"
)

// Config holds all configuration for the application
type Config struct {
	Port              string
	DatabaseURL       string // postgres://... or mysql DSN; driver is detected from the prefix
	Version           string
	LogLevel          string
	SendGridAPIKey    string // SendGrid API key for operator notifications
	NotifyFromEmail   string // Sender address of notification emails
	DashboardURL      string // Base URL linked from notification emails
	AdminUsername     string
	AdminPassword     string
	AdminOperatorID   string        // Operator id the admin login acts as
	RealtimeBackend   string        // memory, postgres or redis
	RedisAddr         string        // Only used with the redis realtime backend
	RedisPassword     string        // Only used with the redis realtime backend
	RedisDB           int           // Only used with the redis realtime backend
	HeartbeatInterval time.Duration // Live channel liveness interval
	ProjectCacheTTL   time.Duration // API key to project resolution cache lifetime
	StoreMaxRetries   int           // Bounded retries for transient storage failures
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Version:           getEnv("VERSION", "1.0.0"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		NotifyFromEmail:   getEnv("NOTIFY_FROM_EMAIL", "noreply@feedbackhub.dev"),
		DashboardURL:      getEnv("DASHBOARD_URL", "http://localhost:8080"),
		AdminUsername:     os.Getenv("ADMIN_USERNAME"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		AdminOperatorID:   os.Getenv("ADMIN_OPERATOR_ID"),
		RealtimeBackend:   strings.ToLower(getEnv("REALTIME_BACKEND", RealtimeMemory)),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		ProjectCacheTTL:   getEnvDuration("PROJECT_CACHE_TTL", 5*time.Minute),
		StoreMaxRetries:   getEnvInt("STORE_MAX_RETRIES", 3),
	}

	return config
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or plain seconds ("30")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "feedbackhub").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}

// DebugMode reports whether verbose request logging is enabled
func (c *Config) DebugMode() bool {
	return getEnvBool("DEBUG", false) || strings.EqualFold(c.LogLevel, "debug")
}
