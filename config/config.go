package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the alerts service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Citizen auth
	JWTSecret string

	// Shared secret for the service status webhook
	ServiceKey string

	// Proof storage
	UploadsDir     string
	PublicBasePath string
	MaxUploadBytes int64
	MaxUploadFiles int
	FFmpegPath     string

	// Alert creation carries a bounded timeout proportional to file count
	ProcessTimeoutBase    time.Duration
	ProcessTimeoutPerFile time.Duration
	ProcessWorkers        int

	// Nearby query defaults
	DefaultNearbyMeters float64

	// RabbitMQ (optional; events are skipped when the URL is empty)
	AMQPUrl      string
	AMQPExchange string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "alerts"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		JWTSecret:  getEnv("JWT_SECRET", "dev-secret"),
		ServiceKey: getEnv("SERVICE_WEBHOOK_KEY", ""),

		UploadsDir:     getEnv("UPLOADS_DIR", "uploads"),
		PublicBasePath: getEnv("UPLOADS_PUBLIC_PATH", "/uploads"),
		MaxUploadBytes: int64(getIntEnv("MAX_UPLOAD_MB", 50)) * 1024 * 1024,
		MaxUploadFiles: getIntEnv("MAX_UPLOAD_FILES", 5),
		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),

		ProcessTimeoutBase:    getDurationEnv("PROCESS_TIMEOUT_BASE", 30*time.Second),
		ProcessTimeoutPerFile: getDurationEnv("PROCESS_TIMEOUT_PER_FILE", 30*time.Second),
		ProcessWorkers:        getIntEnv("PROCESS_WORKERS", 3),

		DefaultNearbyMeters: float64(getIntEnv("NEARBY_DEFAULT_METERS", 5000)),

		AMQPUrl:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "alerts"),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
