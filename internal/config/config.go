package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT, shared with the identity service that issues tokens
	JWTSecret string

	// Gemini AI; an empty key disables question generation
	GeminiAPIKey         string
	GeminiConcurrentReqs int

	// Quiz
	PassMarkPercent int
	ViewerTimezone  *time.Location

	// Reminders
	ReminderCron          string
	ReminderIntervalHours int

	// Workers and limits
	WorkerCount     int
	RateLimitPerMin int
	UploadPath      string

	// Logging
	LogLevel string
	LogFile  string

	// SMTP
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                  getEnvOrDefault("PORT", "8080"),
		Env:                   getEnvOrDefault("ENV", "development"),
		DatabaseURL:           mustGetEnv("DATABASE_URL"),
		RedisURL:              mustGetEnv("REDIS_URL"),
		JWTSecret:             mustGetEnv("JWT_SECRET"),
		GeminiAPIKey:          getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiConcurrentReqs:  getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 3),
		PassMarkPercent:       clampPercent(getEnvAsIntOrDefault("PASS_MARK_PERCENT", 80)),
		ViewerTimezone:        getEnvAsLocationOrDefault("VIEWER_TIMEZONE", time.UTC),
		ReminderCron:          getEnvOrDefault("REMINDER_CRON", "0 9 * * 1-5"),
		ReminderIntervalHours: getEnvAsIntOrDefault("REMINDER_INTERVAL_HOURS", 72),
		WorkerCount:           getEnvAsIntOrDefault("WORKER_COUNT", 3),
		RateLimitPerMin:       getEnvAsIntOrDefault("RATE_LIMIT_PER_MIN", 120),
		UploadPath:            getEnvOrDefault("UPLOAD_PATH", "./uploads"),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:               getEnvOrDefault("LOG_FILE", "logs/app.log"),
		SMTPHost:              getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:              getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:              getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:              getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:              getEnvOrDefault("SMTP_FROM", "noreply@certtrack.app"),
		FrontendURL:           getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsLocationOrDefault(key string, defaultVal *time.Location) *time.Location {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	loc, err := time.LoadLocation(val)
	if err != nil {
		return defaultVal
	}
	return loc
}

func clampPercent(n int) int {
	return min(max(n, 0), 100)
}
