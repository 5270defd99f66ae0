package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort     string
	DatabaseType   string
	DatabasePath   string
	DatabaseURL    string
	MigrationsPath string
	TemplatesPath  string
	StaticPath     string

	AppBaseURL string

	// AuthSecret signs remember-me tokens and CSRF tokens.
	AuthSecret string

	RememberDuration time.Duration
	MaxLoginAttempts int

	SESRegion string
	FromEmail string
	FromName  string

	Debug bool
}

// Load reads configuration from the environment (and an optional .env file)
// with sensible defaults.
func Load() *Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		ServerPort:       getEnv("PORT", "8080"),
		DatabaseType:     getEnv("DB_TYPE", "sqlite"),
		DatabasePath:     getEnv("DB_PATH", "./accounthub.db"),
		DatabaseURL:      getEnv("DB_URL", ""),
		MigrationsPath:   getEnv("MIGRATIONS_PATH", "./migrations"),
		TemplatesPath:    getEnv("TEMPLATES_PATH", "./internal/templates"),
		StaticPath:       getEnv("STATIC_PATH", "./static"),
		AppBaseURL:       getEnv("APP_BASE_URL", "http://localhost:8080"),
		AuthSecret:       getEnv("AUTH_SECRET", "dev-only-secret"),
		RememberDuration: getDuration("REMEMBER_DURATION", 30*24*time.Hour),
		MaxLoginAttempts: getInt("MAX_LOGIN_ATTEMPTS", 5),
		SESRegion:        getEnv("SES_REGION", "eu-west-1"),
		FromEmail:        getEnv("SES_FROM_EMAIL", ""),
		FromName:         getEnv("SES_FROM_NAME", "AccountHub"),
		Debug:            getEnv("DEBUG", "") != "",
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
