package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mwork/credits-api/internal/pkg/storage"
)

const defaultJWTSecret = "super-secret-key-change-me"

type Config struct {
	// Server
	Port string
	Env  string

	// Database; empty runs the API on the in-memory repository
	DatabaseURL string

	// Redis; empty disables the balance cache and change notifications
	RedisURL        string
	BalanceCacheTTL time.Duration

	// JWT
	JWTSecret    string
	JWTAccessTTL time.Duration

	// CORS
	AllowedOrigins []string

	// Statement export storage (R2 or any S3-compatible endpoint)
	R2AccountID       string
	R2Endpoint        string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2BucketName      string
	R2PublicURL       string

	// Statement worker
	StatementPollInterval time.Duration
	StatementBatchSize    int

	// Logging
	LogLevel string
}

func Load() *Config {
	// Load .env file in development
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),
		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Redis
		RedisURL:        getEnv("REDIS_URL", ""),
		BalanceCacheTTL: parseDuration(getEnv("BALANCE_CACHE_TTL", "5m"), 5*time.Minute),

		// JWT
		JWTSecret:    getEnv("JWT_SECRET", defaultJWTSecret),
		JWTAccessTTL: parseDuration(getEnv("JWT_ACCESS_TTL", "15m"), 15*time.Minute),

		// CORS
		AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		// Storage
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2Endpoint:        getEnv("R2_ENDPOINT", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2AccessKeySecret: getEnv("R2_ACCESS_KEY_SECRET", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", "credit-statements"),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		// Statement worker
		StatementPollInterval: parseDuration(getEnv("STATEMENT_POLL_INTERVAL", "30s"), 30*time.Second),
		StatementBatchSize:    parseInt(getEnv("STATEMENT_BATCH_SIZE", "50"), 50),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}
}

// Validate rejects settings that must never reach production
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret || len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be set to at least 32 characters in production")
		}
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required in production")
		}
	}
	if c.JWTAccessTTL <= 0 {
		return errors.New("JWT_ACCESS_TTL must be positive")
	}
	return nil
}

// Storage returns the object storage settings for statement exports.
// A plain endpoint (MinIO) needs path-style addressing.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		AccountID:       c.R2AccountID,
		Endpoint:        c.R2Endpoint,
		AccessKeyID:     c.R2AccessKeyID,
		AccessKeySecret: c.R2AccessKeySecret,
		Bucket:          c.R2BucketName,
		PublicURL:       c.R2PublicURL,
		UsePathStyle:    c.R2AccountID == "" && c.R2Endpoint != "",
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseInt(s string, defaultValue int) int {
	value, err := strconv.Atoi(s)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func parseStringSlice(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
