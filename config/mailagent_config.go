package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Storage
	StoragePath string
	ArchivePath string

	// Redis (optional; memory cache is used when unset)
	RedisURL string

	// JWT / sessions
	JWTSecret      string
	SessionTimeout time.Duration

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Worker
	WorkerCount int

	// Cache
	CacheDefaultTTL time.Duration

	// Bulk mutation
	BatchSize  int
	BatchDelay time.Duration

	// Analysis
	AnalysisTimeout  time.Duration
	AnalysisParallel bool

	// Ingest
	IngestFetchWorkers int
	MaxTestEmails      int
	GmailQPS           float64

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Storage
		StoragePath: getEnv("STORAGE_PATH", "./data"),
		ArchivePath: getEnv("ARCHIVE_PATH", "./data/archives"),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// JWT / sessions
		JWTSecret:      getEnv("JWT_SECRET", ""),
		SessionTimeout: time.Duration(getEnvInt("SESSION_TIMEOUT_HOURS", 24)) * time.Hour,

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// Worker
		WorkerCount: getEnvInt("WORKER_COUNT", 1),

		// Cache
		CacheDefaultTTL: time.Duration(getEnvInt("CACHE_DEFAULT_TTL_SEC", 300)) * time.Second,

		// Bulk mutation
		BatchSize:  getEnvInt("BATCH_SIZE", 50),
		BatchDelay: time.Duration(getEnvInt("BATCH_DELAY_MS", 100)) * time.Millisecond,

		// Analysis
		AnalysisTimeout:  time.Duration(getEnvInt("ANALYSIS_TIMEOUT_MS", 5000)) * time.Millisecond,
		AnalysisParallel: getEnvBool("ANALYSIS_PARALLEL", true),

		// Ingest
		IngestFetchWorkers: getEnvInt("INGEST_FETCH_WORKERS", 4),
		MaxTestEmails:      getEnvInt("MAX_TEST_EMAILS", 0),
		GmailQPS:           getEnvFloat("GMAIL_QPS", 10),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}

	if cfg.IsProduction() && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-only-secret"
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 50 {
		cfg.BatchSize = 50
	}
	if cfg.BatchDelay < 100*time.Millisecond {
		cfg.BatchDelay = 100 * time.Millisecond
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
