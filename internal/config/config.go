// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	MongoURI      string // MongoDB connection string (optional, uses in-memory if not set)
	MongoDatabase string

	// External adapters
	HFToken        string // Hugging Face API token (optional, semantic checks skipped if not set)
	HFInferenceURL string
	GeoAPIBase     string // IP geolocation provider base URL

	// Scoring thresholds
	BlockThreshold    int // checkout score above this hard-blocks
	ComboThreshold    int // velocity + semantic combined score above this hard-blocks
	LoginFlagScore    int // login score above this flags the attempt
	ScanDangerousMax  int // scan scores below this are dangerous
	ScanSuspiciousMax int // scan scores below this (and >= dangerous) are suspicious

	// Velocity windows
	DeviceVelocityWindow time.Duration
	DeviceVelocityMax    int // distinct device hashes allowed within the window
	PlainIPWindow        time.Duration
	PlainIPMax           int // distinct plain IPs allowed within the window
	LoginIPWindow        time.Duration
	LoginIPMax           int // distinct login IPs allowed within the window

	// OTP settings
	OTPTTL         time.Duration
	OTPMaxAttempts int

	// Security
	RateLimitRPS int
}

const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultMongoDatabase     = "fraudguard"
	DefaultGeoAPIBase        = "https://ipapi.co"
	DefaultBlockThreshold    = 60
	DefaultComboThreshold    = 70
	DefaultLoginFlagScore    = 60
	DefaultScanDangerousMax  = 30
	DefaultScanSuspiciousMax = 80
	DefaultRateLimit         = 100
	DefaultOTPMaxAttempts    = 3
)

// Default time windows
const (
	DefaultDeviceVelocityWindow = 10 * time.Minute
	DefaultPlainIPWindow        = 5 * time.Minute
	DefaultLoginIPWindow        = 10 * time.Minute
	DefaultOTPTTL               = 10 * time.Minute
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		MongoURI:             os.Getenv("MONGODB_URI"), // Optional, uses in-memory if not set
		MongoDatabase:        getEnv("MONGODB_DATABASE", DefaultMongoDatabase),
		HFToken:              os.Getenv("HF_TOKEN"), // Optional, semantic checks degrade gracefully
		HFInferenceURL:       os.Getenv("HF_INFERENCE_URL"),
		GeoAPIBase:           getEnv("GEO_API_BASE", DefaultGeoAPIBase),
		BlockThreshold:       getEnvInt("BLOCK_THRESHOLD", DefaultBlockThreshold),
		ComboThreshold:       getEnvInt("COMBO_THRESHOLD", DefaultComboThreshold),
		LoginFlagScore:       getEnvInt("LOGIN_FLAG_SCORE", DefaultLoginFlagScore),
		ScanDangerousMax:     getEnvInt("SCAN_DANGEROUS_MAX", DefaultScanDangerousMax),
		ScanSuspiciousMax:    getEnvInt("SCAN_SUSPICIOUS_MAX", DefaultScanSuspiciousMax),
		DeviceVelocityWindow: getEnvDuration("DEVICE_VELOCITY_WINDOW", DefaultDeviceVelocityWindow),
		DeviceVelocityMax:    getEnvInt("DEVICE_VELOCITY_MAX", 3),
		PlainIPWindow:        getEnvDuration("PLAIN_IP_WINDOW", DefaultPlainIPWindow),
		PlainIPMax:           getEnvInt("PLAIN_IP_MAX", 2),
		LoginIPWindow:        getEnvDuration("LOGIN_IP_WINDOW", DefaultLoginIPWindow),
		LoginIPMax:           getEnvInt("LOGIN_IP_MAX", 3),
		OTPTTL:               getEnvDuration("OTP_TTL", DefaultOTPTTL),
		OTPMaxAttempts:       getEnvInt("OTP_MAX_ATTEMPTS", DefaultOTPMaxAttempts),
		RateLimitRPS:         getEnvInt("RATE_LIMIT_RPS", DefaultRateLimit),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are coherent
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}

	if c.BlockThreshold < 0 || c.BlockThreshold > 100 {
		return fmt.Errorf("BLOCK_THRESHOLD must be in [0, 100], got %d", c.BlockThreshold)
	}

	if c.ScanDangerousMax >= c.ScanSuspiciousMax {
		return fmt.Errorf("SCAN_DANGEROUS_MAX (%d) must be below SCAN_SUSPICIOUS_MAX (%d)",
			c.ScanDangerousMax, c.ScanSuspiciousMax)
	}

	if c.MongoURI != "" && c.MongoDatabase == "" {
		return fmt.Errorf("MONGODB_DATABASE is required when MONGODB_URI is set")
	}

	if c.OTPMaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1, got %d", c.OTPMaxAttempts)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
