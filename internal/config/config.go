package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the banking service.
type Config struct {
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisAddr string
	NatsURL   string

	JWTSecret string
	JWTExpiry time.Duration
	OTPTTL    time.Duration

	LoginRateLimit  int
	LoginRateWindow time.Duration

	LogLevel       string
	LogFormat      string
	MigrateOnStart bool
	ServerPort     int
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory, if present, is loaded first and never
// overrides variables already set in the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	jwtExpiry, err := getEnvDuration("JWT_EXPIRY", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY: %w", err)
	}

	otpTTL, err := getEnvDuration("OTP_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid OTP_TTL: %w", err)
	}

	rateLimit, err := getEnvInt("LOGIN_RATE_LIMIT", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_RATE_LIMIT: %w", err)
	}

	rateWindow, err := getEnvDuration("LOGIN_RATE_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_RATE_WINDOW: %w", err)
	}

	migrate, err := getEnvBool("MIGRATE_ON_START", true)
	if err != nil {
		return nil, fmt.Errorf("invalid MIGRATE_ON_START: %w", err)
	}

	serverPort, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	cfg := &Config{
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          dbPort,
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "webbank"),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		NatsURL:         getEnv("NATS_URL", ""),
		JWTSecret:       getEnv("JWT_SECRET", "change-me-in-production"),
		JWTExpiry:       jwtExpiry,
		OTPTTL:          otpTTL,
		LoginRateLimit:  rateLimit,
		LoginRateWindow: rateWindow,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		MigrateOnStart:  migrate,
		ServerPort:      serverPort,
	}

	if cfg.JWTExpiry <= 0 {
		return nil, fmt.Errorf("invalid JWT_EXPIRY: must be positive")
	}
	if cfg.OTPTTL <= 0 {
		return nil, fmt.Errorf("invalid OTP_TTL: must be positive")
	}
	if cfg.LoginRateLimit < 1 || cfg.LoginRateWindow <= 0 {
		return nil, fmt.Errorf("invalid LOGIN_RATE_LIMIT/LOGIN_RATE_WINDOW: must be positive")
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	return strconv.Atoi(val)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	return strconv.ParseBool(val)
}

// getEnvDuration accepts Go duration strings ("90s", "1h") or a bare number,
// read as minutes.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	if minutes, err := strconv.Atoi(val); err == nil {
		return time.Duration(minutes) * time.Minute, nil
	}
	return time.ParseDuration(val)
}
