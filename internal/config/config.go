package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogLevel              string
	LogFormat             string
	BusinessTimezone      string
	BusinessDayCutoffHour int
	InvoiceNumberRetries  int
	OperationTimeout      time.Duration
}

// Load reads the process environment, after merging an optional .env file.
// Values already present in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL := getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1, 0)
	cutoff := getEnvInt("BUSINESS_DAY_CUTOFF_HOUR", 2, 0, 23)
	retries := getEnvInt("INVOICE_NUMBER_RETRIES", 3, 1, 20)
	timeout := getEnvInt("OPERATION_TIMEOUT_SECONDS", 15, 1, 0)

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(getEnv("LOG_FORMAT", "console")),
		BusinessTimezone:      getEnv("BUSINESS_TIMEZONE", "UTC"),
		BusinessDayCutoffHour: cutoff,
		InvoiceNumberRetries:  retries,
		OperationTimeout:      time.Duration(timeout) * time.Second,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves BusinessTimezone, falling back to UTC.
func (c Config) Location() (*time.Location, error) {
	if c.BusinessTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC, fmt.Errorf("load business timezone %q: %w", c.BusinessTimezone, err)
	}
	return loc, nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getEnvInt parses key as an int, returning fallback when unset, malformed or
// outside [lo, hi]. A hi of zero means unbounded.
func getEnvInt(key string, fallback int, lo int, hi int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < lo || (hi > 0 && val > hi) {
		return fallback
	}
	return val
}
