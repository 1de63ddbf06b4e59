package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Drivers selectable via DB_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
)

// Config holds the process configuration. Values come from the environment
// (optionally a .env file); the binary's flags may override a subset.
type Config struct {
	Addr       string
	Driver     string
	SQLitePath string
	BoltPath   string
	RedisURL   string
	BaseURL    string
	MaxBytes   int
	TestMode   bool
}

// Load reads configuration from the environment. A .env file is honored when
// present and silently skipped otherwise.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:       getEnv("ADDR", ":8080"),
		Driver:     getEnv("DB_DRIVER", ""),
		SQLitePath: getEnv("SQLITE_DB_PATH", ".data/pastebin.sqlite"),
		BoltPath:   getEnv("BOLT_DB_PATH", ".data/pastebin.bolt"),
		RedisURL:   getEnv("REDIS_URL", ""),
		BaseURL:    getEnv("BASE_URL", ""),
		MaxBytes:   getEnvInt("MAX_BYTES", 1_048_576),
		TestMode:   getEnv("TEST_MODE", "") == "1",
	}

	switch cfg.Driver {
	case DriverSQLite, DriverBolt, DriverRedis:
	case "":
		// Auto-pick: prefer the shared store when it is configured,
		// otherwise fall back to the local embedded one.
		if cfg.RedisURL != "" {
			cfg.Driver = DriverRedis
		} else {
			cfg.Driver = DriverSQLite
		}
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q (want sqlite, bolt or redis)", cfg.Driver)
	}

	if cfg.Driver == DriverRedis && cfg.RedisURL == "" {
		return nil, fmt.Errorf("DB_DRIVER=redis requires REDIS_URL")
	}
	if cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("MAX_BYTES must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
