package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const devJWTSecret = "dev-secret-change-in-production"

// Supported credential store backends.
const (
	StoreMongo  = "mongo"
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

var ErrProductionSecret = errors.New("JWT_SECRET must be set in production environment")

type Config struct {
	Port     string
	Env      string
	LogLevel slog.Level

	StoreDriver     string
	StoreTimeout    time.Duration
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	DatabaseDSN     string

	JWTSecret string
	JWTExpiry time.Duration
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
		MongoURI:        getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "tableserve"),
		MongoCollection: getEnv("MONGO_COLLECTION", "users"),
		DatabaseDSN:     getEnv("DATABASE_DSN", "root:password@tcp(127.0.0.1:3306)/tableserve?parseTime=true"),
		JWTSecret:       getEnv("JWT_SECRET", devJWTSecret),
	}

	var err error
	if cfg.JWTExpiry, err = getDuration("JWT_EXPIRY", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.StoreTimeout, err = getDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	switch cfg.StoreDriver {
	case StoreMongo, StoreMySQL, StoreMemory:
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER: unsupported driver %q", cfg.StoreDriver)
	}

	if cfg.IsProduction() && cfg.JWTSecret == devJWTSecret {
		return Config{}, ErrProductionSecret
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in the production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, v)
	}
	return d, nil
}
