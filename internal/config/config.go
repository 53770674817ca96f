package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Backend names accepted in REX_BACKEND.
const (
	BackendMemory       = "memory"
	BackendTableStorage = "tablestorage"
	BackendPostgres     = "postgres"
	BackendRedis        = "redis"
)

type Config struct {
	Addr       string
	Backend    string
	LogLevel   string
	CORSOrigin string
	// Signing secret for bearer tokens.
	TokenSecret string
	MaxInFlight int
	// Connection settings, one per durable backend.
	TableStorageConnectionString string
	DatabaseURL                  string
	RedisURL                     string
}

func Load() Config {
	return Config{
		Addr:                         getenv("API_ADDR", ":8000"),
		Backend:                      strings.ToLower(getenv("REX_BACKEND", BackendMemory)),
		LogLevel:                     getenv("LOG_LEVEL", "info"),
		CORSOrigin:                   getenv("REX_CORS_ORIGIN", "*"),
		TokenSecret:                  getenv("REX_TOKEN_SECRET", "rex-dev-secret"),
		MaxInFlight:                  getenvInt("REX_MAX_IN_FLIGHT", 64),
		TableStorageConnectionString: getenv("TABLE_STORAGE_CONNECTION_STRING", ""),
		DatabaseURL:                  getenv("DATABASE_URL", ""),
		RedisURL:                     getenv("REDIS_URL", ""),
	}
}

// Validate reports every setting that would stop the server from starting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("API_ADDR is required"))
	}
	if c.MaxInFlight < 1 {
		errs = append(errs, fmt.Errorf("REX_MAX_IN_FLIGHT must be positive, got %d", c.MaxInFlight))
	}
	if strings.TrimSpace(c.TokenSecret) == "" {
		errs = append(errs, errors.New("REX_TOKEN_SECRET is required"))
	}

	switch c.Backend {
	case BackendMemory:
	case BackendTableStorage:
		if c.TableStorageConnectionString == "" {
			errs = append(errs, errors.New("TABLE_STORAGE_CONNECTION_STRING is required for the tablestorage backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
