package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	CacheBackendMemory    = "memory"
	CacheBackendFreeCache = "freecache"
)

type Config struct {
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	Server      ServerConfig
	PrimaryAPI  PrimaryAPIConfig
	FallbackAPI FallbackAPIConfig
	Retry       RetryConfig
	Cache       CacheConfig
}

type ServerConfig struct {
	Port         int           `env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" env-default:"120s"`
}

// PrimaryAPIConfig points at the forwarding proxy in front of the bulk
// currency table.
type PrimaryAPIConfig struct {
	BaseURL     string        `env:"PRIMARY_API_BASE_URL" env-default:"http://localhost:3000/api/monobank"`
	Token       string        `env:"PRIMARY_API_TOKEN"`
	TokenHeader string        `env:"PRIMARY_API_TOKEN_HEADER" env-default:"X-Token"`
	Timeout     time.Duration `env:"PRIMARY_API_TIMEOUT" env-default:"10s"`
	TableTTL    time.Duration `env:"PRIMARY_TABLE_TTL" env-default:"0s"`
	Pivot       string        `env:"PRIMARY_PIVOT" env-default:"UAH"`
}

type FallbackAPIConfig struct {
	BaseURL string        `env:"FALLBACK_API_BASE_URL" env-default:"https://open.er-api.com"`
	Timeout time.Duration `env:"FALLBACK_API_TIMEOUT" env-default:"10s"`
}

type RetryConfig struct {
	MaxRetries uint64        `env:"PROVIDER_MAX_RETRIES" env-default:"0"`
	Backoff    time.Duration `env:"PROVIDER_RETRY_BACKOFF" env-default:"200ms"`
}

type CacheConfig struct {
	Backend         string        `env:"CACHE_BACKEND" env-default:"memory"`
	TTL             time.Duration `env:"CACHE_TTL" env-default:"5m"`
	CleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" env-default:"1m"`
	SizeBytes       int           `env:"CACHE_SIZE_BYTES" env-default:"1048576"`
}

// LoadConfig reads an optional .env file (CONFIG_ENV_FILE, default ".env")
// and then the process environment.
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("CONFIG_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.Server.Port)
	}
	if c.PrimaryAPI.BaseURL == "" {
		return errors.New("PRIMARY_API_BASE_URL is required")
	}
	if c.FallbackAPI.BaseURL == "" {
		return errors.New("FALLBACK_API_BASE_URL is required")
	}
	if c.PrimaryAPI.Timeout <= 0 || c.FallbackAPI.Timeout <= 0 {
		return errors.New("provider timeouts must be positive")
	}
	if c.PrimaryAPI.TableTTL < 0 {
		return fmt.Errorf("invalid PRIMARY_TABLE_TTL: %s", c.PrimaryAPI.TableTTL)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("invalid CACHE_TTL: %s", c.Cache.TTL)
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("invalid CACHE_CLEANUP_INTERVAL: %s", c.Cache.CleanupInterval)
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendFreeCache:
		if c.Cache.SizeBytes <= 0 {
			return fmt.Errorf("invalid CACHE_SIZE_BYTES: %d", c.Cache.SizeBytes)
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND: %q", c.Cache.Backend)
	}

	return nil
}
