package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	AppName        string `env:"APP_NAME" envDefault:"tele-sticker-search"`
	AppEnvironment string `env:"APP_ENVIRONMENT" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	BotToken       string `env:"BOT_TOKEN"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DBHost        string `env:"DB_HOST" envDefault:"localhost"`
	DBPort        int    `env:"DB_PORT" envDefault:"5432"`
	DBName        string `env:"DB_NAME" envDefault:"stickers"`
	DBUsername    string `env:"DB_USERNAME" envDefault:"postgres"`
	DBPassword    string `env:"DB_PASSWORD"`
	DBSSLMode     string `env:"DB_SSL_MODE" envDefault:"disable"`

	CacheDriver   string        `env:"CACHE_DRIVER" envDefault:"memory"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`

	OCRApiKey   string        `env:"OCR_API_KEY"`
	OCREndpoint string        `env:"OCR_ENDPOINT" envDefault:"https://api.ocr.space/parse/image"`
	OCRRate     float64       `env:"OCR_RATE" envDefault:"1"`
	OCRBurst    int           `env:"OCR_BURST" envDefault:"3"`
	OCRTimeout  time.Duration `env:"OCR_TIMEOUT" envDefault:"30s"`
}

func (c *Config) Production() bool {
	return c.AppEnvironment == "production"
}

// DSN is the gorm postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUsername, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	switch c.CacheDriver {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("unknown cache driver %q", c.CacheDriver)
	}
	if c.OCRRate <= 0 || c.OCRBurst <= 0 {
		return errors.New("ocr rate and burst must be positive")
	}
	return nil
}

// NewLoadConfig reads the environment. Outside production a .env file in the
// working directory is loaded first when present.
func NewLoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	if !cfg.Production() {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err := env.Parse(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
