// Package config содержит логику чтения конфигурации интернет-магазина.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultRunAddress = "localhost:3000"

// Config содержит параметры конфигурации интернет-магазина.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	JWTSecret   string `env:"JWT_SECRET"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	Storage StorageConfig `envPrefix:"STORAGE_"`
	S3      S3Config      `envPrefix:"S3_"`
	SMTP    SMTPConfig    `envPrefix:"SMTP_"`
	Redis   RedisConfig   `envPrefix:"REDIS_"`
	Admin   AdminConfig   `envPrefix:"ADMIN_"`

	OwnerEmail    string        `env:"OWNER_EMAIL" envDefault:"owner@example.com"`
	NotifyWorkers int           `env:"NOTIFY_WORKERS" envDefault:"4"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	// CORSOrigins перечисляет origin фронтенда через запятую.
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// StorageConfig описывает хранилище изображений товаров.
type StorageConfig struct {
	Disk       string `env:"DISK" envDefault:"local"`
	UploadDir  string `env:"UPLOAD_DIR" envDefault:"uploads"`
	PublicPath string `env:"PUBLIC_PATH" envDefault:"/uploads"`
}

// S3Config описывает подключение к S3-совместимому хранилищу.
type S3Config struct {
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"KEY"`
	SecretKey string `env:"SECRET"`
	PublicURL string `env:"URL"`
}

// SMTPConfig описывает почтовый сервер для уведомлений о заказах.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"shop@example.com"`
}

// RedisConfig описывает подключение к Redis для кэша каталога.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
}

// AdminConfig задаёт учётную запись администратора, создаваемую при старте.
type AdminConfig struct {
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Email    string `env:"EMAIL"`
}

// Enabled сообщает, заданы ли все поля учётной записи администратора.
func (a AdminConfig) Enabled() bool {
	return a.Username != "" && a.Password != "" && a.Email != ""
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envJWTSecret := cfg.JWTSecret

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret for signing bearer tokens")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.NotifyWorkers <= 0 {
		cfg.NotifyWorkers = 1
	}

	switch cfg.Storage.Disk {
	case "local":
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("storage disk s3 requires S3_BUCKET")
		}
	default:
		return nil, fmt.Errorf("unknown storage disk %q", cfg.Storage.Disk)
	}

	return cfg, nil
}
