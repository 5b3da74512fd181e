package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Environment   string `env:"ENV" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	TelegramToken string `env:"TELEGRAM_TOKEN"`

	Database struct {
		DSN            string        `env:"DSN"`
		MaxConns       int32         `env:"MAX_CONNS" envDefault:"10"`
		ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
		MigrateOnStart bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	} `envPrefix:"DB_"`

	Server struct {
		Port            string        `env:"PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
		RateLimit       int           `env:"RATE_LIMIT" envDefault:"100"` // запросов в минуту с одного IP
		CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	} `envPrefix:"SERVER_"`

	// Redis нужен только для распределённой блокировки фоновых задач
	Redis struct {
		Addr     string        `env:"ADDR"`
		Password string        `env:"PASSWORD"`
		DB       int           `env:"DB" envDefault:"0"`
		LockTTL  time.Duration `env:"LOCK_TTL" envDefault:"1m"`
	} `envPrefix:"REDIS_"`

	RabbitMQ struct {
		DSN            string        `env:"DSN"`
		Queue          string        `env:"QUEUE" envDefault:"waitlist_notifications"`
		PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"10s"`
	} `envPrefix:"RABBITMQ_"`

	Scheduling struct {
		AssignmentTTL        time.Duration `env:"ASSIGNMENT_TTL" envDefault:"24h"`
		WaitlistNotifyTTL    time.Duration `env:"WAITLIST_NOTIFY_TTL" envDefault:"2h"`
		SweepInterval        time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
		GenerationInterval   time.Duration `env:"GENERATION_INTERVAL" envDefault:"24h"`
		GenerationWeeks      int           `env:"GENERATION_WEEKS" envDefault:"4"`
		DetectionHorizonWeek int           `env:"DETECTION_HORIZON_WEEKS" envDefault:"4"`
	} `envPrefix:"SCHEDULING_"`
}

func Load() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}

	// Проверяем обязательные поля
	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for postgres storage")
		}
	case StorageDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

// LoadNotifier конфигурация воркера доставки: база ему не нужна, нужны очередь и бот
func LoadNotifier() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}

	if cfg.RabbitMQ.DSN == "" {
		return nil, fmt.Errorf("RABBITMQ_DSN is required for notifier")
	}
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required for notifier")
	}

	return cfg, nil
}

func parse() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			// Только первая ошибка, чтобы лог был читаемым
			return nil, fmt.Errorf("parse config: %w", aggErr.Errors[0])
		}
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
