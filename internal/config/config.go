package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

type Config struct {
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"password"`
	DBName     string `envconfig:"DB_NAME" default:"ledger"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// OperationTimeout bounds each ledger operation, lock waits included.
	OperationTimeout time.Duration `envconfig:"OPERATION_TIMEOUT" default:"5s"`
	// DBLockTimeout is applied as lock_timeout to every PostgreSQL transaction.
	DBLockTimeout         time.Duration `envconfig:"DB_LOCK_TIMEOUT" default:"3s"`
	AccountNumberAttempts int           `envconfig:"ACCOUNT_NUMBER_ATTEMPTS" default:"5"`

	LockBackend string        `envconfig:"LOCK_BACKEND" default:"local"`
	RedisURL    string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	LockExpiry  time.Duration `envconfig:"LOCK_EXPIRY" default:"10s"`

	RunMigrations bool `envconfig:"RUN_MIGRATIONS" default:"true"`
}

// Load reads an optional .env file (envFile, or ./.env when omitted) and then
// the process environment. Variables already set in the environment win.
func Load(envFile ...string) (*Config, error) {
	var err error
	if len(envFile) > 0 && envFile[0] != "" {
		err = godotenv.Load(envFile[0])
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		slog.Debug("No .env file loaded, using environment only", "error", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LockBackend {
	case LockBackendLocal, LockBackendRedis:
	default:
		return fmt.Errorf("unsupported LOCK_BACKEND %q", c.LockBackend)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unsupported LOG_FORMAT %q", c.LogFormat)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.AccountNumberAttempts < 0 {
		return fmt.Errorf("ACCOUNT_NUMBER_ATTEMPTS must not be negative")
	}
	return nil
}

// SlogLevel parses LogLevel, defaulting to info when unset.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unsupported LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

func (c *Config) GetDBConnectionString() string {
	sslMode := c.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, sslMode)
}
