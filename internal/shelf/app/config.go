package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config holds the CLI settings read from the environment.
type Config struct {
	APIURL string `env:"SHELF_API_URL" envDefault:"http://localhost:3000"`

	StoreDriver    string `env:"SHELF_STORE_DRIVER" envDefault:"sqlite"`
	StorePath      string `env:"SHELF_STORE_PATH"`     // default: <user config dir>/shelf/session.db
	StoreKeyFile   string `env:"SHELF_STORE_KEY_FILE"` // optional: encrypts stored values
	RedisURL       string `env:"SHELF_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisNamespace string `env:"SHELF_REDIS_NAMESPACE" envDefault:"shelf"`

	RefreshBuffer      time.Duration `env:"SHELF_REFRESH_BUFFER" envDefault:"5m"`
	MinRefreshInterval time.Duration `env:"SHELF_MIN_REFRESH_INTERVAL" envDefault:"30s"`
	ProfileFreshness   time.Duration `env:"SHELF_PROFILE_FRESHNESS" envDefault:"5m"`
	HTTPTimeout        time.Duration `env:"SHELF_HTTP_TIMEOUT" envDefault:"30s"`
	LogoutTimeout      time.Duration `env:"SHELF_LOGOUT_TIMEOUT" envDefault:"5s"`

	Env       string `env:"ENV" envDefault:"prod"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"warn"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadConfig reads an optional .env file from the working directory, then
// the process environment. Variables already set win over the file.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() (Config, error) {
	switch c.StoreDriver {
	case DriverSQLite, DriverMemory, DriverRedis:
	default:
		return c, fmt.Errorf("unknown store driver %q (want sqlite, memory or redis)", c.StoreDriver)
	}

	if c.StoreDriver == DriverSQLite && c.StorePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return c, fmt.Errorf("no SHELF_STORE_PATH and no user config dir: %w", err)
		}
		c.StorePath = filepath.Join(dir, "shelf", "session.db")
	}
	return c, nil
}
