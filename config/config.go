// Package config loads process configuration from the environment. A .env
// file is read first when APP_ENV=local.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/warp/oee-tracker/production"
)

type Config struct {
	HTTP    HTTP
	Store   Store
	Logger  Logger
	Monitor Monitor
	OEE     OEE
	Parts   string `env:"PARTS"`
}

type HTTP struct {
	Host         string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"HTTP_PORT" envDefault:"3000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	CORSOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

func (h HTTP) Address() string { return fmt.Sprintf("%s:%d", h.Host, h.Port) }

type Store struct {
	Driver            string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath        string `env:"SQLITE_PATH" envDefault:"./data/oee.db"`
	MongoURI          string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase     string `env:"MONGO_DATABASE" envDefault:"oee"`
	MongoTransactions bool   `env:"MONGO_TRANSACTIONS" envDefault:"false"`
}

type Logger struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
	File   string `env:"LOG_FILE"`
}

type Monitor struct {
	OfflineThreshold time.Duration `env:"OFFLINE_THRESHOLD" envDefault:"10m"`
	Interval         time.Duration `env:"STATUS_INTERVAL" envDefault:"1m"`
}

type OEE struct {
	IdealCycleTime        time.Duration `env:"OEE_IDEAL_CYCLE_TIME" envDefault:"36s"`
	PlannedProductionTime time.Duration `env:"OEE_PLANNED_TIME" envDefault:"630m"`
}

// Calculator returns the OEE constants as a production.OEEConfig.
func (o OEE) Calculator() production.OEEConfig {
	return production.OEEConfig{IdealCycleTime: o.IdealCycleTime, PlannedProductionTime: o.PlannedProductionTime}
}

// Catalog parses PARTS; empty means the default product mix.
func (c *Config) Catalog() (*production.Catalog, error) {
	return production.ParseCatalog(c.Parts)
}

var drivers = []string{"sqlite", "mongo", "memory"}

// Load reads the environment, and the given .env files when APP_ENV=local.
func Load(path ...string) (*Config, error) {
	const op = "config.Load"

	if shouldLoadDotenv() {
		if err := godotenv.Load(path...); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: load .env: %w", op, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	valid := false
	for _, d := range drivers {
		valid = valid || d == c.Store.Driver
	}
	if !valid {
		return fmt.Errorf("STORE_DRIVER %q: must be one of %s", c.Store.Driver, strings.Join(drivers, ", "))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT %d: out of range", c.HTTP.Port)
	}
	if c.Monitor.OfflineThreshold <= 0 {
		return fmt.Errorf("OFFLINE_THRESHOLD must be positive")
	}
	if c.OEE.IdealCycleTime <= 0 || c.OEE.PlannedProductionTime <= 0 {
		return fmt.Errorf("OEE_IDEAL_CYCLE_TIME and OEE_PLANNED_TIME must be positive")
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("PARTS: %w", err)
	}
	return nil
}

func shouldLoadDotenv() bool {
	return os.Getenv("APP_ENV") == "local"
}
