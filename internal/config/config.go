// Package config reads process settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/galaxy"
)

// Config holds every STAR_* setting.
type Config struct {
	Seed            int64         `env:"SEED" envDefault:"42"`
	DBPath          string        `env:"DB_PATH" envDefault:"data/star-exchange.db"`
	APIPort         int           `env:"API_PORT" envDefault:"8080"`
	AdminKey        string        `env:"ADMIN_KEY"`
	RelayKey        string        `env:"RELAY_KEY"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	TickInterval    time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	SecondsPerTick  uint64        `env:"SECONDS_PER_TICK" envDefault:"60"`
	EconomyInterval uint64        `env:"ECONOMY_INTERVAL" envDefault:"3600"`
	Systems         int           `env:"SYSTEMS" envDefault:"24"`
	GalaxyRadius    float64       `env:"GALAXY_RADIUS" envDefault:"60"`
	RandomOrgKey    string        `env:"RANDOM_ORG_KEY"`
	SaveEvery       uint64        `env:"SAVE_EVERY" envDefault:"86400"` // Game seconds between autosaves
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

const prefix = "STAR_"

// Default returns the settings used when no variables are set.
func Default() Config {
	cfg, err := parse(map[string]string{})
	if err != nil {
		panic(err) // Defaults are constants.
	}
	return cfg
}

// Load reads STAR_* variables from the process environment over the defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, cfg.validate()
}

func parse(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix, Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.SecondsPerTick == 0:
		return fmt.Errorf("STAR_SECONDS_PER_TICK must be positive")
	case c.EconomyInterval == 0:
		return fmt.Errorf("STAR_ECONOMY_INTERVAL must be positive")
	case c.Systems < 1:
		return fmt.Errorf("STAR_SYSTEMS must be at least 1")
	case c.TickInterval <= 0:
		return fmt.Errorf("STAR_TICK_INTERVAL must be positive")
	}
	return nil
}

// Economy returns the economy tuning for these settings.
func (c Config) Economy() economy.Config {
	cfg := economy.DefaultConfig()
	cfg.UpdateInterval = c.EconomyInterval
	return cfg
}

// Galaxy returns the galaxy generation parameters for these settings.
func (c Config) Galaxy() galaxy.GenConfig {
	return galaxy.GenConfig{Systems: c.Systems, Seed: c.Seed, Radius: c.GalaxyRadius}
}
