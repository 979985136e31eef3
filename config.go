package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration. It is built once in main and passed
// explicitly to every component that needs it.
type Config struct {
	AppEnv     string `yaml:"app_env"`
	ListenAddr string `yaml:"listen_addr"`
	DBURL      string `yaml:"db_url"`
	Timezone   string `yaml:"timezone"`

	// An empty Redis address runs without Redis.
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	// RefreshInterval drives the "today" pedometer refresh ticker.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// RescheduleDebounce delays reminder rebuilds after settings changes.
	RescheduleDebounce time.Duration `yaml:"reschedule_debounce"`
	// Placeholders picks how days without recorded data are filled: "random" or "zero".
	Placeholders string `yaml:"placeholders"`

	location *time.Location
}

// Location is the time zone calendar days are computed in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func defaultConfig() Config {
	var cfg Config
	cfg.AppEnv = "production"
	cfg.ListenAddr = ":3000"
	cfg.Timezone = "Local"
	cfg.RefreshInterval = 60 * time.Second
	cfg.RescheduleDebounce = 500 * time.Millisecond
	cfg.Placeholders = "random"
	return cfg
}

// loadConfig layers configuration: defaults, then .env (optional), then the
// YAML file at CONFIG_FILE (optional, default config.yaml), then environment
// variables, which win.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	// A missing .env is normal in containers.
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("APP_ENV", &cfg.AppEnv)
	setString("LISTEN_ADDR", &cfg.ListenAddr)
	setString("DB_URL", &cfg.DBURL)
	setString("TIMEZONE", &cfg.Timezone)
	setString("REDIS_ADDR", &cfg.Redis.Addr)
	setString("REDIS_PASSWORD", &cfg.Redis.Password)
	setString("PLACEHOLDERS", &cfg.Placeholders)

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	for key, dst := range map[string]*time.Duration{
		"REFRESH_INTERVAL":    &cfg.RefreshInterval,
		"RESCHEDULE_DEBOUNCE": &cfg.RescheduleDebounce,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.DBURL == "" {
		return errors.New("DB_URL is not set")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.location = loc
	if c.RefreshInterval <= 0 {
		return errors.New("refresh_interval must be positive")
	}
	if c.RescheduleDebounce < 0 {
		return errors.New("reschedule_debounce must not be negative")
	}
	if c.Placeholders != "random" && c.Placeholders != "zero" {
		return fmt.Errorf("placeholders must be random or zero, got %q", c.Placeholders)
	}
	return nil
}
