package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type APIConfig struct {
	Port int `yaml:"port"`
	// AdminKey authenticates the job-authoring and directory-read endpoints.
	AdminKey string `yaml:"admin_key"`
	// PollLimit caps job-poll requests per agent per PollWindow.
	PollLimit  int           `yaml:"poll_limit"`
	PollWindow time.Duration `yaml:"poll_window"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type SchedulerConfig struct {
	// ReclaimInterval is the period of the stale-lease reclaimer.
	ReclaimInterval time.Duration `yaml:"reclaim_interval"`
	// StaleAfter is how long an agent may go without a heartbeat before it is
	// considered stale.
	StaleAfter time.Duration `yaml:"stale_after"`
}

type SecurityConfig struct {
	// JWTSecret signs the agent bearer tokens minted at registration.
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.PollLimit <= 0 {
		cfg.API.PollLimit = 60
	}
	if cfg.API.PollWindow <= 0 {
		cfg.API.PollWindow = time.Minute
	}
	if cfg.Scheduler.ReclaimInterval <= 0 {
		cfg.Scheduler.ReclaimInterval = time.Minute
	}
	if cfg.Scheduler.StaleAfter <= 0 {
		cfg.Scheduler.StaleAfter = 5 * time.Minute
	}
	if cfg.Security.TokenTTL <= 0 {
		cfg.Security.TokenTTL = 24 * time.Hour
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Security.JWTSecret == "" {
		return nil, errors.New("security.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
