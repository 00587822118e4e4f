// Package config loads docsync settings from the environment and an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brunoga/docsync/internal/logger"
)

// Duration is a time.Duration read from strings such as "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" {
		d.Duration = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d.Duration = time.Duration(n) * time.Millisecond
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must be like \"5s\" or integer milliseconds: %w", err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type RESTConfig struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"`
	Space   string   `yaml:"space"`
	Timeout Duration `yaml:"timeout"`
}

type SimConfig struct {
	Clients int      `yaml:"clients"`
	Edits   int      `yaml:"edits"`
	Seed    int64    `yaml:"seed"`
	Delay   Duration `yaml:"delay"`
}

type Config struct {
	LogMode     string      `yaml:"log_mode"`
	BusyTimeout Duration    `yaml:"busy_timeout"`
	Redis       RedisConfig `yaml:"redis"`
	REST        RESTConfig  `yaml:"rest"`
	Sim         SimConfig   `yaml:"sim"`
}

func defaultConfig() Config {
	return Config{
		LogMode:     "development",
		BusyTimeout: Duration{10 * time.Second},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "docsync:changes",
		},
		REST: RESTConfig{
			BaseURL: "https://api.contentful.com",
			Timeout: Duration{30 * time.Second},
		},
		Sim: SimConfig{
			Clients: 3,
			Edits:   10,
			Seed:    1,
		},
	}
}

// FromEnv builds a Config from DOCSYNC_* variables on top of the defaults.
func FromEnv(log *logger.Logger) Config {
	cfg := defaultConfig()
	cfg.LogMode = getEnv("DOCSYNC_LOG_MODE", cfg.LogMode, log)
	cfg.BusyTimeout = getEnvAsDuration("DOCSYNC_BUSY_TIMEOUT", cfg.BusyTimeout, log)

	cfg.Redis.Addr = getEnv("DOCSYNC_REDIS_ADDR", cfg.Redis.Addr, log)
	cfg.Redis.Password = getEnv("DOCSYNC_REDIS_PASSWORD", cfg.Redis.Password, log)
	cfg.Redis.DB = getEnvAsInt("DOCSYNC_REDIS_DB", cfg.Redis.DB, log)
	cfg.Redis.Channel = getEnv("DOCSYNC_REDIS_CHANNEL", cfg.Redis.Channel, log)

	cfg.REST.BaseURL = getEnv("DOCSYNC_REST_URL", cfg.REST.BaseURL, log)
	cfg.REST.Token = getEnv("DOCSYNC_REST_TOKEN", cfg.REST.Token, log)
	cfg.REST.Space = getEnv("DOCSYNC_REST_SPACE", cfg.REST.Space, log)
	cfg.REST.Timeout = getEnvAsDuration("DOCSYNC_REST_TIMEOUT", cfg.REST.Timeout, log)

	cfg.Sim.Clients = getEnvAsInt("DOCSYNC_SIM_CLIENTS", cfg.Sim.Clients, log)
	cfg.Sim.Edits = getEnvAsInt("DOCSYNC_SIM_EDITS", cfg.Sim.Edits, log)
	cfg.Sim.Seed = int64(getEnvAsInt("DOCSYNC_SIM_SEED", int(cfg.Sim.Seed), log))
	cfg.Sim.Delay = getEnvAsDuration("DOCSYNC_SIM_DELAY", cfg.Sim.Delay, log)
	return cfg
}

// Load reads the environment and then overlays the YAML file at path. An
// empty path falls back to DOCSYNC_CONFIG; with neither set the environment
// alone is used.
func Load(path string, log *logger.Logger) (Config, error) {
	cfg := FromEnv(log)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("DOCSYNC_CONFIG"))
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch {
	case c.BusyTimeout.Duration < 0:
		return fmt.Errorf("busy_timeout must not be negative")
	case c.Sim.Clients < 1:
		return fmt.Errorf("sim.clients must be at least 1, got %d", c.Sim.Clients)
	case c.Sim.Edits < 0:
		return fmt.Errorf("sim.edits must not be negative, got %d", c.Sim.Edits)
	}
	return nil
}

func getEnv(key, defaultVal string, log *logger.Logger) string {
	log = logger.Or(log).With("env_var", key)
	val, ok := os.LookupEnv(key)
	if !ok {
		log.Debug("Environment variable not found, using default", "default", defaultVal)
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	log = logger.Or(log).With("env_var", key)
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		log.Warn("Environment variable could not be parsed as int, using default", "providedVal", valStr, "defaultVal", defaultVal, "error", err)
		return defaultVal
	}
	return i
}

func getEnvAsDuration(key string, defaultVal Duration, log *logger.Logger) Duration {
	log = logger.Or(log).With("env_var", key)
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		log.Warn("Environment variable could not be parsed as duration, using default", "providedVal", valStr, "defaultVal", defaultVal.String(), "error", err)
		return defaultVal
	}
	return Duration{d}
}
