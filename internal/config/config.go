// Package config loads the host configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full host configuration
type Config struct {
	HTTP   HTTPConfig   `yaml:"http"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Loader LoaderConfig `yaml:"loader"`
	Lua    LuaConfig    `yaml:"lua"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// StoreConfig selects and configures the settings store
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// MQTTConfig configures the MQTT event sink
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// LoaderConfig configures package loading
type LoaderConfig struct {
	RestartDelay time.Duration `yaml:"restart_delay"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	LoadOnStart  bool          `yaml:"load_on_start"`

	// URLs seeds the stored URL list the first time the host starts.
	URLs []string `yaml:"urls"`
}

// LuaConfig configures the Lua execution environment
type LuaConfig struct {
	ExecTimeout time.Duration `yaml:"exec_timeout"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: 8081},
		Log:  LogConfig{Level: "info"},
		Store: StoreConfig{
			Backend:    BackendSQLite,
			SQLitePath: "data/automata.db",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "automata",
			TopicPrefix: "automata",
			QoS:         1,
		},
		Loader: LoaderConfig{
			RestartDelay: 500 * time.Millisecond,
			FetchTimeout: 30 * time.Second,
			LoadOnStart:  true,
		},
		Lua: LuaConfig{ExecTimeout: 5 * time.Second},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from AUTOMATA_* variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("AUTOMATA_HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AUTOMATA_HTTP_PORT %q: %w", v, err)
		}
		c.HTTP.Port = port
	}
	if v, ok := lookup("AUTOMATA_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("AUTOMATA_STORE_BACKEND"); ok {
		c.Store.Backend = v
	}
	if v, ok := lookup("AUTOMATA_SQLITE_PATH"); ok {
		c.Store.SQLitePath = v
	}
	if v, ok := lookup("AUTOMATA_REDIS_ADDR"); ok {
		c.Store.RedisAddr = v
	}
	if v, ok := lookup("AUTOMATA_MQTT_BROKER"); ok {
		c.MQTT.Broker = v
		c.MQTT.Enabled = v != ""
	}
	return nil
}

// Validate checks the combined configuration
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS)
	}
	return nil
}
