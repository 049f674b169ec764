package config

import "fmt"

// DefaultBackendConfigPath is the conventional location of the backend config.
const DefaultBackendConfigPath = "config/backend.json"

// Key-value stores available to the development backend.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// BackendConfig configures the development backend binary.
type BackendConfig struct {
	Listen    string `mapstructure:"listen" json:"listen"`
	RedisAddr string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db" json:"redis_db"`
	Store     string `mapstructure:"store" json:"store"`
	DBPath    string `mapstructure:"db_path" json:"db_path"`
	MaxPoints int    `mapstructure:"max_points" json:"max_points"`
	LogLevel  string `mapstructure:"log_level" json:"log_level"`
}

func setBackendDefaults(v interface{ SetDefault(string, interface{}) }) {
	v.SetDefault("listen", ":8000")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("store", StoreRedis)
	v.SetDefault("db_path", "trajectory_runs.db")
	v.SetDefault("max_points", 50)
	v.SetDefault("log_level", "info")
}

// LoadBackendConfig reads path (may be empty) over the defaults, applies
// environment overrides and validates the result.
func LoadBackendConfig(path string) (*BackendConfig, error) {
	v := newViper()
	setBackendDefaults(v)
	if err := readFile(v, path); err != nil {
		return nil, err
	}

	cfg := &BackendConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *BackendConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("store must be %q or %q, got %q", StoreRedis, StoreMemory, c.Store)
	}
	if c.MaxPoints < 2 {
		return fmt.Errorf("max_points must be at least 2, got %d", c.MaxPoints)
	}
	return nil
}
