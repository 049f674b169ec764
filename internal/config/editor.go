package config

import (
	"fmt"
	"time"
)

// DefaultEditorConfigPath is the conventional location of the editor config.
const DefaultEditorConfigPath = "config/editor.json"

// Telemetry sources.
const (
	TelemetryHTTP  = "http"
	TelemetryRedis = "redis"
)

// EditorConfig configures the editor host binary.
type EditorConfig struct {
	Listen     string          `mapstructure:"listen" json:"listen"`
	BackendURL string          `mapstructure:"backend_url" json:"backend_url"`
	LogLevel   string          `mapstructure:"log_level" json:"log_level"`
	Bounds     BoundsConfig    `mapstructure:"bounds" json:"bounds"`
	Keys       KeysConfig      `mapstructure:"keys" json:"keys"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
	Status     StatusConfig    `mapstructure:"status" json:"status"`
	Viewport   ViewportConfig  `mapstructure:"viewport" json:"viewport"`
}

// BoundsConfig holds the data-space extent of each axis.
type BoundsConfig struct {
	X Range `mapstructure:"x" json:"x"`
	Y Range `mapstructure:"y" json:"y"`
	Z Range `mapstructure:"z" json:"z"`
}

// KeysConfig names the controller keys used by telemetry and run requests.
type KeysConfig struct {
	CurrentPosKey  string `mapstructure:"current_pos_key" json:"current_pos_key"`
	PrimitiveKey   string `mapstructure:"primitive_key" json:"primitive_key"`
	PrimitiveValue string `mapstructure:"primitive_value" json:"primitive_value"`
	PositionKey    string `mapstructure:"position_key" json:"position_key"`
	VelocityKey    string `mapstructure:"velocity_key" json:"velocity_key"`
}

// TelemetryConfig selects where end-effector samples come from and how often.
type TelemetryConfig struct {
	Source     string        `mapstructure:"source" json:"source"`
	RedisAddr  string        `mapstructure:"redis_addr" json:"redis_addr"`
	RedisDB    int           `mapstructure:"redis_db" json:"redis_db"`
	Period     time.Duration `mapstructure:"period" json:"period"`
	IdlePeriod time.Duration `mapstructure:"idle_period" json:"idle_period"`
}

// StatusConfig bounds the run-status poll cadence.
type StatusConfig struct {
	MinPeriod time.Duration `mapstructure:"min_period" json:"min_period"`
}

// ViewportConfig is the initial pixel size of both projections.
type ViewportConfig struct {
	Width  int `mapstructure:"width" json:"width"`
	Height int `mapstructure:"height" json:"height"`
}

func setEditorDefaults(v interface{ SetDefault(string, interface{}) }) {
	v.SetDefault("listen", ":8090")
	v.SetDefault("backend_url", "http://localhost:8000")
	v.SetDefault("log_level", "info")

	v.SetDefault("bounds.x", []float64{-0.8, 0.8})
	v.SetDefault("bounds.y", []float64{-0.8, 0.8})
	v.SetDefault("bounds.z", []float64{0, 1.2})

	v.SetDefault("keys.current_pos_key", "sai2::examples::current_ee_pos")
	v.SetDefault("keys.primitive_key", "sai2::examples::primitive")
	v.SetDefault("keys.primitive_value", "primitive_trajectory_task")
	v.SetDefault("keys.position_key", "sai2::examples::desired_position")
	v.SetDefault("keys.velocity_key", "sai2::examples::desired_velocity")

	v.SetDefault("telemetry.source", TelemetryHTTP)
	v.SetDefault("telemetry.redis_addr", "localhost:6379")
	v.SetDefault("telemetry.redis_db", 0)
	v.SetDefault("telemetry.period", "100ms")
	v.SetDefault("telemetry.idle_period", "500ms")

	v.SetDefault("status.min_period", "20ms")

	v.SetDefault("viewport.width", 640)
	v.SetDefault("viewport.height", 480)
}

// LoadEditorConfig reads path (may be empty) over the defaults, applies
// environment overrides and validates the result.
func LoadEditorConfig(path string) (*EditorConfig, error) {
	v := newViper()
	setEditorDefaults(v)
	if err := readFile(v, path); err != nil {
		return nil, err
	}

	cfg := &EditorConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultEditorConfig returns the built-in defaults.
func DefaultEditorConfig() *EditorConfig {
	cfg, err := LoadEditorConfig("")
	if err != nil {
		panic(fmt.Sprintf("default editor config is invalid: %v", err))
	}
	return cfg
}

// Validate checks that the configuration values are valid.
func (c *EditorConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url must not be empty")
	}
	if err := c.Bounds.X.validate("x"); err != nil {
		return err
	}
	if err := c.Bounds.Y.validate("y"); err != nil {
		return err
	}
	if err := c.Bounds.Z.validate("z"); err != nil {
		return err
	}

	keys := map[string]string{
		"current_pos_key": c.Keys.CurrentPosKey,
		"primitive_key":   c.Keys.PrimitiveKey,
		"primitive_value": c.Keys.PrimitiveValue,
		"position_key":    c.Keys.PositionKey,
		"velocity_key":    c.Keys.VelocityKey,
	}
	for name, val := range keys {
		if val == "" {
			return fmt.Errorf("keys.%s must not be empty", name)
		}
	}

	switch c.Telemetry.Source {
	case TelemetryHTTP:
	case TelemetryRedis:
		if c.Telemetry.RedisAddr == "" {
			return fmt.Errorf("telemetry.redis_addr is required for the redis source")
		}
	default:
		return fmt.Errorf("telemetry.source must be %q or %q, got %q", TelemetryHTTP, TelemetryRedis, c.Telemetry.Source)
	}
	if c.Telemetry.Period <= 0 {
		return fmt.Errorf("telemetry.period must be positive, got %s", c.Telemetry.Period)
	}
	if c.Telemetry.IdlePeriod <= 0 {
		return fmt.Errorf("telemetry.idle_period must be positive, got %s", c.Telemetry.IdlePeriod)
	}
	if c.Status.MinPeriod <= 0 {
		return fmt.Errorf("status.min_period must be positive, got %s", c.Status.MinPeriod)
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}
	return nil
}
