// Package config loads the JSON configuration files of the editor host and
// the development backend. Values come from viper defaults, then the file,
// then TRAJ_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. TRAJ_BACKEND_URL or
// TRAJ_TELEMETRY_PERIOD.
const EnvPrefix = "TRAJ"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// newViper returns a viper instance with JSON decoding and environment
// overrides configured. Defaults are applied by the caller.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// readFile validates the config file path and merges it into v. An empty
// path means defaults and environment only.
func readFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	v.SetConfigFile(cleanPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Range is a closed [min, max] interval stored as a two element JSON array.
type Range []float64

// Min returns the lower bound.
func (r Range) Min() float64 { return r[0] }

// Max returns the upper bound.
func (r Range) Max() float64 { return r[1] }

func (r Range) validate(name string) error {
	if len(r) != 2 {
		return fmt.Errorf("bounds.%s must be [min, max], got %v", name, []float64(r))
	}
	if !(r[0] < r[1]) {
		return fmt.Errorf("bounds.%s min must be below max, got %v", name, []float64(r))
	}
	return nil
}
