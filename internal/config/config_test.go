package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultEditorConfig(t *testing.T) {
	cfg := DefaultEditorConfig()

	assert.Equal(t, ":8090", cfg.Listen)
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, Range{-0.8, 0.8}, cfg.Bounds.X)
	assert.Equal(t, Range{-0.8, 0.8}, cfg.Bounds.Y)
	assert.Equal(t, Range{0, 1.2}, cfg.Bounds.Z)
	assert.Equal(t, "sai2::examples::current_ee_pos", cfg.Keys.CurrentPosKey)
	assert.Equal(t, "sai2::examples::primitive", cfg.Keys.PrimitiveKey)
	assert.Equal(t, "primitive_trajectory_task", cfg.Keys.PrimitiveValue)
	assert.Equal(t, "sai2::examples::desired_position", cfg.Keys.PositionKey)
	assert.Equal(t, "sai2::examples::desired_velocity", cfg.Keys.VelocityKey)
	assert.Equal(t, TelemetryHTTP, cfg.Telemetry.Source)
	assert.Equal(t, 100*time.Millisecond, cfg.Telemetry.Period)
	assert.Equal(t, 500*time.Millisecond, cfg.Telemetry.IdlePeriod)
	assert.Equal(t, 20*time.Millisecond, cfg.Status.MinPeriod)
	assert.Equal(t, 640, cfg.Viewport.Width)
	assert.Equal(t, 480, cfg.Viewport.Height)
}

func TestLoadEditorConfig_Partial(t *testing.T) {
	path := writeConfig(t, "editor.json", `{
		"backend_url": "http://robot:8000",
		"bounds": {"z": [0.1, 0.9]},
		"telemetry": {"source": "redis", "period": "250ms"}
	}`)

	cfg, err := LoadEditorConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://robot:8000", cfg.BackendURL)
	assert.Equal(t, Range{0.1, 0.9}, cfg.Bounds.Z)
	assert.Equal(t, Range{-0.8, 0.8}, cfg.Bounds.X)
	assert.Equal(t, TelemetryRedis, cfg.Telemetry.Source)
	assert.Equal(t, 250*time.Millisecond, cfg.Telemetry.Period)
	assert.Equal(t, "localhost:6379", cfg.Telemetry.RedisAddr)
}

func TestLoadEditorConfig_EnvOverride(t *testing.T) {
	t.Setenv("TRAJ_BACKEND_URL", "http://env-host:9000")
	t.Setenv("TRAJ_TELEMETRY_PERIOD", "50ms")

	cfg, err := LoadEditorConfig("")
	require.NoError(t, err)
	assert.Equal(t, "http://env-host:9000", cfg.BackendURL)
	assert.Equal(t, 50*time.Millisecond, cfg.Telemetry.Period)
}

func TestLoadEditorConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"inverted bounds", `{"bounds": {"x": [1, -1]}}`},
		{"short bounds", `{"bounds": {"y": [1]}}`},
		{"empty key", `{"keys": {"position_key": ""}}`},
		{"unknown source", `{"telemetry": {"source": "carrier-pigeon"}}`},
		{"zero period", `{"telemetry": {"period": "0s"}}`},
		{"zero status period", `{"status": {"min_period": "0s"}}`},
		{"bad viewport", `{"viewport": {"width": 0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEditorConfig(writeConfig(t, "editor.json", tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestLoadEditorConfig_FileChecks(t *testing.T) {
	_, err := LoadEditorConfig("/some/path/editor.yaml")
	assert.Error(t, err, "non-.json extension should be rejected")

	_, err = LoadEditorConfig("/nonexistent/editor.json")
	assert.Error(t, err)

	large := filepath.Join(t.TempDir(), "large.json")
	require.NoError(t, os.WriteFile(large, make([]byte, 2*1024*1024), 0644))
	_, err = LoadEditorConfig(large)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	_, err = LoadEditorConfig(writeConfig(t, "broken.json", `{"listen": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadBackendConfig(t *testing.T) {
	cfg, err := LoadBackendConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Listen)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, 50, cfg.MaxPoints)
	assert.Equal(t, "trajectory_runs.db", cfg.DBPath)

	cfg, err = LoadBackendConfig(writeConfig(t, "backend.json", `{"store": "memory", "max_points": 20}`))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 20, cfg.MaxPoints)

	_, err = LoadBackendConfig(writeConfig(t, "backend.json", `{"store": "etcd"}`))
	assert.Error(t, err)
	_, err = LoadBackendConfig(writeConfig(t, "backend.json", `{"max_points": 1}`))
	assert.Error(t, err)
}

func TestLoadShippedConfigFiles(t *testing.T) {
	editor, err := LoadEditorConfig(filepath.Join("..", "..", DefaultEditorConfigPath))
	require.NoError(t, err)
	assert.Equal(t, DefaultEditorConfig(), editor)

	backend, err := LoadBackendConfig(filepath.Join("..", "..", DefaultBackendConfigPath))
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, backend.Store)
}
