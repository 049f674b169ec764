// Package trajapi is the HTTP contract between the editor and the
// trajectory backend: request/response types shared by both sides and a
// client for the editor.
package trajapi

import (
	"encoding/json"

	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

// Endpoint paths.
const (
	PathGenerate  = "/trajectory/generate"
	PathRun       = "/trajectory/run"
	PathRunStatus = "/trajectory/run/status"
	PathRunStop   = "/trajectory/run/stop"
	PathKey       = "/redis"
)

// GenerateRequest asks the backend to plan a trajectory through Points,
// given as [xs, ys, zs] in control point order.
type GenerateRequest struct {
	TF     float64      `json:"tf"`
	TStep  float64      `json:"t_step"`
	Points [3][]float64 `json:"points"`
}

// NewGenerateRequest builds a request from validated timing and points.
func NewGenerateRequest(t trajectory.Timing, points [3][]float64) GenerateRequest {
	return GenerateRequest{TF: t.Duration, TStep: t.Step, Points: points}
}

// GenerateResponse is a planned trajectory. Pos is [xs, ys, zs]; Vel and
// Accel are magnitudes.
type GenerateResponse struct {
	Pos      [][]float64         `json:"pos"`
	Time     []float64           `json:"time"`
	Vel      []float64           `json:"vel"`
	Accel    []float64           `json:"accel"`
	MaxVel   trajectory.Extremum `json:"max_vel"`
	MaxAccel trajectory.Extremum `json:"max_accel"`
}

// RunKeys names the controller keys a run writes to.
type RunKeys struct {
	PrimitiveKey   string `json:"primitive_key"`
	PrimitiveValue string `json:"primitive_value"`
	PositionKey    string `json:"position_key"`
	VelocityKey    string `json:"velocity_key"`
}

// RunRequest starts (or, sent to the stop endpoint, stops) execution.
type RunRequest struct {
	GenerateRequest
	RunKeys
}

// RunStatus is the backend's report on execution. Running is nil when the
// body carries no boolean running field.
type RunStatus struct {
	Running *bool `json:"running"`
}

// KeyWrite sets a key to a JSON value.
type KeyWrite struct {
	Key string          `json:"key"`
	Val json.RawMessage `json:"val"`
}
