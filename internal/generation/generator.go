// Package generation requests planned trajectories from the backend and
// installs them in the workspace.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/trajapi"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

// ErrGenerationInFlight rejects a request while another is outstanding.
var ErrGenerationInFlight = errors.New("trajectory generation already in progress")

// Error wraps a backend or decoding failure. The workspace is unchanged.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "trajectory generation failed: " + e.Err.Error() }

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Backend plans trajectories. trajapi.Client implements it.
type Backend interface {
	Generate(ctx context.Context, req trajapi.GenerateRequest) (*trajapi.GenerateResponse, error)
}

// Generator runs one generation at a time against a Workspace.
type Generator struct {
	backend  Backend
	ws       *trajectory.Workspace
	inFlight atomic.Bool
}

// New creates a Generator.
func New(backend Backend, ws *trajectory.Workspace) *Generator {
	return &Generator{backend: backend, ws: ws}
}

// InFlight reports whether a request is outstanding.
func (g *Generator) InFlight() bool { return g.inFlight.Load() }

// Generate validates timing, asks the backend for a trajectory through the
// current control points and replaces the workspace trajectory and extrema
// with the result.
func (g *Generator) Generate(ctx context.Context, timing trajectory.Timing) (trajectory.Trajectory, error) {
	if err := timing.Validate(); err != nil {
		return trajectory.Trajectory{}, err
	}
	points, err := g.ws.Request()
	if err != nil {
		return trajectory.Trajectory{}, err
	}
	if !g.inFlight.CompareAndSwap(false, true) {
		return trajectory.Trajectory{}, ErrGenerationInFlight
	}
	defer g.inFlight.Store(false)

	resp, err := g.backend.Generate(ctx, trajapi.NewGenerateRequest(timing, points))
	if err != nil {
		return trajectory.Trajectory{}, &Error{Err: err}
	}
	tr, extrema, err := Decode(resp)
	if err != nil {
		return trajectory.Trajectory{}, &Error{Err: err}
	}

	if err := g.ws.Update(func(s *trajectory.State) error {
		s.SetTrajectory(tr, extrema)
		return nil
	}); err != nil {
		return trajectory.Trajectory{}, err
	}
	monitoring.Logf("generated trajectory: %d samples over %.3fs (max speed %.3f)", tr.Len(), timing.Duration, extrema.MaxVel.Norm)
	return tr.Clone(), nil
}

// Decode checks the shape of a generate response and converts it. Speed
// and acceleration series longer than the time series are thinned with
// trajapi.SampleIndices so that they line up with the positions.
func Decode(resp *trajapi.GenerateResponse) (trajectory.Trajectory, trajectory.KinematicExtrema, error) {
	if resp == nil {
		return trajectory.Trajectory{}, trajectory.KinematicExtrema{}, errors.New("empty response")
	}
	n := len(resp.Time)
	if len(resp.Pos) != 3 {
		return trajectory.Trajectory{}, trajectory.KinematicExtrema{}, fmt.Errorf("pos has %d axes, want 3", len(resp.Pos))
	}
	for i, axis := range resp.Pos {
		if len(axis) != n {
			return trajectory.Trajectory{}, trajectory.KinematicExtrema{}, fmt.Errorf("pos axis %d has %d samples, time has %d", i, len(axis), n)
		}
	}
	vel, err := align("vel", resp.Vel, n)
	if err != nil {
		return trajectory.Trajectory{}, trajectory.KinematicExtrema{}, err
	}
	accel, err := align("accel", resp.Accel, n)
	if err != nil {
		return trajectory.Trajectory{}, trajectory.KinematicExtrema{}, err
	}

	tr := trajectory.Trajectory{
		T: append([]float64(nil), resp.Time...),
		X: append([]float64(nil), resp.Pos[0]...),
		Y: append([]float64(nil), resp.Pos[1]...),
		Z: append([]float64(nil), resp.Pos[2]...),
		V: vel,
		A: accel,
	}
	return tr, trajectory.KinematicExtrema{MaxVel: resp.MaxVel, MaxAccel: resp.MaxAccel}, nil
}

func align(name string, s []float64, n int) ([]float64, error) {
	switch {
	case len(s) == n:
		return append([]float64(nil), s...), nil
	case len(s) > n:
		return trajapi.Pick(s, trajapi.SampleIndices(len(s), n)), nil
	default:
		return nil, fmt.Errorf("%s has %d samples, time has %d", name, len(s), n)
	}
}
