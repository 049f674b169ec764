// Package trajectory holds the editor's data model: the control point set,
// the generated trajectory with its kinematic extrema, the live end-effector
// sample, and the Workspace that owns all of them behind one lock.
package trajectory

import (
	"errors"
	"fmt"
	"math"
)

// EndEffectorID is the id of the control point linked to the end effector.
const EndEffectorID = 0

var (
	// ErrInvalidTiming is matched by every timing ValidationError.
	ErrInvalidTiming = errors.New("bad trajectory final time or timestep")
	// ErrPointNotFound is returned for operations on an unknown point id.
	ErrPointNotFound = errors.New("control point not found")
	// ErrAnchorUnknown is returned while the end-effector position has never
	// been read, so the id-0 point is not yet meaningful.
	ErrAnchorUnknown = errors.New("end-effector position not yet known")
)

// ControlPoint is one operator-placed waypoint.
type ControlPoint struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
}

// EndEffectorSample is the most recent end-effector position read.
type EndEffectorSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Trajectory is a sampled motion profile produced by the backend. All slices
// have the same length; V and A are speed and acceleration magnitudes.
type Trajectory struct {
	T []float64 `json:"time"`
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
	Z []float64 `json:"z"`
	V []float64 `json:"vel"`
	A []float64 `json:"accel"`
}

// Len returns the number of samples.
func (t Trajectory) Len() int { return len(t.T) }

// Empty reports whether the trajectory has no samples.
func (t Trajectory) Empty() bool { return len(t.T) == 0 }

// Validate checks that every series has the same length.
func (t Trajectory) Validate() error {
	n := len(t.T)
	for name, s := range map[string][]float64{"x": t.X, "y": t.Y, "z": t.Z, "vel": t.V, "accel": t.A} {
		if len(s) != n {
			return fmt.Errorf("trajectory series %s has %d samples, want %d", name, len(s), n)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (t Trajectory) Clone() Trajectory {
	return Trajectory{
		T: cloneFloats(t.T),
		X: cloneFloats(t.X),
		Y: cloneFloats(t.Y),
		Z: cloneFloats(t.Z),
		V: cloneFloats(t.V),
		A: cloneFloats(t.A),
	}
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}

// Extremum is the maximum norm of a kinematic quantity and the maximum of
// each of its components.
type Extremum struct {
	Norm float64 `json:"norm"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// KinematicExtrema summarises a trajectory.
type KinematicExtrema struct {
	MaxVel   Extremum `json:"max_vel"`
	MaxAccel Extremum `json:"max_accel"`
}

// Timing is the operator's requested duration and sample step, in seconds.
type Timing struct {
	Duration float64 `json:"duration"`
	Step     float64 `json:"step"`
}

// ValidationError reports a rejected request parameter. It matches
// ErrInvalidTiming with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidTiming.Error(), e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidTiming.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidTiming
}

// Validate gates every generation and run request.
func (t Timing) Validate() error {
	switch {
	case !positiveFinite(t.Duration):
		return &ValidationError{Field: "duration", Reason: fmt.Sprintf("must be positive, got %v", t.Duration)}
	case !positiveFinite(t.Step):
		return &ValidationError{Field: "step", Reason: fmt.Sprintf("must be positive, got %v", t.Step)}
	case t.Step > t.Duration:
		return &ValidationError{Field: "step", Reason: fmt.Sprintf("%v exceeds duration %v", t.Step, t.Duration)}
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
