package backend

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

// DefaultAlpha gives the centripetal Catmull-Rom parameterisation.
const DefaultAlpha = 0.5

var (
	// ErrTooFewPoints rejects plans through fewer than two points.
	ErrTooFewPoints = errors.New("at least two control points are required")
	// ErrDegenerate rejects plans whose points all coincide.
	ErrDegenerate = errors.New("control points coincide")
)

// Plan is a sampled trajectory with per-axis kinematics.
type Plan struct {
	T   []float64
	Pos [3][]float64
	Vel [3][]float64
	Acc [3][]float64
}

// Len is the number of samples.
func (p Plan) Len() int { return len(p.T) }

// Sample returns the position and velocity setpoints of sample i.
func (p Plan) Sample(i int) (pos, vel [3]float64) {
	for a := 0; a < 3; a++ {
		pos[a] = p.Pos[a][i]
		vel[a] = p.Vel[a][i]
	}
	return pos, vel
}

// Planner turns control points into a sampled trajectory.
type Planner interface {
	Plan(timing trajectory.Timing, points [3][]float64) (Plan, error)
}

// CatmullRom fits a cubic per segment through the control points, with knot
// times proportional to segment length raised to Alpha and zero velocity
// at both ends. Samples are taken every step over [0, duration).
type CatmullRom struct {
	Alpha float64
}

func (c CatmullRom) Plan(timing trajectory.Timing, points [3][]float64) (Plan, error) {
	if err := timing.Validate(); err != nil {
		return Plan{}, err
	}
	n := len(points[0])
	if len(points[1]) != n || len(points[2]) != n {
		return Plan{}, fmt.Errorf("axis lengths differ: %d, %d, %d", len(points[0]), len(points[1]), len(points[2]))
	}
	if n < 2 {
		return Plan{}, ErrTooFewPoints
	}
	alpha := c.Alpha
	if alpha == 0 {
		alpha = DefaultAlpha
	}

	knots := make([]float64, n)
	d := make([]float64, 3)
	for i := 1; i < n; i++ {
		for a := 0; a < 3; a++ {
			d[a] = points[a][i] - points[a][i-1]
		}
		knots[i] = knots[i-1] + math.Pow(floats.Norm(d, 2), alpha)
	}
	if knots[n-1] == 0 {
		return Plan{}, ErrDegenerate
	}
	floats.Scale(timing.Duration/knots[n-1], knots)

	var tangents [3][]float64
	for a := 0; a < 3; a++ {
		tangents[a] = make([]float64, n)
		for i := 1; i < n-1; i++ {
			if dt := knots[i+1] - knots[i-1]; dt > 0 {
				tangents[a][i] = (points[a][i+1] - points[a][i-1]) / dt
			}
		}
	}

	coeffs := make([][3][4]float64, n-1)
	for i := range coeffs {
		h := knots[i+1] - knots[i]
		if h <= 0 {
			for a := 0; a < 3; a++ {
				coeffs[i][a] = [4]float64{0, 0, 0, points[a][i]}
			}
			continue
		}
		// local time: f(0)=p0, f'(0)=v0, f(h)=p1, f'(h)=v1
		A := mat.NewDense(4, 4, []float64{
			0, 0, 0, 1,
			0, 0, 1, 0,
			h * h * h, h * h, h, 1,
			3 * h * h, 2 * h, 1, 0,
		})
		for a := 0; a < 3; a++ {
			b := mat.NewVecDense(4, []float64{points[a][i], tangents[a][i], points[a][i+1], tangents[a][i+1]})
			var x mat.VecDense
			if err := x.SolveVec(A, b); err != nil {
				var cond mat.Condition
				if !errors.As(err, &cond) {
					return Plan{}, fmt.Errorf("segment %d: %w", i, err)
				}
			}
			coeffs[i][a] = [4]float64{x.AtVec(0), x.AtVec(1), x.AtVec(2), x.AtVec(3)}
		}
	}

	count := int(math.Ceil(timing.Duration/timing.Step - 1e-9))
	p := Plan{T: make([]float64, count)}
	for a := 0; a < 3; a++ {
		p.Pos[a] = make([]float64, count)
		p.Vel[a] = make([]float64, count)
		p.Acc[a] = make([]float64, count)
	}
	seg := 0
	for k := 0; k < count; k++ {
		t := float64(k) * timing.Step
		p.T[k] = t
		for seg < n-2 && t > knots[seg+1] {
			seg++
		}
		tau := t - knots[seg]
		for a := 0; a < 3; a++ {
			cf := coeffs[seg][a]
			p.Pos[a][k] = ((cf[0]*tau+cf[1])*tau+cf[2])*tau + cf[3]
			p.Vel[a][k] = (3*cf[0]*tau+2*cf[1])*tau + cf[2]
			p.Acc[a][k] = 6*cf[0]*tau + 2*cf[1]
		}
	}
	return p, nil
}
