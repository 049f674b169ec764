package backend

import (
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/trajectory.editor/internal/trajapi"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

// Summarize builds the generate response for p: speed and acceleration
// magnitudes, their extrema over the full plan, and every series thinned
// to at most maxPoints samples with the same indices.
func Summarize(p Plan, maxPoints int) trajapi.GenerateResponse {
	n := p.Len()
	speed := make([]float64, n)
	accel := make([]float64, n)
	v := make([]float64, 3)
	for i := 0; i < n; i++ {
		for a := 0; a < 3; a++ {
			v[a] = p.Vel[a][i]
		}
		speed[i] = floats.Norm(v, 2)
		for a := 0; a < 3; a++ {
			v[a] = p.Acc[a][i]
		}
		accel[i] = floats.Norm(v, 2)
	}

	resp := trajapi.GenerateResponse{
		MaxVel:   extremum(speed, p.Vel),
		MaxAccel: extremum(accel, p.Acc),
	}
	idx := trajapi.SampleIndices(n, maxPoints)
	resp.Time = trajapi.Pick(p.T, idx)
	resp.Vel = trajapi.Pick(speed, idx)
	resp.Accel = trajapi.Pick(accel, idx)
	resp.Pos = make([][]float64, 3)
	for a := 0; a < 3; a++ {
		resp.Pos[a] = trajapi.Pick(p.Pos[a], idx)
	}
	return resp
}

func extremum(norm []float64, axes [3][]float64) trajectory.Extremum {
	if len(norm) == 0 {
		return trajectory.Extremum{}
	}
	return trajectory.Extremum{
		Norm: floats.Max(norm),
		X:    floats.Max(axes[0]),
		Y:    floats.Max(axes[1]),
		Z:    floats.Max(axes[2]),
	}
}
