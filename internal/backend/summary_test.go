package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajectory.editor/internal/trajapi"
)

func linearPlan(n int) Plan {
	p := Plan{T: make([]float64, n)}
	for a := 0; a < 3; a++ {
		p.Pos[a] = make([]float64, n)
		p.Vel[a] = make([]float64, n)
		p.Acc[a] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		p.T[i] = float64(i) * 0.1
		p.Pos[0][i] = float64(i)
	}
	return p
}

func TestSummarize_ThinsEverySeriesTogether(t *testing.T) {
	p := linearPlan(120)
	p.Vel[0][1] = 3
	p.Vel[1][1] = 4
	p.Acc[2][1] = -2

	resp := Summarize(p, trajapi.MaxPoints)

	require.Len(t, resp.Time, trajapi.MaxPoints)
	require.Len(t, resp.Vel, trajapi.MaxPoints)
	require.Len(t, resp.Accel, trajapi.MaxPoints)
	require.Len(t, resp.Pos, 3)
	for a := 0; a < 3; a++ {
		require.Len(t, resp.Pos[a], trajapi.MaxPoints)
	}
	assert.Equal(t, 0.0, resp.Pos[0][0])
	assert.Equal(t, 119.0, resp.Pos[0][trajapi.MaxPoints-1])
	for i := range resp.Time {
		// positions and times come from the same samples
		assert.InDelta(t, resp.Pos[0][i]*0.1, resp.Time[i], 1e-9)
	}

	// extrema are taken before thinning; sample 1 is not among the kept indices
	assert.Equal(t, 5.0, resp.MaxVel.Norm)
	assert.Equal(t, 3.0, resp.MaxVel.X)
	assert.Equal(t, 4.0, resp.MaxVel.Y)
	assert.Equal(t, 2.0, resp.MaxAccel.Norm)
	assert.Equal(t, 0.0, resp.MaxAccel.Z)
	assert.NotContains(t, resp.Vel, 5.0)
}

func TestSummarize_ShortPlanKeepsEverySample(t *testing.T) {
	resp := Summarize(linearPlan(7), trajapi.MaxPoints)
	assert.Len(t, resp.Time, 7)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6}, resp.Pos[0])
}

func TestSummarize_Empty(t *testing.T) {
	resp := Summarize(Plan{}, trajapi.MaxPoints)
	assert.Empty(t, resp.Time)
	assert.Zero(t, resp.MaxVel)
}
