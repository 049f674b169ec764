package trajapi

import "math"

// MaxPoints is how many samples the backend returns for visualisation.
const MaxPoints = 50

// SampleIndices picks n indices evenly spaced over [0, length-1], rounding
// half to even. It is the rule the backend uses to thin a trajectory, so
// series thinned independently stay aligned.
func SampleIndices(length, n int) []int {
	if n <= 0 || length <= 0 {
		return nil
	}
	if n >= length {
		idx := make([]int, length)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, n)
	if n == 1 {
		return idx
	}
	step := float64(length-1) / float64(n-1)
	for k := range idx {
		idx[k] = int(math.RoundToEven(float64(k) * step))
	}
	return idx
}

// Pick returns s at the given indices.
func Pick(s []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}
