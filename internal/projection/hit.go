package projection

import (
	"fmt"
	"strings"

	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

// Hit is the marker found under a pointer.
type Hit struct {
	View   View   `json:"view"`
	Series string `json:"series"`
	ID     int    `json:"id"`
	Data   Vec2   `json:"data"`
}

var seriesPriority = map[string]int{
	SeriesControl:     0,
	SeriesEndEffector: 1,
	SeriesTrajectory:  2,
}

// HitTest finds the hoverable marker under pixel. Control points win over
// the end-effector pin, which wins over trajectory samples; ties within a
// series go to the nearest marker.
func (a *Adapter) HitTest(view View, pixel Vec2) (Hit, bool, error) {
	f, err := a.Frame(view)
	if err != nil {
		return Hit{}, false, err
	}

	var best *Marker
	bestDist := 0.0
	for i := range f.Markers {
		m := &f.Markers[i]
		if !m.Hoverable {
			continue
		}
		d := m.Pixel.dist(pixel)
		if d > m.Radius {
			continue
		}
		if best == nil ||
			seriesPriority[m.Series] < seriesPriority[best.Series] ||
			(m.Series == best.Series && d < bestDist) {
			best, bestDist = m, d
		}
	}
	if best == nil {
		return Hit{}, false, nil
	}
	return Hit{View: view, Series: best.Series, ID: best.ID, Data: best.Data}, true, nil
}

// Tooltip formats the hover text of hit against the state it was drawn from.
func Tooltip(hit Hit, snap trajectory.Snapshot) string {
	axis := strings.ToUpper(hit.View.VerticalAxis())
	vertical := func(y, z float64) float64 {
		if hit.View == ViewXZ {
			return z
		}
		return y
	}

	switch hit.Series {
	case SeriesControl:
		for _, p := range snap.Points {
			if p.ID == hit.ID {
				return fmt.Sprintf("Point %d\nX: %.3f\n%s: %.3f", p.ID, p.X, axis, vertical(p.Y, p.Z))
			}
		}
	case SeriesEndEffector:
		s := snap.Sample
		return fmt.Sprintf("Point %d\nX: %.3f\n%s: %.3f", trajectory.EndEffectorID, s.X, axis, vertical(s.Y, s.Z))
	case SeriesTrajectory:
		tr := snap.Trajectory
		i := hit.ID
		if i >= 0 && i < tr.Len() && tr.Validate() == nil {
			return fmt.Sprintf("Time %.4f\nX: %.3f\n%s: %.3f\nV: %.3f\nA: %.3f",
				tr.T[i], tr.X[i], axis, vertical(tr.Y[i], tr.Z[i]), tr.V[i], tr.A[i])
		}
	}
	return ""
}
