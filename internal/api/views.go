package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/trajectory.editor/internal/httputil"
	"github.com/banshee-data/trajectory.editor/internal/projection"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

// Profile image size.
const (
	profileWidth  = 10 * vg.Inch
	profileHeight = 4 * vg.Inch
)

// viewHandler renders one projection as an echarts page.
func (s *Server) viewHandler(view projection.View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		f, err := s.ed.Adapter().Frame(view)
		if err != nil {
			writeError(w, err)
			return
		}
		snap := s.ed.Snapshot()
		subtitle := fmt.Sprintf("points=%d samples=%d", len(snap.Points), snap.Trajectory.Len())

		var buf bytes.Buffer
		if err := projection.RenderHTML(&buf, f, projection.ChartOptions{AssetsHost: s.assetsHost, Subtitle: subtitle}); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

// handleProfile draws speed and acceleration magnitude against time for the
// current trajectory.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.ed.Snapshot()
	if snap.Trajectory.Empty() {
		httputil.NotFound(w, "no trajectory generated")
		return
	}

	p, err := profilePlot(snap.Trajectory, snap.Extrema)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	wt, err := p.WriterTo(profileWidth, profileHeight, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render profile: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render profile: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func profilePlot(tr trajectory.Trajectory, ex trajectory.KinematicExtrema) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Kinematic profile (max |v| %.3f, max |a| %.3f)", ex.MaxVel.Norm, ex.MaxAccel.Norm)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Magnitude"

	series := []struct {
		label string
		ys    []float64
		color color.Color
	}{
		{"speed", tr.V, color.RGBA{B: 255, A: 255}},
		{"acceleration", tr.A, color.RGBA{R: 220, A: 255}},
	}
	for _, sr := range series {
		pts := make(plotter.XYs, len(tr.T))
		for i, t := range tr.T {
			pts[i] = plotter.XY{X: t, Y: sr.ys[i]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", sr.label, err)
		}
		line.Color = sr.color
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(sr.label, line)
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}
