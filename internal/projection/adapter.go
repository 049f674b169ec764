package projection

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

var (
	// ErrNotDraggable is returned when dragging the end-effector point.
	ErrNotDraggable = errors.New("point is not draggable")
	// ErrUnknownView is returned for a view name other than xy or xz.
	ErrUnknownView = errors.New("unknown view")
)

// Marker radii in pixels.
const (
	ControlRadius     = 10
	TrajectoryRadius  = 10
	EndEffectorRadius = 12
)

// Config sets the axis bounds and the initial viewport of both scenes.
type Config struct {
	X, Y, Z Bounds
	Width   int
	Height  int
}

// Adapter renders the editor state into one Scene per view.
type Adapter struct {
	mu     sync.Mutex
	scenes map[View]Scene
}

// NewAdapter creates an adapter backed by two GridScenes.
func NewAdapter(cfg Config) *Adapter {
	return NewAdapterWithScenes(
		NewGridScene(ViewXY, cfg.X, cfg.Y, cfg.Width, cfg.Height),
		NewGridScene(ViewXZ, cfg.X, cfg.Z, cfg.Width, cfg.Height),
	)
}

// NewAdapterWithScenes creates an adapter over caller supplied scenes.
func NewAdapterWithScenes(xy, xz Scene) *Adapter {
	return &Adapter{scenes: map[View]Scene{ViewXY: xy, ViewXZ: xz}}
}

func project(view View, x, y, z float64) Vec2 {
	if view == ViewXZ {
		return Vec2{X: x, Y: z}
	}
	return Vec2{X: x, Y: y}
}

// RenderState renders s. It is meant to be registered as a Workspace render
// hook.
func (a *Adapter) RenderState(s *trajectory.State) {
	a.Render(s.Points.Points(), s.Trajectory, s.Sample, s.SampleKnown)
}

// Render clears both scenes and redraws the control polyline and markers,
// the trajectory with its hover markers, and the end-effector pin.
func (a *Adapter) Render(points []trajectory.ControlPoint, tr trajectory.Trajectory, sample trajectory.EndEffectorSample, sampleKnown bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, view := range Views {
		scene := a.scenes[view]
		scene.Clear()

		line := make([]Vec2, len(points))
		for i, p := range points {
			line[i] = project(view, p.X, p.Y, p.Z)
		}
		scene.DrawPolyline(SeriesControl, LineDashed, line)
		for i, p := range points {
			ee := p.ID == trajectory.EndEffectorID
			scene.DrawMarker(Marker{
				Series:    SeriesControl,
				ID:        p.ID,
				Data:      line[i],
				Radius:    ControlRadius,
				Symbol:    SymbolCircle,
				Hidden:    ee,
				Hoverable: !ee,
				Draggable: !ee,
			})
		}

		n := tr.Len()
		if len(tr.X) < n || len(tr.Y) < n || len(tr.Z) < n {
			n = 0
		}
		path := make([]Vec2, n)
		for i := 0; i < n; i++ {
			path[i] = project(view, tr.X[i], tr.Y[i], tr.Z[i])
		}
		scene.DrawPolyline(SeriesTrajectory, LineSolid, path)
		for i, d := range path {
			scene.DrawMarker(Marker{
				Series:    SeriesTrajectory,
				ID:        i,
				Data:      d,
				Radius:    TrajectoryRadius,
				Symbol:    SymbolCircle,
				Hidden:    true,
				Hoverable: true,
			})
		}

		if sampleKnown {
			scene.DrawMarker(Marker{
				Series:    SeriesEndEffector,
				ID:        trajectory.EndEffectorID,
				Data:      project(view, sample.X, sample.Y, sample.Z),
				Radius:    EndEffectorRadius,
				Symbol:    SymbolPin,
				Hoverable: true,
			})
		}
	}
}

func (a *Adapter) scene(view View) (Scene, error) {
	s, ok := a.scenes[view]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
	return s, nil
}

// Resize changes the viewport of one view. Pixel positions are recomputed
// by the next render; data is untouched.
func (a *Adapter) Resize(view View, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid viewport %dx%d", width, height)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.scene(view)
	if err != nil {
		return err
	}
	s.Resize(width, height)
	return nil
}

// DragToData converts a pointer position in view to data coordinates on
// the two axes the view owns (x and y for XY, x and z for XZ).
func (a *Adapter) DragToData(view View, pixel Vec2) (Vec2, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.scene(view)
	if err != nil {
		return Vec2{}, err
	}
	return s.ToData(pixel), nil
}

// Drag returns p moved to pixel in view. Only the axes owned by view change.
func (a *Adapter) Drag(p trajectory.ControlPoint, view View, pixel Vec2) (trajectory.ControlPoint, error) {
	if p.ID == trajectory.EndEffectorID {
		return p, ErrNotDraggable
	}
	d, err := a.DragToData(view, pixel)
	if err != nil {
		return p, err
	}
	p.X = d.X
	if view == ViewXZ {
		p.Z = d.Y
	} else {
		p.Y = d.Y
	}
	return p, nil
}

// Frame returns a copy of one view's drawn state.
func (a *Adapter) Frame(view View) (Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.scene(view)
	if err != nil {
		return Frame{}, err
	}
	return s.Frame(), nil
}

// Frames returns copies of both views' drawn state.
func (a *Adapter) Frames() map[View]Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[View]Frame, len(a.scenes))
	for v, s := range a.scenes {
		out[v] = s.Frame()
	}
	return out
}
