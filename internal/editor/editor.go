// Package editor ties the point store, projections, generation client and
// execution controller into the single widget the host serves.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/trajectory.editor/internal/config"
	"github.com/banshee-data/trajectory.editor/internal/execution"
	"github.com/banshee-data/trajectory.editor/internal/generation"
	"github.com/banshee-data/trajectory.editor/internal/httputil"
	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/projection"
	"github.com/banshee-data/trajectory.editor/internal/telemetry"
	"github.com/banshee-data/trajectory.editor/internal/timeutil"
	"github.com/banshee-data/trajectory.editor/internal/trajapi"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

// DefaultIdlePeriod is how often the end-effector anchor is refreshed while
// no run is active.
const DefaultIdlePeriod = 500 * time.Millisecond

var errUnchanged = errors.New("sample unchanged")

// Deps are the collaborators an Editor drives.
type Deps struct {
	Workspace  *trajectory.Workspace
	Adapter    *projection.Adapter
	Generator  *generation.Generator
	Controller *execution.Controller
	Feed       telemetry.Feed
	Clock      timeutil.Clock
	IdlePeriod time.Duration
	// Centre is where new control points are placed.
	Centre trajectory.EndEffectorSample
}

// Editor is the trajectory editing widget.
type Editor struct {
	ws         *trajectory.Workspace
	adapter    *projection.Adapter
	gen        *generation.Generator
	exec       *execution.Controller
	feed       telemetry.Feed
	clock      timeutil.Clock
	idlePeriod time.Duration
	centre     trajectory.EndEffectorSample

	mu    sync.Mutex
	sizes map[projection.View][2]int
}

// New wires d together and registers the adapter as a render hook.
func New(d Deps) *Editor {
	if d.Clock == nil {
		d.Clock = timeutil.RealClock{}
	}
	if d.IdlePeriod <= 0 {
		d.IdlePeriod = DefaultIdlePeriod
	}
	e := &Editor{
		ws:         d.Workspace,
		adapter:    d.Adapter,
		gen:        d.Generator,
		exec:       d.Controller,
		feed:       d.Feed,
		clock:      d.Clock,
		idlePeriod: d.IdlePeriod,
		centre:     d.Centre,
		sizes:      make(map[projection.View][2]int),
	}
	for _, v := range projection.Views {
		if f, err := e.adapter.Frame(v); err == nil {
			e.sizes[v] = [2]int{f.Width, f.Height}
		}
	}
	e.ws.OnRender(e.adapter.RenderState)
	e.ws.Render()
	return e
}

// Build assembles an Editor from configuration, talking to the backend
// through httpClient and reading the end effector from feed.
func Build(cfg config.EditorConfig, httpClient httputil.HTTPClient, feed telemetry.Feed, clock timeutil.Clock) (*Editor, *trajapi.Client) {
	client := trajapi.NewClient(httpClient, cfg.BackendURL)
	if feed == nil {
		feed = telemetry.NewKeyFeed(client, cfg.Keys.CurrentPosKey)
	}
	centre := Centre(cfg.Bounds)
	ws := trajectory.NewWorkspace(centre)
	adapter := projection.NewAdapter(projection.Config{
		X:      projection.Bounds{Min: cfg.Bounds.X.Min(), Max: cfg.Bounds.X.Max()},
		Y:      projection.Bounds{Min: cfg.Bounds.Y.Min(), Max: cfg.Bounds.Y.Max()},
		Z:      projection.Bounds{Min: cfg.Bounds.Z.Min(), Max: cfg.Bounds.Z.Max()},
		Width:  cfg.Viewport.Width,
		Height: cfg.Viewport.Height,
	})
	ctrl := execution.New(ws, client, feed, clock, execution.Config{
		Keys: trajapi.RunKeys{
			PrimitiveKey:   cfg.Keys.PrimitiveKey,
			PrimitiveValue: cfg.Keys.PrimitiveValue,
			PositionKey:    cfg.Keys.PositionKey,
			VelocityKey:    cfg.Keys.VelocityKey,
		},
		TelemetryPeriod: cfg.Telemetry.Period,
		StatusMinPeriod: cfg.Status.MinPeriod,
	})
	e := New(Deps{
		Workspace:  ws,
		Adapter:    adapter,
		Generator:  generation.New(client, ws),
		Controller: ctrl,
		Feed:       feed,
		Clock:      clock,
		IdlePeriod: cfg.Telemetry.IdlePeriod,
		Centre:     centre,
	})
	return e, client
}

// Centre returns the middle of the configured workspace.
func Centre(b config.BoundsConfig) trajectory.EndEffectorSample {
	return trajectory.EndEffectorSample{
		X: (b.X.Min() + b.X.Max()) / 2,
		Y: (b.Y.Min() + b.Y.Max()) / 2,
		Z: (b.Z.Min() + b.Z.Max()) / 2,
	}
}

// Workspace exposes the shared state, for hosts that add render hooks.
func (e *Editor) Workspace() *trajectory.Workspace { return e.ws }

// Adapter exposes the projections.
func (e *Editor) Adapter() *projection.Adapter { return e.adapter }

// Controller exposes the execution controller.
func (e *Editor) Controller() *execution.Controller { return e.exec }

// Generating reports whether a generation request is outstanding.
func (e *Editor) Generating() bool { return e.gen.InFlight() }

// Snapshot returns a copy of the current state.
func (e *Editor) Snapshot() trajectory.Snapshot { return e.ws.Snapshot() }

// HandleEvent applies a gesture and renders.
func (e *Editor) HandleEvent(ev Event) error {
	switch ev := ev.(type) {
	case PointDragged:
		return e.ws.Update(func(s *trajectory.State) error {
			p, ok := s.Points.Point(ev.ID)
			if !ok {
				return fmt.Errorf("drag %d: %w", ev.ID, trajectory.ErrPointNotFound)
			}
			moved, err := e.adapter.Drag(p, ev.View, ev.Pixel)
			if err != nil {
				return err
			}
			return s.Points.UpdatePosition(moved.ID, moved.X, moved.Y, moved.Z)
		})
	case ViewportResized:
		views := projection.Views
		if ev.View != "" {
			views = []projection.View{ev.View}
		}
		for _, v := range views {
			if err := e.adapter.Resize(v, ev.Width, ev.Height); err != nil {
				return err
			}
			e.mu.Lock()
			e.sizes[v] = [2]int{ev.Width, ev.Height}
			e.mu.Unlock()
		}
		e.ws.Render()
		return nil
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// Refresh re-applies the current viewport sizes and re-renders.
func (e *Editor) Refresh() {
	e.mu.Lock()
	sizes := make(map[projection.View][2]int, len(e.sizes))
	for v, s := range e.sizes {
		sizes[v] = s
	}
	e.mu.Unlock()
	for v, s := range sizes {
		if err := e.adapter.Resize(v, s[0], s[1]); err != nil {
			monitoring.Logf("refresh %s: %v", v, err)
		}
	}
	e.ws.Render()
}

// AddPoint appends a control point at the workspace centre.
func (e *Editor) AddPoint() trajectory.ControlPoint {
	var p trajectory.ControlPoint
	e.ws.Update(func(s *trajectory.State) error {
		p = s.Points.AddPoint(e.centre)
		return nil
	})
	return p
}

// RemovePoints deletes ids, never id 0, and returns what was removed.
func (e *Editor) RemovePoints(ids []int) []int {
	var removed []int
	e.ws.Update(func(s *trajectory.State) error {
		removed = s.Points.RemovePoints(ids)
		return nil
	})
	return removed
}

// ClearAll removes every point but id 0 and drops the trajectory.
func (e *Editor) ClearAll() []int {
	var removed []int
	e.ws.Update(func(s *trajectory.State) error {
		removed = s.Points.ClearAllExcept0()
		s.ClearTrajectory()
		return nil
	})
	return removed
}

// ClearTrajectory drops the trajectory and keeps the points.
func (e *Editor) ClearTrajectory() {
	e.ws.Update(func(s *trajectory.State) error {
		s.ClearTrajectory()
		return nil
	})
}

// Generate requests a trajectory through the current points.
func (e *Editor) Generate(ctx context.Context, timing trajectory.Timing) (trajectory.Trajectory, error) {
	return e.gen.Generate(ctx, timing)
}

// Start begins executing the current points.
func (e *Editor) Start(ctx context.Context, timing trajectory.Timing) error {
	return e.exec.Start(ctx, timing)
}

// Stop halts execution. It is a no-op while idle.
func (e *Editor) Stop(ctx context.Context) error {
	return e.exec.Stop(ctx)
}

// Hover returns the marker under pixel and its tooltip text.
// The hit test and the tooltip read the same state: renders happen under
// the workspace lock, so the frame cannot change inside View.
func (e *Editor) Hover(view projection.View, pixel projection.Vec2) (hit projection.Hit, tip string, ok bool, err error) {
	e.ws.View(func(s *trajectory.State) {
		hit, ok, err = e.adapter.HitTest(view, pixel)
		if err != nil || !ok {
			return
		}
		tip = projection.Tooltip(hit, s.Snapshot())
	})
	return hit, tip, ok, err
}

// Run keeps id 0 on the live end effector while no trajectory is running,
// until ctx is cancelled.
func (e *Editor) Run(ctx context.Context) {
	e.trackIdle(ctx)
	ticker := e.clock.NewTicker(e.idlePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			e.trackIdle(ctx)
		}
	}
}

func (e *Editor) trackIdle(ctx context.Context) {
	epoch, idle := e.exec.IdleEpoch()
	if !idle {
		return
	}
	sample, err := e.feed.Position(ctx)
	if err != nil {
		if ctx.Err() == nil {
			monitoring.Logf("idle telemetry read failed: %v", err)
		}
		return
	}
	// a run that started and finished during the read has already
	// committed a newer anchor
	e.exec.WhileIdle(epoch, func() {
		e.ws.Update(func(s *trajectory.State) error {
			if s.SampleKnown && s.Sample == sample && s.Points.Anchored() {
				return errUnchanged
			}
			s.SetSample(sample)
			s.SyncEndEffector()
			return nil
		})
	})
}
