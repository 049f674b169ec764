package editor

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajectory.editor/internal/config"
	"github.com/banshee-data/trajectory.editor/internal/execution"
	"github.com/banshee-data/trajectory.editor/internal/httputil"
	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/projection"
	"github.com/banshee-data/trajectory.editor/internal/timeutil"
	"github.com/banshee-data/trajectory.editor/internal/trajapi"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

func init() {
	monitoring.SetLogger(nil)
}

type stubFeed struct {
	mu     sync.Mutex
	sample trajectory.EndEffectorSample
	reads  int
}

func (f *stubFeed) Position(ctx context.Context) (trajectory.EndEffectorSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.sample, nil
}

func (f *stubFeed) set(s trajectory.EndEffectorSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sample = s
}

// gatedFeed serves sample, except that one read armed with hold blocks
// until released and then returns the held value.
type gatedFeed struct {
	mu      sync.Mutex
	sample  trajectory.EndEffectorSample
	held    trajectory.EndEffectorSample
	entered chan struct{}
	release chan struct{}
}

func (f *gatedFeed) Position(ctx context.Context) (trajectory.EndEffectorSample, error) {
	f.mu.Lock()
	if f.release != nil {
		entered, release, held := f.entered, f.release, f.held
		f.entered, f.release = nil, nil
		f.mu.Unlock()
		close(entered)
		<-release
		return held, nil
	}
	s := f.sample
	f.mu.Unlock()
	return s, nil
}

func (f *gatedFeed) hold(s trajectory.EndEffectorSample) (entered, release chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = s
	f.entered = make(chan struct{})
	f.release = make(chan struct{})
	return f.entered, f.release
}

func (f *gatedFeed) set(s trajectory.EndEffectorSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sample = s
}

func tenCube() config.EditorConfig {
	cfg := *config.DefaultEditorConfig()
	cfg.Bounds = config.BoundsConfig{
		X: config.Range{0, 10},
		Y: config.Range{0, 10},
		Z: config.Range{0, 10},
	}
	cfg.Viewport = config.ViewportConfig{Width: 640, Height: 480}
	return cfg
}

func newTestEditor(t *testing.T) (*Editor, *httputil.MockHTTPClient, *stubFeed, *timeutil.MockClock) {
	t.Helper()
	mock := httputil.NewMockHTTPClient()
	feed := &stubFeed{sample: trajectory.EndEffectorSample{X: 1, Y: 2, Z: 3}}
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	e, _ := Build(tenCube(), mock, feed, clock)
	t.Cleanup(e.Controller().Close)
	return e, mock, feed, clock
}

func pixelOf(view projection.View, h, v float64) projection.Vec2 {
	b := projection.Bounds{Min: 0, Max: 10}
	return projection.NewGridScene(view, b, b, 640, 480).ToPixel(projection.Vec2{X: h, Y: v})
}

func TestCentre(t *testing.T) {
	cfg := config.DefaultEditorConfig()
	assert.Equal(t, trajectory.EndEffectorSample{X: 0, Y: 0, Z: 0.6}, Centre(cfg.Bounds))
}

func TestEditor_PointLifecycle(t *testing.T) {
	e, _, _, _ := newTestEditor(t)

	p := e.AddPoint()
	assert.Equal(t, trajectory.ControlPoint{ID: 1, X: 5, Y: 5, Z: 5}, p)
	assert.Equal(t, 2, e.AddPoint().ID)
	assert.Equal(t, []int{1}, e.RemovePoints([]int{0, 1}))
	assert.Equal(t, 3, e.AddPoint().ID)

	e.Workspace().Update(func(s *trajectory.State) error {
		s.SetTrajectory(trajectory.Trajectory{T: []float64{0}, X: []float64{1}, Y: []float64{1}, Z: []float64{1}, V: []float64{0}, A: []float64{0}}, trajectory.KinematicExtrema{})
		return nil
	})
	assert.Equal(t, []int{2, 3}, e.ClearAll())
	snap := e.Snapshot()
	assert.True(t, snap.Trajectory.Empty())
	require.Len(t, snap.Points, 1)
	assert.Equal(t, trajectory.EndEffectorID, snap.Points[0].ID)
}

func TestEditor_ClearTrajectoryKeepsPoints(t *testing.T) {
	e, _, _, _ := newTestEditor(t)
	e.AddPoint()
	e.Workspace().Update(func(s *trajectory.State) error {
		s.SetTrajectory(trajectory.Trajectory{T: []float64{0}, X: []float64{1}, Y: []float64{1}, Z: []float64{1}, V: []float64{0}, A: []float64{0}}, trajectory.KinematicExtrema{})
		return nil
	})

	e.ClearTrajectory()
	snap := e.Snapshot()
	assert.True(t, snap.Trajectory.Empty())
	assert.Len(t, snap.Points, 2)

	xz, err := e.Adapter().Frame(projection.ViewXZ)
	require.NoError(t, err)
	line, ok := xz.Line(projection.SeriesTrajectory)
	require.True(t, ok)
	assert.Empty(t, line.Data)
}

func TestEditor_DragUpdatesBothViews(t *testing.T) {
	e, _, _, _ := newTestEditor(t)
	e.AddPoint()

	require.NoError(t, e.HandleEvent(PointDragged{ID: 1, View: projection.ViewXY, Pixel: pixelOf(projection.ViewXY, 2, 5)}))

	p := e.Snapshot().Points[1]
	assert.InDelta(t, 2, p.X, 1e-9)
	assert.InDelta(t, 5, p.Y, 1e-9)
	assert.Equal(t, 5.0, p.Z)

	xz, err := e.Adapter().Frame(projection.ViewXZ)
	require.NoError(t, err)
	var found bool
	for _, m := range xz.MarkersOf(projection.SeriesControl) {
		if m.ID == 1 {
			found = true
			assert.InDelta(t, 2, m.Data.X, 1e-9)
			assert.Equal(t, 5.0, m.Data.Y)
		}
	}
	assert.True(t, found, "point 1 drawn in XZ")
}

func TestEditor_DragRejections(t *testing.T) {
	e, _, _, _ := newTestEditor(t)
	before := e.Snapshot()

	assert.ErrorIs(t, e.HandleEvent(PointDragged{ID: 0, View: projection.ViewXY, Pixel: pixelOf(projection.ViewXY, 1, 1)}), projection.ErrNotDraggable)
	assert.ErrorIs(t, e.HandleEvent(PointDragged{ID: 7, View: projection.ViewXY}), trajectory.ErrPointNotFound)
	e.AddPoint()
	assert.ErrorIs(t, e.HandleEvent(PointDragged{ID: 1, View: "yz"}), projection.ErrUnknownView)
	assert.Equal(t, before.Points[0], e.Snapshot().Points[0])
}

func TestEditor_ResizeAndRefresh(t *testing.T) {
	e, _, _, _ := newTestEditor(t)

	require.NoError(t, e.HandleEvent(ViewportResized{Width: 800, Height: 600}))
	for _, v := range projection.Views {
		f, err := e.Adapter().Frame(v)
		require.NoError(t, err)
		assert.Equal(t, 800, f.Width, "view %s", v)
		assert.Equal(t, 600, f.Height, "view %s", v)
	}

	require.NoError(t, e.HandleEvent(ViewportResized{View: projection.ViewXZ, Width: 300, Height: 200}))
	e.Refresh()
	xy, _ := e.Adapter().Frame(projection.ViewXY)
	xz, _ := e.Adapter().Frame(projection.ViewXZ)
	assert.Equal(t, 800, xy.Width)
	assert.Equal(t, 300, xz.Width)

	assert.ErrorIs(t, e.HandleEvent(ViewportResized{View: "yz", Width: 1, Height: 1}), projection.ErrUnknownView)
}

func TestEditor_Hover(t *testing.T) {
	e, _, _, _ := newTestEditor(t)
	e.AddPoint()

	hit, text, ok, err := e.Hover(projection.ViewXY, pixelOf(projection.ViewXY, 5, 5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, projection.SeriesControl, hit.Series)
	assert.Equal(t, 1, hit.ID)
	assert.Equal(t, "Point 1\nX: 5.000\nY: 5.000", text)

	_, _, ok, err = e.Hover(projection.ViewXY, pixelOf(projection.ViewXY, 9, 9))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEditor_GenerateThroughBackend(t *testing.T) {
	e, mock, _, _ := newTestEditor(t)
	mock.Route(http.MethodPost, trajapi.PathGenerate, func(req *http.Request, body []byte) *httputil.MockResponse {
		return &httputil.MockResponse{StatusCode: http.StatusOK, Body: `{
			"time": [0, 1], "pos": [[1, 5], [2, 5], [3, 5]], "vel": [0, 0], "accel": [0, 0],
			"max_vel": {"norm": 0, "x": 1, "y": 2, "z": 3}, "max_accel": {"norm": 0, "x": 1, "y": 2, "z": 3}}`}
	})
	e.trackIdle(context.Background())
	e.AddPoint()

	tr, err := e.Generate(context.Background(), trajectory.Timing{Duration: 1, Step: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, tr.T)
	assert.Equal(t, 2, e.Snapshot().Trajectory.Len())
}

func TestEditor_IdleTrackerAnchorsEndEffector(t *testing.T) {
	e, _, feed, clock := newTestEditor(t)
	assert.False(t, e.Snapshot().Anchored)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	var ticker *timeutil.MockTicker
	select {
	case ticker = <-clock.Created():
	case <-time.After(2 * time.Second):
		t.Fatal("idle ticker not created")
	}
	assert.Equal(t, DefaultIdlePeriod, ticker.Interval())
	snap := e.Snapshot()
	assert.True(t, snap.Anchored)
	assert.Equal(t, trajectory.ControlPoint{ID: 0, X: 1, Y: 2, Z: 3}, snap.Points[0])

	feed.set(trajectory.EndEffectorSample{X: 4, Y: 4, Z: 4})
	require.True(t, ticker.Tick(clock.Now()))
	require.Eventually(t, func() bool {
		return e.Snapshot().Points[0].X == 4
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEditor_IdleTrackerPausesWhileRunning(t *testing.T) {
	e, mock, feed, _ := newTestEditor(t)
	mock.Route(http.MethodPost, trajapi.PathRun, func(req *http.Request, body []byte) *httputil.MockResponse {
		return &httputil.MockResponse{StatusCode: http.StatusOK}
	})
	e.trackIdle(context.Background())
	e.AddPoint()
	require.NoError(t, e.Start(context.Background(), trajectory.Timing{Duration: 1, Step: 0.1}))
	require.Equal(t, execution.Running, e.Controller().State())

	feed.set(trajectory.EndEffectorSample{X: 9, Y: 9, Z: 9})
	feed.mu.Lock()
	reads := feed.reads
	feed.mu.Unlock()

	e.trackIdle(context.Background())
	assert.Equal(t, 1.0, e.Snapshot().Points[0].X)
	feed.mu.Lock()
	assert.Equal(t, reads, feed.reads, "no reads while running")
	feed.mu.Unlock()
}

func TestEditor_UnsupportedEvent(t *testing.T) {
	e, _, _, _ := newTestEditor(t)
	assert.Error(t, e.HandleEvent(nil))
}

func TestEditor_HoverTooltipMatchesHit(t *testing.T) {
	e, _, _, _ := newTestEditor(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			p := e.AddPoint()
			e.RemovePoints([]int{p.ID})
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	for i := 0; i < 500; i++ {
		hit, tip, ok, err := e.Hover(projection.ViewXY, pixelOf(projection.ViewXY, 5, 5))
		require.NoError(t, err)
		if ok && hit.Series == projection.SeriesControl {
			if !assert.NotEmpty(t, tip, "tooltip for point %d", hit.ID) {
				return
			}
		}
	}
}

func TestEditor_IdleReadDoesNotOverwriteRunResult(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.Route(http.MethodPost, trajapi.PathRun, func(req *http.Request, body []byte) *httputil.MockResponse {
		return &httputil.MockResponse{StatusCode: http.StatusOK}
	})
	mock.Route(http.MethodGet, trajapi.PathRunStatus, func(req *http.Request, body []byte) *httputil.MockResponse {
		return &httputil.MockResponse{StatusCode: http.StatusOK, Body: `{"running": false}`}
	})
	feed := &gatedFeed{sample: trajectory.EndEffectorSample{X: 1, Y: 2, Z: 3}}
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	e, _ := Build(tenCube(), mock, feed, clock)
	t.Cleanup(e.Controller().Close)

	e.trackIdle(context.Background())
	e.AddPoint()

	// an idle read is in flight with a pre-run position
	entered, release := feed.hold(trajectory.EndEffectorSample{X: 0.1, Y: 0.1, Z: 0.1})
	idleDone := make(chan struct{})
	go func() {
		e.trackIdle(context.Background())
		close(idleDone)
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("idle read never started")
	}

	// a whole run starts and finishes meanwhile
	final := trajectory.EndEffectorSample{X: 3, Y: 3, Z: 3}
	feed.set(final)
	require.NoError(t, e.Start(context.Background(), trajectory.Timing{Duration: 5, Step: 0.1}))
	tickers := clock.Tickers()
	require.Len(t, tickers, 2)
	tele, stat := tickers[0], tickers[1]

	require.True(t, tele.Tick(clock.Now()))
	require.Eventually(t, func() bool {
		return e.Snapshot().Sample == final
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, stat.Tick(clock.Now()))
	require.Eventually(t, func() bool {
		return e.Controller().State() == execution.Idle
	}, 2*time.Second, 5*time.Millisecond)
	want := trajectory.ControlPoint{ID: 0, X: 3, Y: 3, Z: 3}
	require.Equal(t, want, e.Snapshot().Points[0])

	close(release)
	select {
	case <-idleDone:
	case <-time.After(2 * time.Second):
		t.Fatal("idle read never returned")
	}
	assert.Equal(t, want, e.Snapshot().Points[0], "stale idle sample must not replace the committed anchor")
	assert.Equal(t, final, e.Snapshot().Sample)
}
