package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajectory.editor/internal/backend"
	"github.com/banshee-data/trajectory.editor/internal/config"
	"github.com/banshee-data/trajectory.editor/internal/editor"
	"github.com/banshee-data/trajectory.editor/internal/execution"
	"github.com/banshee-data/trajectory.editor/internal/generation"
	"github.com/banshee-data/trajectory.editor/internal/httputil"
	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/projection"
	"github.com/banshee-data/trajectory.editor/internal/testutil"
	"github.com/banshee-data/trajectory.editor/internal/timeutil"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

func init() {
	monitoring.SetLogger(nil)
}

var anchorSample = trajectory.EndEffectorSample{X: 0.1, Y: 0.2, Z: 0.5}

type host struct {
	ed      *editor.Editor
	srv     *Server
	mux     *http.ServeMux
	kv      *backend.MemoryStore
	runner  *backend.Runner
	backend *httptest.Server
}

// newHost serves an editor wired to a development backend with an in-memory
// store. Nothing ticks unless a test drives the mock clocks.
func newHost(t *testing.T) *host {
	t.Helper()
	h := &host{kv: backend.NewMemoryStore()}
	h.runner = backend.NewRunner(h.kv, timeutil.NewMockClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
	h.backend = httptest.NewServer(backend.NewServer(h.kv, backend.CatmullRom{}, h.runner, nil, 0).ServeMux())
	t.Cleanup(func() {
		h.runner.Stop()
		h.backend.Close()
	})

	cfg := *config.DefaultEditorConfig()
	cfg.BackendURL = h.backend.URL
	clock := timeutil.NewMockClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	h.ed, _ = editor.Build(cfg, httputil.NewStandardClient(nil), nil, clock)
	t.Cleanup(h.ed.Controller().Close)

	h.srv = NewServer(h.ed, Options{})
	t.Cleanup(h.srv.Hub().Close)
	h.mux = h.srv.ServeMux()
	return h
}

// anchor does what the idle tracker does on its first successful read.
func anchor(ed *editor.Editor, s trajectory.EndEffectorSample) {
	ed.Workspace().Update(func(st *trajectory.State) error {
		st.SetSample(s)
		st.SyncEndEffector()
		return nil
	})
}

func (h *host) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.Serve(h.mux, testutil.NewJSONRequest(t, method, path, body))
}

func xyPixel(x, y float64) projection.Vec2 {
	b := projection.Bounds{Min: -0.8, Max: 0.8}
	return projection.NewGridScene(projection.ViewXY, b, b, 640, 480).ToPixel(projection.Vec2{X: x, Y: y})
}

func TestState(t *testing.T) {
	h := newHost(t)

	var st StateResponse
	testutil.DecodeJSON(t, h.do(t, http.MethodGet, "/api/state", nil), &st)
	require.Len(t, st.Points, 1)
	assert.Equal(t, 0, st.Points[0].ID)
	assert.False(t, st.Anchored)
	assert.Empty(t, st.Removable)
	assert.Contains(t, st.Frames, projection.ViewXY)
	assert.Contains(t, st.Frames, projection.ViewXZ)
	assert.Equal(t, execution.Idle, st.Execution.State)
	assert.False(t, st.Generating)

	rec := h.do(t, http.MethodPost, "/api/state", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestPoints_AddRemoveClear(t *testing.T) {
	h := newHost(t)

	for want := 1; want <= 3; want++ {
		rec := h.do(t, http.MethodPost, "/api/points", nil)
		testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
		var p trajectory.ControlPoint
		testutil.DecodeJSON(t, rec, &p)
		assert.Equal(t, want, p.ID)
		assert.Equal(t, trajectory.ControlPoint{ID: want, X: 0, Y: 0, Z: 0.6}, p)
	}

	var removed map[string][]int
	testutil.DecodeJSON(t, h.do(t, http.MethodPost, "/api/points/remove", map[string][]int{"ids": {0, 2}}), &removed)
	assert.Equal(t, []int{2}, removed["removed"])
	assert.Equal(t, []int{1, 3}, h.ed.Snapshot().Removable)

	testutil.AssertJSONError(t, h.do(t, http.MethodPost, "/api/points/remove", `{}`), http.StatusBadRequest, "ids")
	testutil.AssertJSONError(t, h.do(t, http.MethodPost, "/api/points/remove", `{"ids": "x"}`), http.StatusBadRequest, "invalid JSON")

	testutil.DecodeJSON(t, h.do(t, http.MethodPost, "/api/points/clear", nil), &removed)
	assert.Equal(t, []int{1, 3}, removed["removed"])
	testutil.DecodeJSON(t, h.do(t, http.MethodPost, "/api/points/clear", nil), &removed)
	assert.Equal(t, []int{}, removed["removed"])

	snap := h.ed.Snapshot()
	require.Len(t, snap.Points, 1)
	assert.Equal(t, 0, snap.Points[0].ID)
	assert.Equal(t, 4, snap.NextID, "ids are never reused")
}

func TestDrag(t *testing.T) {
	h := newHost(t)
	h.do(t, http.MethodPost, "/api/points", nil)

	px := xyPixel(0.2, 0.3)
	rec := h.do(t, http.MethodPost, "/api/points/drag", map[string]interface{}{"id": 1, "view": "xy", "x": px.X, "y": px.Y})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var p trajectory.ControlPoint
	testutil.DecodeJSON(t, rec, &p)
	assert.InDelta(t, 0.2, p.X, 1e-9)
	assert.InDelta(t, 0.3, p.Y, 1e-9)
	assert.InDelta(t, 0.6, p.Z, 1e-9)

	xz, err := h.ed.Adapter().Frame(projection.ViewXZ)
	require.NoError(t, err)
	markers := xz.MarkersOf(projection.SeriesControl)
	require.Len(t, markers, 2)
	assert.InDelta(t, 0.2, markers[1].Data.X, 1e-9)
	assert.InDelta(t, 0.6, markers[1].Data.Y, 1e-9)

	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"missing id", `{"view": "xy", "x": 1, "y": 1}`, http.StatusBadRequest, "id is required"},
		{"id zero", `{"id": 0, "view": "xy", "x": 1, "y": 1}`, http.StatusConflict, "not draggable"},
		{"unknown id", `{"id": 42, "view": "xy", "x": 1, "y": 1}`, http.StatusNotFound, "not found"},
		{"unknown view", `{"id": 1, "view": "yz", "x": 1, "y": 1}`, http.StatusBadRequest, "unknown view"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertJSONError(t, h.do(t, http.MethodPost, "/api/points/drag", tt.body), tt.status, tt.want)
		})
	}
}

func TestViewportAndRefresh(t *testing.T) {
	h := newHost(t)

	var frames map[projection.View]projection.Frame
	testutil.DecodeJSON(t, h.do(t, http.MethodPost, "/api/viewport", `{"width": 800, "height": 600}`), &frames)
	assert.Equal(t, 800, frames[projection.ViewXY].Width)
	assert.Equal(t, 600, frames[projection.ViewXZ].Height)

	testutil.DecodeJSON(t, h.do(t, http.MethodPost, "/api/viewport", `{"view": "xz", "width": 300, "height": 200}`), &frames)
	assert.Equal(t, 800, frames[projection.ViewXY].Width)
	assert.Equal(t, 300, frames[projection.ViewXZ].Width)

	testutil.AssertJSONError(t, h.do(t, http.MethodPost, "/api/viewport", `{"width": 0, "height": 600}`), http.StatusBadRequest, "positive")
	testutil.AssertJSONError(t, h.do(t, http.MethodPost, "/api/viewport", `{"view": "yz", "width": 1, "height": 1}`), http.StatusBadRequest, "unknown view")

	rec := h.do(t, http.MethodPost, "/api/refresh", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)
	xz, _ := h.ed.Adapter().Frame(projection.ViewXZ)
	assert.Equal(t, 300, xz.Width)
}

func TestGenerate(t *testing.T) {
	h := newHost(t)
	h.do(t, http.MethodPost, "/api/points", nil)

	testutil.AssertJSONError(t, h.do(t, http.MethodPost, "/api/trajectory/generate", `{"duration": 1, "step": 0.01}`),
		http.StatusConflict, "not yet known")

	anchor(h.ed, anchorSample)
	testutil.AssertJSONError(t, h.do(t, http.MethodPost, "/api/trajectory/generate", `{"duration": 1, "step": 2}`),
		http.StatusBadRequest, "bad trajectory final time or timestep")
	testutil.AssertJSONError(t, h.do(t, http.MethodPost, "/api/trajectory/generate", `{"duration": 0, "step": 0.1}`),
		http.StatusBadRequest, "bad trajectory final time or timestep")
	assert.True(t, h.ed.Snapshot().Trajectory.Empty())

	rec := h.do(t, http.MethodPost, "/api/trajectory/generate", `{"duration": 1, "step": 0.01}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var resp struct {
		Trajectory trajectory.Trajectory       `json:"trajectory"`
		Extrema    trajectory.KinematicExtrema `json:"extrema"`
	}
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, 50, resp.Trajectory.Len())
	assert.InDelta(t, anchorSample.X, resp.Trajectory.X[0], 1e-9)
	assert.Greater(t, resp.Extrema.MaxVel.Norm, 0.0)

	xy, _ := h.ed.Adapter().Frame(projection.ViewXY)
	line, ok := xy.Line(projection.SeriesTrajectory)
	require.True(t, ok)
	assert.Len(t, line.Data, 50)

	rec = h.do(t, http.MethodPost, "/api/trajectory/clear", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)
	snap := h.ed.Snapshot()
	assert.True(t, snap.Trajectory.Empty())
	assert.Len(t, snap.Points, 2, "clearing the trajectory keeps the points")
}

func TestExecution_StartStop(t *testing.T) {
	h := newHost(t)
	h.do(t, http.MethodPost, "/api/points", nil)
	anchor(h.ed, anchorSample)

	var info execution.SessionInfo
	testutil.DecodeJSON(t, h.do(t, http.MethodPost, "/api/execution/stop", nil), &info)
	assert.Equal(t, execution.Idle, info.State, "stop while idle is a no-op")

	testutil.AssertJSONError(t, h.do(t, http.MethodPost, "/api/execution/start", `{"duration": 1, "step": 2}`),
		http.StatusBadRequest, "bad trajectory final time or timestep")

	rec := h.do(t, http.MethodPost, "/api/execution/start", `{"duration": 2, "step": 0.1}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeJSON(t, rec, &info)
	assert.Equal(t, execution.Running, info.State)
	assert.Equal(t, 200*time.Millisecond, info.StatusPeriod)
	assert.True(t, h.runner.Running())

	testutil.AssertJSONError(t, h.do(t, http.MethodPost, "/api/execution/start", `{"duration": 2, "step": 0.1}`),
		http.StatusConflict, "already running")

	testutil.DecodeJSON(t, h.do(t, http.MethodGet, "/api/execution/status", nil), &info)
	assert.Equal(t, execution.Running, info.State)

	testutil.DecodeJSON(t, h.do(t, http.MethodPost, "/api/execution/stop", nil), &info)
	assert.Equal(t, execution.Idle, info.State)
	assert.False(t, h.runner.Running())
}

func TestHit(t *testing.T) {
	h := newHost(t)
	h.do(t, http.MethodPost, "/api/points", nil)

	px := xyPixel(0, 0)
	var resp hitResponse
	testutil.DecodeJSON(t, h.do(t, http.MethodGet, fmt.Sprintf("/api/hit?view=xy&x=%f&y=%f", px.X, px.Y), nil), &resp)
	require.True(t, resp.Hit)
	assert.Equal(t, projection.SeriesControl, resp.Target.Series)
	assert.Equal(t, 1, resp.Target.ID)
	assert.Equal(t, "Point 1\nX: 0.000\nY: 0.000", resp.Tooltip)

	far := xyPixel(0.7, -0.7)
	var miss hitResponse
	testutil.DecodeJSON(t, h.do(t, http.MethodGet, fmt.Sprintf("/api/hit?view=xy&x=%f&y=%f", far.X, far.Y), nil), &miss)
	assert.Equal(t, hitResponse{}, miss)

	testutil.AssertJSONError(t, h.do(t, http.MethodGet, "/api/hit?view=xy&x=a&y=1", nil), http.StatusBadRequest, "numbers")
	testutil.AssertJSONError(t, h.do(t, http.MethodGet, "/api/hit?view=yz&x=1&y=1", nil), http.StatusBadRequest, "unknown view")
}

func TestVersion(t *testing.T) {
	h := newHost(t)
	var v map[string]string
	testutil.DecodeJSON(t, h.do(t, http.MethodGet, "/api/version", nil), &v)
	assert.Contains(t, v, "version")
	assert.Contains(t, v, "build_time")
}

func TestBackendFailureIsBadGateway(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.DefaultError = errors.New("connection refused")
	cfg := *config.DefaultEditorConfig()
	ed, _ := editor.Build(cfg, mock, nil, timeutil.NewMockClock(time.Time{}))
	defer ed.Controller().Close()
	ed.AddPoint()
	anchor(ed, anchorSample)
	mux := NewServer(ed, Options{}).ServeMux()

	rec := testutil.Serve(mux, testutil.NewJSONRequest(t, http.MethodPost, "/api/trajectory/generate", `{"duration": 1, "step": 0.1}`))
	testutil.AssertJSONError(t, rec, http.StatusBadGateway, "connection refused")

	rec = testutil.Serve(mux, testutil.NewJSONRequest(t, http.MethodPost, "/api/execution/start", `{"duration": 1, "step": 0.1}`))
	testutil.AssertJSONError(t, rec, http.StatusBadGateway, "execution run failed")
	assert.Equal(t, execution.Idle, ed.Controller().State())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&trajectory.ValidationError{Field: "step", Reason: "bad"}, http.StatusBadRequest},
		{fmt.Errorf("frame: %w", projection.ErrUnknownView), http.StatusBadRequest},
		{fmt.Errorf("drag 9: %w", trajectory.ErrPointNotFound), http.StatusNotFound},
		{execution.ErrAlreadyRunning, http.StatusConflict},
		{execution.ErrClosed, http.StatusConflict},
		{generation.ErrGenerationInFlight, http.StatusConflict},
		{trajectory.ErrAnchorUnknown, http.StatusConflict},
		{projection.ErrNotDraggable, http.StatusConflict},
		{&generation.Error{Err: errors.New("boom")}, http.StatusBadGateway},
		{&execution.Error{Op: "stop", Err: errors.New("boom")}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, tt.err)
		if rec.Code != tt.status {
			t.Errorf("writeError(%v) status = %d, want %d", tt.err, rec.Code, tt.status)
		}
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(nil)

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state?x=1", nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "418")
	assert.Contains(t, lines[0], "GET")
	assert.Contains(t, lines[0], "/api/state?x=1")
	assert.True(t, strings.HasSuffix(lines[0], "ms"))
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"502"+colorReset, statusCodeColor(502))
	assert.Equal(t, "101", statusCodeColor(101))
}

func TestRunningStateReachesHostFromContext(t *testing.T) {
	h := newHost(t)
	h.do(t, http.MethodPost, "/api/points", nil)
	anchor(h.ed, anchorSample)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/execution/start", `{"duration": 1, "step": 0.1}`).WithContext(ctx)
	rec := testutil.Serve(h.mux, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadGateway)
	assert.Equal(t, execution.Idle, h.ed.Controller().State())
	assert.False(t, h.runner.Running())
}
