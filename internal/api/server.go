// Package api serves the trajectory editor over HTTP: a JSON API for every
// operator action, chart pages for both projections, a kinematic profile
// image and a websocket stream of rendered frames.
package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/trajectory.editor/internal/editor"
	"github.com/banshee-data/trajectory.editor/internal/execution"
	"github.com/banshee-data/trajectory.editor/internal/generation"
	"github.com/banshee-data/trajectory.editor/internal/httputil"
	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/projection"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

// ANSI escape codes for the access log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server hosts one editor.
type Server struct {
	ed          *editor.Editor
	hub         *Hub
	refreshable []editor.Refreshable
	assetsHost  string
}

// Options tune a Server.
type Options struct {
	// AssetsHost overrides where chart pages load echarts from.
	AssetsHost string
}

// NewServer wires the host around ed. The websocket hub is registered as a
// render hook so every render is streamed to subscribers.
func NewServer(ed *editor.Editor, opts Options) *Server {
	s := &Server{
		ed:         ed,
		hub:        NewHub(ed.Adapter()),
		assetsHost: opts.AssetsHost,
	}
	ed.Workspace().OnRender(s.hub.renderHook)
	s.refreshable = []editor.Refreshable{ed, s.hub}
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the editor routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/points", s.handleAddPoint)
	mux.HandleFunc("/api/points/remove", s.handleRemovePoints)
	mux.HandleFunc("/api/points/clear", s.handleClearPoints)
	mux.HandleFunc("/api/points/drag", s.handleDrag)
	mux.HandleFunc("/api/viewport", s.handleViewport)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/trajectory/generate", s.handleGenerate)
	mux.HandleFunc("/api/trajectory/clear", s.handleClearTrajectory)
	mux.HandleFunc("/api/execution/start", s.handleStart)
	mux.HandleFunc("/api/execution/stop", s.handleStop)
	mux.HandleFunc("/api/execution/status", s.handleExecutionStatus)
	mux.HandleFunc("/api/hit", s.handleHit)
	mux.HandleFunc("/api/version", handleVersion)
	mux.HandleFunc("/views/xy", s.viewHandler(projection.ViewXY))
	mux.HandleFunc("/views/xz", s.viewHandler(projection.ViewXZ))
	mux.HandleFunc("/views/profile.png", s.handleProfile)
	mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	return mux
}

// writeError maps editor errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var genErr *generation.Error
	var execErr *execution.Error
	switch {
	case errors.Is(err, trajectory.ErrInvalidTiming), errors.Is(err, projection.ErrUnknownView):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, trajectory.ErrPointNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, execution.ErrAlreadyRunning),
		errors.Is(err, execution.ErrClosed),
		errors.Is(err, generation.ErrGenerationInFlight),
		errors.Is(err, trajectory.ErrAnchorUnknown),
		errors.Is(err, projection.ErrNotDraggable):
		httputil.Conflict(w, err.Error())
	case errors.As(err, &genErr), errors.As(err, &execErr):
		httputil.BadGateway(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}
