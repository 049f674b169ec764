package api

import (
	"net/http"
	"strconv"

	"github.com/banshee-data/trajectory.editor/internal/editor"
	"github.com/banshee-data/trajectory.editor/internal/execution"
	"github.com/banshee-data/trajectory.editor/internal/httputil"
	"github.com/banshee-data/trajectory.editor/internal/projection"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
	"github.com/banshee-data/trajectory.editor/internal/version"
)

// StateResponse is the full editor state as served by GET /api/state.
type StateResponse struct {
	trajectory.Snapshot
	Frames     map[projection.View]projection.Frame `json:"frames"`
	Execution  execution.SessionInfo                `json:"execution"`
	Generating bool                                 `json:"generating"`
}

type timingRequest struct {
	Duration float64 `json:"duration"`
	Step     float64 `json:"step"`
}

func (t timingRequest) timing() trajectory.Timing {
	return trajectory.Timing{Duration: t.Duration, Step: t.Step}
}

type removeRequest struct {
	IDs []int `json:"ids"`
}

type dragRequest struct {
	ID   *int            `json:"id"`
	View projection.View `json:"view"`
	X    float64         `json:"x"`
	Y    float64         `json:"y"`
}

type viewportRequest struct {
	View   projection.View `json:"view"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
}

type hitResponse struct {
	Hit     bool            `json:"hit"`
	Target  *projection.Hit `json:"target,omitempty"`
	Tooltip string          `json:"tooltip,omitempty"`
}

func (s *Server) state() StateResponse {
	return StateResponse{
		Snapshot:   s.ed.Snapshot(),
		Frames:     s.ed.Adapter().Frames(),
		Execution:  s.ed.Controller().Session(),
		Generating: s.ed.Generating(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.state())
}

func (s *Server) handleAddPoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, s.ed.AddPoint())
}

func (s *Server) handleRemovePoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req removeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if len(req.IDs) == 0 {
		httputil.BadRequest(w, "ids are required")
		return
	}
	removed := s.ed.RemovePoints(req.IDs)
	if removed == nil {
		removed = []int{}
	}
	httputil.WriteJSONOK(w, map[string][]int{"removed": removed})
}

func (s *Server) handleClearPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	removed := s.ed.ClearAll()
	if removed == nil {
		removed = []int{}
	}
	httputil.WriteJSONOK(w, map[string][]int{"removed": removed})
}

func (s *Server) handleDrag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req dragRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.ID == nil {
		httputil.BadRequest(w, "id is required")
		return
	}
	err := s.ed.HandleEvent(editor.PointDragged{
		ID:    *req.ID,
		View:  req.View,
		Pixel: projection.Vec2{X: req.X, Y: req.Y},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	var p trajectory.ControlPoint
	s.ed.Workspace().View(func(st *trajectory.State) {
		p, _ = st.Points.Point(*req.ID)
	})
	httputil.WriteJSONOK(w, p)
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req viewportRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		httputil.BadRequest(w, "width and height must be positive")
		return
	}
	if req.View != "" && !req.View.Valid() {
		writeError(w, projection.ErrUnknownView)
		return
	}
	if err := s.ed.HandleEvent(editor.ViewportResized{View: req.View, Width: req.Width, Height: req.Height}); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.ed.Adapter().Frames())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	for _, rf := range s.refreshable {
		rf.Refresh()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req timingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if _, err := s.ed.Generate(r.Context(), req.timing()); err != nil {
		writeError(w, err)
		return
	}
	snap := s.ed.Snapshot()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"trajectory": snap.Trajectory,
		"extrema":    snap.Extrema,
	})
}

func (s *Server) handleClearTrajectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.ed.ClearTrajectory()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req timingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.ed.Start(r.Context(), req.timing()); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.ed.Controller().Session())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.ed.Stop(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.ed.Controller().Session())
}

func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.ed.Controller().Session())
}

func (s *Server) handleHit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		httputil.BadRequest(w, "x and y must be numbers")
		return
	}
	hit, tip, ok, err := s.ed.Hover(projection.View(q.Get("view")), projection.Vec2{X: x, Y: y})
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		httputil.WriteJSONOK(w, hitResponse{})
		return
	}
	httputil.WriteJSONOK(w, hitResponse{Hit: true, Target: &hit, Tooltip: tip})
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
