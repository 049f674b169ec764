package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trajectory.editor/internal/db"
	"github.com/banshee-data/trajectory.editor/internal/httputil"
	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/trajapi"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
	"github.com/banshee-data/trajectory.editor/internal/version"
)

// RunStore records run history. *db.DB implements it.
type RunStore interface {
	InsertRun(r *db.Run) error
	FinishRun(id string, outcome db.Outcome, endedAt time.Time, samplesSent int, runErr error) error
	ListRuns(limit int) ([]db.Run, error)
}

// DefaultRunListLimit caps GET /api/runs without a limit parameter.
const DefaultRunListLimit = 50

// Server serves the planning and execution contract.
type Server struct {
	kv        KV
	planner   Planner
	runner    *Runner
	runs      RunStore
	maxPoints int
}

// NewServer wires the handlers. runs may be nil to disable history.
func NewServer(kv KV, planner Planner, runner *Runner, runs RunStore, maxPoints int) *Server {
	if maxPoints <= 0 {
		maxPoints = trajapi.MaxPoints
	}
	s := &Server{kv: kv, planner: planner, runner: runner, runs: runs, maxPoints: maxPoints}
	runner.OnFinish(s.recordFinish)
	return s
}

// ServeMux returns the backend routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(trajapi.PathGenerate, s.handleGenerate)
	mux.HandleFunc(trajapi.PathRun, s.handleRun)
	mux.HandleFunc(trajapi.PathRunStatus, s.handleRunStatus)
	mux.HandleFunc(trajapi.PathRunStop, s.handleRunStop)
	mux.HandleFunc(trajapi.PathKey, s.handleKey)
	mux.HandleFunc(trajapi.PathKey+"/keys", s.handleKeys)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/version", handleVersion)
	return mux
}

func (s *Server) plan(w http.ResponseWriter, req trajapi.GenerateRequest) (Plan, bool) {
	p, err := s.planner.Plan(trajectory.Timing{Duration: req.TF, Step: req.TStep}, req.Points)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return Plan{}, false
	}
	return p, true
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req trajapi.GenerateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	p, ok := s.plan(w, req)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, Summarize(p, s.maxPoints))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req trajapi.RunRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.PrimitiveKey == "" || req.PositionKey == "" || req.VelocityKey == "" {
		httputil.BadRequest(w, "primitive_key, position_key and velocity_key are required")
		return
	}
	p, ok := s.plan(w, req.GenerateRequest)
	if !ok {
		return
	}
	if s.runner.Running() {
		httputil.Conflict(w, ErrRunnerBusy.Error())
		return
	}

	run := &db.Run{
		ID:             uuid.NewString(),
		StartedAt:      time.Now(),
		Duration:       req.TF,
		Step:           req.TStep,
		PointCount:     len(req.Points[0]),
		SampleCount:    p.Len(),
		PrimitiveValue: req.PrimitiveValue,
		PositionKey:    req.PositionKey,
		VelocityKey:    req.VelocityKey,
	}
	if s.runs != nil {
		if err := s.runs.InsertRun(run); err != nil {
			monitoring.Logf("recording run %s: %v", run.ID, err)
		}
	}

	step := time.Duration(req.TStep * float64(time.Second))
	if err := s.runner.Start(run.ID, p, req.RunKeys, step); err != nil {
		if s.runs != nil {
			s.runs.FinishRun(run.ID, db.OutcomeFailed, time.Now(), 0, err)
		}
		if errors.Is(err, ErrRunnerBusy) {
			httputil.Conflict(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	monitoring.Logf("run %s started: %d samples every %s", run.ID, p.Len(), step)
	httputil.WriteJSONOK(w, map[string]string{"run_id": run.ID})
}

func (s *Server) recordFinish(res Result) {
	monitoring.Logf("run %s %s after %d samples", res.RunID, res.Outcome, res.SamplesSent)
	if s.runs == nil {
		return
	}
	if err := s.runs.FinishRun(res.RunID, res.Outcome, res.EndedAt, res.SamplesSent, res.Err); err != nil {
		monitoring.Logf("recording end of run %s: %v", res.RunID, err)
	}
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"running": s.runner.Running()})
}

func (s *Server) handleRunStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.runner.Stop()
	httputil.WriteJSONOK(w, map[string]bool{"running": false})
}

// handleKey reads (GET ?key=<json string or list>) or writes (POST
// {key, val}) controller keys. Stored values that are JSON are returned as
// JSON; anything else comes back as a string.
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.readKeys(w, r)
	case http.MethodPost:
		s.writeKey(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) readKeys(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Query().Get("key")
	if param == "" {
		httputil.BadRequest(w, "missing key parameter")
		return
	}
	var key string
	if err := json.Unmarshal([]byte(param), &key); err == nil {
		v, err := s.value(r, key)
		if err != nil {
			httputil.BadGateway(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, v)
		return
	}
	var keys []string
	if err := json.Unmarshal([]byte(param), &keys); err != nil {
		httputil.BadRequest(w, "key must be a JSON string or list of strings")
		return
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		v, err := s.value(r, k)
		if err != nil {
			httputil.BadGateway(w, err.Error())
			return
		}
		out[k] = v
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) value(r *http.Request, key string) (json.RawMessage, error) {
	v, err := s.kv.Get(r.Context(), key)
	if errors.Is(err, ErrKeyNotFound) {
		return json.RawMessage("null"), nil
	}
	if err != nil {
		return nil, err
	}
	if json.Valid([]byte(v)) {
		return json.RawMessage(v), nil
	}
	quoted, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return quoted, nil
}

func (s *Server) writeKey(w http.ResponseWriter, r *http.Request) {
	var kw trajapi.KeyWrite
	if err := httputil.DecodeJSON(r, &kw); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if kw.Key == "" || len(kw.Val) == 0 {
		httputil.BadRequest(w, "key and val are required")
		return
	}
	val := string(kw.Val)
	var str string
	if err := json.Unmarshal(kw.Val, &str); err == nil {
		val = str
	} else {
		var buf bytes.Buffer
		if err := json.Compact(&buf, kw.Val); err == nil {
			val = buf.String()
		}
	}
	if err := s.kv.Set(r.Context(), kw.Key, val); err != nil {
		httputil.BadGateway(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	keys, err := s.kv.Keys(r.Context())
	if err != nil {
		httputil.BadGateway(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, keys)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.runs == nil {
		httputil.WriteJSONOK(w, []db.Run{})
		return
	}
	limit := DefaultRunListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
