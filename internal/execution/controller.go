// Package execution drives a trajectory run on the controller: it starts
// the run, follows the end effector with a telemetry poll, watches the run
// status, and snaps the end-effector control point to the final position
// when the run ends.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/telemetry"
	"github.com/banshee-data/trajectory.editor/internal/timeutil"
	"github.com/banshee-data/trajectory.editor/internal/trajapi"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

// State is the controller's execution state.
type State string

const (
	Idle    State = "idle"
	Running State = "running"
)

// Defaults for Config fields left zero.
const (
	DefaultTelemetryPeriod = 100 * time.Millisecond
	DefaultStatusMinPeriod = 20 * time.Millisecond
)

var (
	// ErrAlreadyRunning rejects Start while a run is in progress.
	ErrAlreadyRunning = errors.New("execution already running")
	// ErrClosed rejects Start after Close.
	ErrClosed = errors.New("execution controller closed")
)

// Error wraps a failed run or stop request.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("execution %s failed: %v", e.Op, e.Err) }

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Backend executes trajectories. trajapi.Client implements it.
type Backend interface {
	Run(ctx context.Context, req trajapi.RunRequest) error
	Status(ctx context.Context) (trajapi.RunStatus, error)
	Stop(ctx context.Context, req trajapi.RunRequest) error
}

// Config holds the run keys and poll cadence.
type Config struct {
	Keys            trajapi.RunKeys
	TelemetryPeriod time.Duration
	StatusMinPeriod time.Duration
}

// StatusPeriod returns the run-status poll period for a run of the given
// duration: a tenth of the duration, never below min.
func StatusPeriod(timing trajectory.Timing, min time.Duration) time.Duration {
	p := time.Duration(timing.Duration / 10 * float64(time.Second))
	if p < min {
		return min
	}
	return p
}

// SessionInfo describes the current or most recent run.
type SessionInfo struct {
	ID             uint64            `json:"id"`
	State          State             `json:"state"`
	Timing         trajectory.Timing `json:"timing"`
	StartedAt      time.Time         `json:"started_at"`
	EndedAt        time.Time         `json:"ended_at,omitempty"`
	StatusPeriod   time.Duration     `json:"status_period"`
	TelemetryTicks int               `json:"telemetry_ticks"`
	StatusTicks    int               `json:"status_ticks"`
	LastRunning    *bool             `json:"last_running,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
}

// session owns the two polls of one run. Its fields other than ctx are
// guarded by Controller.mu.
type session struct {
	info      SessionInfo
	req       trajapi.RunRequest
	ctx       context.Context
	cancel    context.CancelFunc
	once      sync.Once
	telemetry timeutil.Ticker
	status    timeutil.Ticker
}

// stop cancels both polls. It is safe to call more than once.
func (s *session) stop() {
	s.once.Do(func() {
		s.cancel()
		if s.telemetry != nil {
			s.telemetry.Stop()
		}
		if s.status != nil {
			s.status.Stop()
		}
	})
}

// Controller runs the Idle -> Running -> Idle state machine.
type Controller struct {
	mu      sync.Mutex
	state   State
	session *session
	last    SessionInfo
	nextID  uint64
	closed  bool

	ws      *trajectory.Workspace
	backend Backend
	feed    telemetry.Feed
	clock   timeutil.Clock
	cfg     Config

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle Controller. A nil clock means the real clock.
func New(ws *trajectory.Workspace, backend Backend, feed telemetry.Feed, clock timeutil.Clock, cfg Config) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.TelemetryPeriod <= 0 {
		cfg.TelemetryPeriod = DefaultTelemetryPeriod
	}
	if cfg.StatusMinPeriod <= 0 {
		cfg.StatusMinPeriod = DefaultStatusMinPeriod
	}
	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		state:   Idle,
		last:    SessionInfo{State: Idle},
		ws:      ws,
		backend: backend,
		feed:    feed,
		clock:   clock,
		cfg:     cfg,
		base:    base,
		cancel:  cancel,
	}
}

// State returns the current execution state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session describes the active run, or the last one if idle.
func (c *Controller) Session() SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session.info
	}
	return c.last
}

// IdleEpoch reports whether the controller is idle, along with the number
// of runs started so far. Pass the epoch to WhileIdle.
func (c *Controller) IdleEpoch() (epoch uint64, idle bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextID, c.state == Idle
}

// WhileIdle runs fn with the state held at Idle and reports whether it ran.
// fn is skipped if a run has started since epoch was read, even one that
// has already finished.
func (c *Controller) WhileIdle(epoch uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle || c.nextID != epoch {
		return false
	}
	fn()
	return true
}

// Start validates timing, posts the run request and, once the backend
// accepts it, starts the telemetry and status polls.
func (c *Controller) Start(ctx context.Context, timing trajectory.Timing) error {
	if err := timing.Validate(); err != nil {
		return err
	}
	points, err := c.ws.Request()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.nextID++
	sctx, cancel := context.WithCancel(c.base)
	s := &session{
		info: SessionInfo{
			ID:           c.nextID,
			State:        Running,
			Timing:       timing,
			StartedAt:    c.clock.Now(),
			StatusPeriod: StatusPeriod(timing, c.cfg.StatusMinPeriod),
		},
		req: trajapi.RunRequest{
			GenerateRequest: trajapi.NewGenerateRequest(timing, points),
			RunKeys:         c.cfg.Keys,
		},
		ctx:    sctx,
		cancel: cancel,
	}
	c.session = s
	c.state = Running
	c.mu.Unlock()

	err = c.backend.Run(ctx, s.req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		// stopped while the run request was outstanding
		if err != nil {
			return &Error{Op: "run", Err: err}
		}
		return nil
	}
	if err != nil {
		s.info.LastError = err.Error()
		c.endLocked(s)
		return &Error{Op: "run", Err: err}
	}

	s.telemetry = c.clock.NewTicker(c.cfg.TelemetryPeriod)
	s.status = c.clock.NewTicker(s.info.StatusPeriod)
	c.wg.Add(2)
	go c.poll(s, s.telemetry, c.telemetryTick)
	go c.poll(s, s.status, c.statusTick)
	monitoring.Logf("execution %d started: duration=%.3fs step=%.3fs status every %s", s.info.ID, timing.Duration, timing.Step, s.info.StatusPeriod)
	return nil
}

// Stop asks the backend to halt the run. It is a no-op while idle. On
// failure the controller stays Running.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return nil
	}
	s := c.session
	c.mu.Unlock()

	if err := c.backend.Stop(ctx, s.req); err != nil {
		return &Error{Op: "stop", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == s {
		c.endLocked(s)
		monitoring.Logf("execution %d stopped", s.info.ID)
	}
	return nil
}

// Close cancels any active run's polls without contacting the backend and
// waits for them to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if s := c.session; s != nil {
		c.endLocked(s)
	}
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// endLocked retires s. c.mu must be held.
func (c *Controller) endLocked(s *session) {
	s.stop()
	s.info.State = Idle
	s.info.EndedAt = c.clock.Now()
	c.last = s.info
	c.session = nil
	c.state = Idle
}

func (c *Controller) poll(s *session, t timeutil.Ticker, tick func(*session)) {
	defer c.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C():
			if s.ctx.Err() != nil {
				return
			}
			tick(s)
		}
	}
}

func (c *Controller) telemetryTick(s *session) {
	sample, err := c.feed.Position(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			monitoring.Logf("execution %d: telemetry read failed: %v", s.info.ID, err)
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return
	}
	s.info.TelemetryTicks++
	c.ws.Update(func(st *trajectory.State) error {
		st.SetSample(sample)
		return nil
	})
}

func (c *Controller) statusTick(s *session) {
	st, err := c.backend.Status(s.ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return
	}
	s.info.StatusTicks++
	if err != nil {
		s.info.LastError = err.Error()
		monitoring.Logf("execution %d: status poll failed: %v", s.info.ID, err)
		return
	}
	if st.Running == nil {
		monitoring.Logf("execution %d: status response has no running flag, still polling", s.info.ID)
		return
	}
	running := *st.Running
	s.info.LastRunning = &running
	if running {
		return
	}

	c.endLocked(s)
	c.ws.Update(func(st *trajectory.State) error {
		st.SyncEndEffector()
		return nil
	})
	monitoring.Logf("execution %d finished after %d status polls", s.info.ID, s.info.StatusTicks)
}
