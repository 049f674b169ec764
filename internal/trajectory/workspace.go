package trajectory

import "sync"

// State is the mutable editor state guarded by a Workspace.
type State struct {
	Points      *PointStore
	Trajectory  Trajectory
	Extrema     KinematicExtrema
	Sample      EndEffectorSample
	SampleKnown bool
}

// SetTrajectory replaces the trajectory and its extrema together.
func (s *State) SetTrajectory(t Trajectory, e KinematicExtrema) {
	s.Trajectory = t
	s.Extrema = e
}

// ClearTrajectory empties the trajectory and its extrema.
func (s *State) ClearTrajectory() {
	s.Trajectory = Trajectory{}
	s.Extrema = KinematicExtrema{}
}

// SetSample records a fresh end-effector reading. The id-0 point is not
// moved; use SyncEndEffector for that.
func (s *State) SetSample(sample EndEffectorSample) {
	s.Sample = sample
	s.SampleKnown = true
}

// SyncEndEffector snaps id 0 onto the freshest sample, if any. It reports
// whether a sample was available.
func (s *State) SyncEndEffector() bool {
	if !s.SampleKnown {
		return false
	}
	s.Points.SyncEndEffector(s.Sample)
	return true
}

// Snapshot is an immutable copy of a State.
type Snapshot struct {
	Points      []ControlPoint    `json:"points"`
	Removable   []int             `json:"removable_ids"`
	NextID      int               `json:"next_id"`
	Anchored    bool              `json:"anchored"`
	Trajectory  Trajectory        `json:"trajectory"`
	Extrema     KinematicExtrema  `json:"extrema"`
	Sample      EndEffectorSample `json:"sample"`
	SampleKnown bool              `json:"sample_known"`
}

// Snapshot deep-copies s.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Points:      s.Points.Points(),
		Removable:   s.Points.RemovableIDs(),
		NextID:      s.Points.NextID(),
		Anchored:    s.Points.Anchored(),
		Trajectory:  s.Trajectory.Clone(),
		Extrema:     s.Extrema,
		Sample:      s.Sample,
		SampleKnown: s.SampleKnown,
	}
}

// RenderFunc is invoked with the lock held after every successful Update.
// It must not call back into the Workspace.
type RenderFunc func(*State)

// Workspace owns the editor State. Every mutation goes through Update so
// that it is serialised with other mutations and followed by a render pass
// before the lock is released.
type Workspace struct {
	mu    sync.Mutex
	state State
	hooks []RenderFunc
}

// NewWorkspace creates a workspace whose id-0 point sits at origin.
func NewWorkspace(origin EndEffectorSample) *Workspace {
	return &Workspace{state: State{Points: NewPointStore(origin)}}
}

// OnRender registers a render hook.
func (w *Workspace) OnRender(fn RenderFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, fn)
}

// Update applies fn and, if it succeeds, renders. A failing fn must leave
// the state untouched.
func (w *Workspace) Update(fn func(*State) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := fn(&w.state); err != nil {
		return err
	}
	w.renderLocked()
	return nil
}

// Render runs the render hooks without mutating anything.
func (w *Workspace) Render() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.renderLocked()
}

func (w *Workspace) renderLocked() {
	for _, fn := range w.hooks {
		fn(&w.state)
	}
}

// View gives fn consistent read access. fn must not retain the State.
func (w *Workspace) View(fn func(*State)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.state)
}

// Snapshot returns a deep copy of the current state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Snapshot()
}

// Request captures the points and anchor status a generation or run request
// needs, in one consistent read.
func (w *Workspace) Request() (axes [3][]float64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.Points.Anchored() {
		return axes, ErrAnchorUnknown
	}
	return w.state.Points.Axes(), nil
}
