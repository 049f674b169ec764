package backend

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/trajectory.editor/internal/db"
	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/timeutil"
	"github.com/banshee-data/trajectory.editor/internal/trajapi"
)

// ErrRunnerBusy rejects a start while another trajectory is streaming.
var ErrRunnerBusy = errors.New("a trajectory is already running")

// Result describes a finished run.
type Result struct {
	RunID       string
	Outcome     db.Outcome
	SamplesSent int
	EndedAt     time.Time
	Err         error
}

type activeRun struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner streams a plan's setpoints into the KV store, one sample per step,
// after switching the controller to the configured primitive.
type Runner struct {
	kv    KV
	clock timeutil.Clock

	mu       sync.Mutex
	active   *activeRun
	onFinish func(Result)
}

// NewRunner creates an idle runner. A nil clock means the real clock.
func NewRunner(kv KV, clock timeutil.Clock) *Runner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{kv: kv, clock: clock}
}

// OnFinish registers fn to be called once per run, while the run still
// counts as active and before Stop returns.
func (r *Runner) OnFinish(fn func(Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinish = fn
}

// Running reports whether a run is streaming.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start streams plan under run id. It refuses while another run is active.
func (r *Runner) Start(id string, plan Plan, keys trajapi.RunKeys, step time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return ErrRunnerBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := &activeRun{id: id, cancel: cancel, done: make(chan struct{})}
	r.active = run
	go r.loop(ctx, run, plan, keys, step)
	return nil
}

// Stop cancels the active run, if any, and waits for it to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	run := r.active
	r.mu.Unlock()
	if run == nil {
		return
	}
	run.cancel()
	<-run.done
}

func (r *Runner) loop(ctx context.Context, run *activeRun, plan Plan, keys trajapi.RunKeys, step time.Duration) {
	res := Result{RunID: run.id, Outcome: db.OutcomeCompleted}
	defer func() {
		run.cancel()
		res.EndedAt = r.clock.Now()
		r.mu.Lock()
		fn := r.onFinish
		r.mu.Unlock()
		if fn != nil {
			fn(res)
		}
		r.mu.Lock()
		if r.active == run {
			r.active = nil
		}
		r.mu.Unlock()
		close(run.done)
	}()

	fail := func(err error) {
		if ctx.Err() != nil {
			res.Outcome = db.OutcomeStopped
			return
		}
		res.Outcome = db.OutcomeFailed
		res.Err = err
		monitoring.Logf("run %s failed after %d samples: %v", run.id, res.SamplesSent, err)
	}

	if err := r.kv.Set(ctx, keys.PrimitiveKey, keys.PrimitiveValue); err != nil {
		fail(err)
		return
	}

	ticker := r.clock.NewTicker(step)
	defer ticker.Stop()
	for i := 0; i < plan.Len(); i++ {
		if ctx.Err() != nil {
			res.Outcome = db.OutcomeStopped
			return
		}
		pos, vel := plan.Sample(i)
		pj, err := json.Marshal(pos[:])
		if err != nil {
			fail(err)
			return
		}
		vj, err := json.Marshal(vel[:])
		if err != nil {
			fail(err)
			return
		}
		if err := r.kv.MSet(ctx, map[string]string{
			keys.PositionKey: string(pj),
			keys.VelocityKey: string(vj),
		}); err != nil {
			fail(err)
			return
		}
		res.SamplesSent++

		select {
		case <-ctx.Done():
			res.Outcome = db.OutcomeStopped
			return
		case <-ticker.C():
		}
	}
}
