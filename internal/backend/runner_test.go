package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajectory.editor/internal/db"
	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/timeutil"
	"github.com/banshee-data/trajectory.editor/internal/trajapi"
)

var testKeys = trajapi.RunKeys{
	PrimitiveKey:   "sai2::examples::primitive",
	PrimitiveValue: "primitive_trajectory_task",
	PositionKey:    "sai2::examples::desired_position",
	VelocityKey:    "sai2::examples::desired_velocity",
}

func init() {
	monitoring.SetLogger(nil)
}

type resultSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *resultSink) record(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func (s *resultSink) all() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

func threeSamplePlan() Plan {
	p := linearPlan(3)
	p.Vel[0] = []float64{0, 0.5, 0}
	return p
}

func waitTicker(t *testing.T, clock *timeutil.MockClock) *timeutil.MockTicker {
	t.Helper()
	select {
	case tk := <-clock.Created():
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("runner never created its ticker")
		return nil
	}
}

func TestRunner_StreamsEverySample(t *testing.T) {
	kv := NewMemoryStore()
	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	r := NewRunner(kv, clock)
	sink := &resultSink{}
	r.OnFinish(sink.record)

	require.NoError(t, r.Start("run-1", threeSamplePlan(), testKeys, 100*time.Millisecond))
	assert.True(t, r.Running())
	assert.ErrorIs(t, r.Start("run-2", threeSamplePlan(), testKeys, time.Second), ErrRunnerBusy)

	tk := waitTicker(t, clock)
	assert.Equal(t, 100*time.Millisecond, tk.Interval())
	for i := 0; i < 3; i++ {
		require.True(t, tk.Tick(clock.Now()))
	}
	require.Eventually(t, func() bool { return !r.Running() }, 2*time.Second, 5*time.Millisecond)

	ctx := context.Background()
	primitive, _ := kv.Get(ctx, testKeys.PrimitiveKey)
	assert.Equal(t, testKeys.PrimitiveValue, primitive)
	pos, _ := kv.Get(ctx, testKeys.PositionKey)
	assert.Equal(t, "[2,0,0]", pos)
	vel, _ := kv.Get(ctx, testKeys.VelocityKey)
	assert.Equal(t, "[0,0,0]", vel)

	results := sink.all()
	require.Len(t, results, 1)
	assert.Equal(t, "run-1", results[0].RunID)
	assert.Equal(t, db.OutcomeCompleted, results[0].Outcome)
	assert.Equal(t, 3, results[0].SamplesSent)
	assert.NoError(t, results[0].Err)
	assert.True(t, tk.Stopped())
}

func TestRunner_StopCancelsAndWaits(t *testing.T) {
	kv := NewMemoryStore()
	clock := timeutil.NewMockClock(time.Time{})
	r := NewRunner(kv, clock)
	sink := &resultSink{}
	r.OnFinish(sink.record)

	require.NoError(t, r.Start("run-1", threeSamplePlan(), testKeys, time.Second))
	waitTicker(t, clock)
	r.Stop()

	assert.False(t, r.Running())
	results := sink.all()
	require.Len(t, results, 1, "OnFinish runs before Stop returns")
	assert.Equal(t, db.OutcomeStopped, results[0].Outcome)
	assert.Equal(t, 1, results[0].SamplesSent)

	// stopping again is harmless and a new run may start
	r.Stop()
	require.NoError(t, r.Start("run-2", threeSamplePlan(), testKeys, time.Second))
	r.Stop()
	assert.Len(t, sink.all(), 2)
}

type failingKV struct {
	*MemoryStore
	err error
}

func (f failingKV) MSet(ctx context.Context, values map[string]string) error { return f.err }

func TestRunner_StoreFailure(t *testing.T) {
	boom := errors.New("redis unavailable")
	r := NewRunner(failingKV{MemoryStore: NewMemoryStore(), err: boom}, timeutil.NewMockClock(time.Time{}))
	sink := &resultSink{}
	r.OnFinish(sink.record)

	require.NoError(t, r.Start("run-1", threeSamplePlan(), testKeys, time.Second))
	require.Eventually(t, func() bool { return !r.Running() }, 2*time.Second, 5*time.Millisecond)

	results := sink.all()
	require.Len(t, results, 1)
	assert.Equal(t, db.OutcomeFailed, results[0].Outcome)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.Zero(t, results[0].SamplesSent)
}
