package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
	OutcomeFailed    Outcome = "failed"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one execution of a trajectory.
type Run struct {
	ID             string     `json:"run_id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Duration       float64    `json:"duration_s"`
	Step           float64    `json:"step_s"`
	PointCount     int        `json:"point_count"`
	SampleCount    int        `json:"sample_count"`
	SamplesSent    int        `json:"samples_sent"`
	Outcome        Outcome    `json:"outcome"`
	Error          string     `json:"error,omitempty"`
	PrimitiveValue string     `json:"primitive_value"`
	PositionKey    string     `json:"position_key"`
	VelocityKey    string     `json:"velocity_key"`
}

// InsertRun records a new run. An empty ID is filled with a fresh UUID and
// an empty outcome defaults to running.
func (db *DB) InsertRun(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Outcome == "" {
		r.Outcome = OutcomeRunning
	}
	_, err := db.Exec(`
		INSERT INTO trajectory_runs (
			run_id, started_at, duration_s, step_s, point_count, sample_count,
			outcome, primitive_value, position_key, velocity_key
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixNano(), r.Duration, r.Step, r.PointCount, r.SampleCount,
		string(r.Outcome), r.PrimitiveValue, r.PositionKey, r.VelocityKey,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun records how run id ended.
func (db *DB) FinishRun(id string, outcome Outcome, endedAt time.Time, samplesSent int, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := db.Exec(`
		UPDATE trajectory_runs
		SET outcome = ?, ended_at = ?, samples_sent = ?, error = ?
		WHERE run_id = ?`,
		string(outcome), endedAt.UnixNano(), samplesSent, msg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

const runColumns = `run_id, started_at, ended_at, duration_s, step_s, point_count,
	sample_count, samples_sent, outcome, error, primitive_value, position_key, velocity_key`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (Run, error) {
	var (
		r       Run
		started int64
		ended   sql.NullInt64
		outcome string
		msg     sql.NullString
	)
	err := s.Scan(&r.ID, &started, &ended, &r.Duration, &r.Step, &r.PointCount,
		&r.SampleCount, &r.SamplesSent, &outcome, &msg, &r.PrimitiveValue, &r.PositionKey, &r.VelocityKey)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		r.EndedAt = &t
	}
	r.Outcome = Outcome(outcome)
	r.Error = msg.String
	return r, nil
}

// GetRun returns one run.
func (db *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM trajectory_runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM trajectory_runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MarkInterrupted closes out runs left open by a previous process.
func (db *DB) MarkInterrupted(at time.Time) (int64, error) {
	res, err := db.Exec(`
		UPDATE trajectory_runs
		SET outcome = ?, ended_at = ?, error = 'interrupted'
		WHERE outcome = ?`,
		string(OutcomeFailed), at.UnixNano(), string(OutcomeRunning),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
