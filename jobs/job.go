// Package jobs owns the in-memory job registry and the scheduling loop that
// promotes queued executions under a bounded concurrency limit.
package jobs

import (
	"errors"
	"time"

	"github.com/geoengine/geoengine/engine"
)

// State is a job lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var (
	// ErrNotFound is returned for unknown job identifiers.
	ErrNotFound = errors.New("job not found")

	// ErrConflict is returned when cancelling a job already in a terminal
	// state.
	ErrConflict = errors.New("job already in a terminal state")
)

// Job is a point-in-time snapshot of a tracked execution. Snapshots are
// values; only the Manager mutates the underlying record.
type Job struct {
	ID         string     `json:"id"`
	State      State      `json:"state"`
	Project    string     `json:"project,omitempty"`
	Tool       string     `json:"tool,omitempty"`
	OutputDir  string     `json:"output_dir,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Meta carries submission metadata recorded on the job.
type Meta struct {
	Project   string
	Tool      string
	OutputDir string
}

// job is the mutable record behind a Job snapshot. All fields are guarded
// by the Manager's mutex.
type job struct {
	id         string
	state      State
	plan       *engine.Plan
	meta       Meta
	createdAt  time.Time
	startedAt  *time.Time
	finishedAt *time.Time
	exitCode   *int
	errMsg     string

	exec            engine.Execution
	cancelRequested bool
}

func (j *job) snapshot() Job {
	return Job{
		ID:         j.id,
		State:      j.state,
		Project:    j.meta.Project,
		Tool:       j.meta.Tool,
		OutputDir:  j.meta.OutputDir,
		CreatedAt:  j.createdAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
		ExitCode:   j.exitCode,
		Error:      j.errMsg,
	}
}
