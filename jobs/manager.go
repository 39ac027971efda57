package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/geoengine/geoengine/engine"
)

// Options configures a Manager.
type Options struct {
	// MaxWorkers bounds the number of jobs in StateRunning.
	MaxWorkers int

	// Tick is the scheduler wake interval.
	Tick time.Duration

	// StopGrace is how long a cancelled container gets before SIGKILL.
	StopGrace time.Duration

	// Retention is how long terminal jobs stay in the registry before the
	// janitor removes them.
	Retention time.Duration

	// History records job lifecycle events; nil disables recording.
	History History
}

// Manager tracks jobs for the life of the process and promotes queued jobs
// to running in strict FIFO order. The registry and running count are the
// only shared mutable state; every mutation goes through mu. Container
// operations themselves run outside the lock.
type Manager struct {
	runtime   engine.Runtime
	history   History
	max       int
	tick      time.Duration
	stopGrace time.Duration
	retention time.Duration

	mu    sync.Mutex
	jobs  map[string]*job
	order []string // job IDs in submission order
}

// NewManager creates a Manager executing plans on the given runtime.
func NewManager(runtime engine.Runtime, opts Options) *Manager {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 2
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 10 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	return &Manager{
		runtime:   runtime,
		history:   opts.History,
		max:       opts.MaxWorkers,
		tick:      opts.Tick,
		stopGrace: opts.StopGrace,
		retention: opts.Retention,
		jobs:      make(map[string]*job),
	}
}

// Run drives the scheduling loop and the retention janitor until ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context) {
	c := cron.New()
	if _, err := c.AddFunc("@hourly", m.prune); err == nil {
		c.Start()
		defer c.Stop()
	}

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	slog.Info("job manager started", "max_workers", m.max, "tick", m.tick)
	for {
		select {
		case <-ctx.Done():
			slog.Info("job manager stopped")
			return
		case <-ticker.C:
			m.schedule(ctx)
		}
	}
}

// Submit registers a new queued job and returns its snapshot immediately.
// It never blocks on execution.
func (m *Manager) Submit(plan *engine.Plan, meta Meta) Job {
	j := &job{
		id:        "job-" + uuid.New().String()[:8],
		state:     StateQueued,
		plan:      plan,
		meta:      meta,
		createdAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[j.id] = j
	m.order = append(m.order, j.id)
	snap := j.snapshot()
	m.mu.Unlock()

	m.record(snap.ID, "submitted", "")
	slog.Info("job submitted", "id", snap.ID, "project", meta.Project, "tool", meta.Tool)
	return snap
}

// List returns snapshots of all tracked jobs ordered by creation time.
func (m *Manager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Job, 0, len(m.order))
	for _, id := range m.order {
		if j, ok := m.jobs[id]; ok {
			out = append(out, j.snapshot())
		}
	}
	return out
}

// Get returns the snapshot of one job.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j.snapshot(), nil
}

// Cancel cancels a job. A queued job is cancelled in place and never
// started. A running job gets a stop request: a confirmed stop yields
// StateCancelled, a stop failure yields StateFailed with the error
// recorded. Terminal jobs return ErrConflict.
func (m *Manager) Cancel(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return Job{}, ErrNotFound
	}
	if j.state.Terminal() {
		snap := j.snapshot()
		m.mu.Unlock()
		return snap, ErrConflict
	}

	if j.state == StateQueued {
		now := time.Now()
		j.state = StateCancelled
		j.startedAt = &now
		j.finishedAt = &now
		snap := j.snapshot()
		m.mu.Unlock()

		m.record(id, "cancelled", "")
		slog.Info("job cancelled", "id", id, "was", "queued")
		return snap, nil
	}

	// Running: remember the intent so a concurrent completion resolves to
	// cancelled, then stop the container outside the lock.
	j.cancelRequested = true
	ex := j.exec
	m.mu.Unlock()

	if ex != nil {
		if err := ex.Stop(ctx, m.stopGrace); err != nil {
			// No stop acknowledgement: the job is failed, not cancelled.
			m.mu.Lock()
			if !j.state.Terminal() {
				now := time.Now()
				j.state = StateFailed
				j.finishedAt = &now
				j.errMsg = fmt.Sprintf("stop container: %v", err)
			}
			snap := j.snapshot()
			m.mu.Unlock()

			m.record(id, "failed", snap.Error)
			return snap, nil
		}
	}

	m.mu.Lock()
	if !j.state.Terminal() {
		now := time.Now()
		j.state = StateCancelled
		j.finishedAt = &now
	}
	snap := j.snapshot()
	m.mu.Unlock()

	if snap.State == StateCancelled {
		m.record(id, "cancelled", "")
		slog.Info("job cancelled", "id", id, "was", "running")
	}
	return snap, nil
}

// Output lists files under the job's output directory. Before a terminal
// state it is always empty; afterwards it reflects the directory contents.
func (m *Manager) Output(id string) ([]engine.FileInfo, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	terminal := j.state.Terminal()
	dir := j.meta.OutputDir
	m.mu.Unlock()

	if !terminal || dir == "" {
		return []engine.FileInfo{}, nil
	}
	return engine.CollectOutputFiles(dir), nil
}

// Events returns recent job history events, newest first. Without a history
// store it returns an empty list.
func (m *Manager) Events(limit int) ([]Event, error) {
	if m.history == nil {
		return []Event{}, nil
	}
	return m.history.Recent(limit)
}

// schedule promotes queued jobs to running while capacity allows, oldest
// first. Promotion happens under the lock; the container start does not.
func (m *Manager) schedule(ctx context.Context) {
	m.mu.Lock()
	running := 0
	for _, j := range m.jobs {
		if j.state == StateRunning {
			running++
		}
	}

	var promoted []string
	for _, id := range m.order {
		if running >= m.max {
			break
		}
		j, ok := m.jobs[id]
		if !ok || j.state != StateQueued {
			continue
		}
		now := time.Now()
		j.state = StateRunning
		j.startedAt = &now
		promoted = append(promoted, id)
		running++
	}
	m.mu.Unlock()

	for _, id := range promoted {
		m.record(id, "started", "")
		slog.Info("job started", "id", id)
		go m.runJob(ctx, id)
	}
}

// runJob executes one promoted job. Failures, including panics, are
// recorded on this job alone; the scheduler keeps processing the queue.
func (m *Manager) runJob(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			m.finish(id, nil, fmt.Errorf("job execution panicked: %v", r))
		}
	}()

	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	plan := j.plan
	m.mu.Unlock()

	ex, err := m.runtime.Start(ctx, plan)
	if err != nil {
		m.finish(id, nil, fmt.Errorf("start container: %w", err))
		return
	}

	m.mu.Lock()
	cancelled := j.cancelRequested || j.state.Terminal()
	if !cancelled {
		j.exec = ex
	}
	m.mu.Unlock()

	if cancelled {
		// Cancelled while the container was starting; tear it down.
		_ = ex.Stop(ctx, m.stopGrace)
		m.finish(id, nil, nil)
		return
	}

	code, err := ex.Wait(ctx)
	m.finish(id, &code, err)
}

// finish applies a terminal transition. It is a no-op if the job already
// reached a terminal state (e.g. a cancel confirmed first).
func (m *Manager) finish(id string, exitCode *int, err error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok || j.state.Terminal() {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	j.finishedAt = &now
	j.exitCode = exitCode

	switch {
	case j.cancelRequested:
		j.state = StateCancelled
	case err != nil:
		j.state = StateFailed
		j.errMsg = err.Error()
	case exitCode != nil && *exitCode != 0:
		j.state = StateFailed
		j.errMsg = fmt.Sprintf("container exited with code %d", *exitCode)
	default:
		j.state = StateCompleted
	}
	state := j.state
	detail := j.errMsg
	m.mu.Unlock()

	m.record(id, string(state), detail)
	slog.Info("job finished", "id", id, "state", state, "error", detail)
}

// prune drops terminal jobs older than the retention window.
func (m *Manager) prune() {
	cutoff := time.Now().Add(-m.retention)

	m.mu.Lock()
	var kept []string
	removed := 0
	for _, id := range m.order {
		j, ok := m.jobs[id]
		if !ok {
			continue
		}
		if j.state.Terminal() && j.finishedAt != nil && j.finishedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	m.mu.Unlock()

	if removed > 0 {
		slog.Info("pruned finished jobs", "count", removed)
	}
}

// record appends a lifecycle event to the history store, if configured.
// History failures never affect the job itself.
func (m *Manager) record(jobID, eventType, detail string) {
	if m.history == nil {
		return
	}
	err := m.history.Append(Event{
		JobID:     jobID,
		Type:      eventType,
		Detail:    detail,
		Timestamp: time.Now(),
	})
	if err != nil {
		slog.Warn("record job event failed", "id", jobID, "type", eventType, "error", err)
	}
}
