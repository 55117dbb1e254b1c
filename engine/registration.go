package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/worker"
)

// Registration is the engine-owned record of one worker under one session.
// The runtime instance is created at start time and owned by the registration
// for its full lifetime; it is never reused. The done channel is the explicit
// task handle for the execute goroutine so callers can await the outcome
// deterministically instead of relying on side-channel events.
type Registration struct {
	ID        string
	SessionID string
	Type      string
	Config    map[string]any
	Created   time.Time

	mu        sync.RWMutex
	instance  *worker.Base
	status    core.WorkerStatus
	errMsg    string
	started   *time.Time
	completed *time.Time

	done    chan struct{}
	execErr error
}

func newRegistration(id, sessionID, workerType string, config map[string]any) *Registration {
	return &Registration{
		ID:        id,
		SessionID: sessionID,
		Type:      workerType,
		Config:    config,
		Created:   time.Now().UTC(),
		status:    core.WorkerStatusRegistered,
		done:      make(chan struct{}),
	}
}

// Status returns the registration status. Once an instance exists its live
// status wins over the bookkeeping value.
func (r *Registration) Status() core.WorkerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.instance != nil {
		return r.instance.Status()
	}
	return r.status
}

// Err returns the recorded failure message, empty while healthy.
func (r *Registration) Err() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.errMsg != "" {
		return r.errMsg
	}
	if r.instance != nil {
		return r.instance.Err()
	}
	return ""
}

// Progress returns the instance's progress, zero before start.
func (r *Registration) Progress() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.instance == nil {
		return 0
	}
	return r.instance.Progress()
}

// Started reports whether an instance was ever launched.
func (r *Registration) Started() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started != nil
}

// Wait blocks until the execute goroutine finished or the context is done,
// returning the execution error. Waiting on a never-started registration
// blocks until the context expires.
func (r *Registration) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.execErr
	}
}

func (r *Registration) setInstance(w *worker.Base) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instance = w
}

func (r *Registration) worker() *worker.Base {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instance
}

func (r *Registration) setStatus(status core.WorkerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *Registration) setError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = core.WorkerStatusError
	r.errMsg = msg
}

func (r *Registration) markStarted() {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = &now
	r.status = core.WorkerStatusRunning
}

func (r *Registration) finish(err error) {
	now := time.Now().UTC()
	r.mu.Lock()
	r.completed = &now
	r.execErr = err
	if err != nil {
		r.status = core.WorkerStatusError
		r.errMsg = err.Error()
	} else {
		r.status = core.WorkerStatusCompleted
	}
	r.mu.Unlock()

	close(r.done)
}

// record builds the durable mirror of this registration.
func (r *Registration) record() *core.WorkerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := r.status
	errMsg := r.errMsg
	if r.instance != nil {
		status = r.instance.Status()
		if errMsg == "" {
			errMsg = r.instance.Err()
		}
	}

	rec := &core.WorkerRecord{
		ID:        r.ID,
		SessionID: r.SessionID,
		Type:      r.Type,
		Config:    r.Config,
		Status:    status,
		Error:     errMsg,
		Created:   r.Created,
	}
	if r.started != nil {
		started := *r.started
		rec.Started = &started
	}
	if r.completed != nil {
		completed := *r.completed
		rec.Completed = &completed
	}

	return rec
}
