package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
	"github.com/hupe1980/researchmesh/logging"
)

// Compile-time check that Base implements core.Worker.
var _ core.Worker = (*Base)(nil)

// Base is the runtime instance of a worker type. It drives the lifecycle
// state machine around the definition's hooks: Initialize runs Init once and
// is fatal on failure, Execute waits for dependencies then runs PerformWork,
// Pause/Resume gate cooperative suspension, and Cleanup never propagates
// errors. All exported methods are goroutine-safe.
type Base struct {
	id        string
	sessionID string
	def       *Definition
	wctx      *Context
	logger    logging.Logger
	events    core.Broadcaster
	memory    core.MemoryStore

	mu       sync.RWMutex
	status   core.WorkerStatus
	progress int
	errMsg   string
}

// New instantiates a worker from its definition with a generated id. It
// validates the contract and the instance configuration; a contract violation
// is returned as a ContractError and the worker is never started.
func New(def *Definition, sessionID string, config map[string]any, services Services) (*Base, error) {
	return NewWithID(util.NewID(), def, sessionID, config, services)
}

// NewWithID instantiates a worker under a caller-chosen id. The engine uses
// it to bind a registration id to its one-and-only instance.
func NewWithID(id string, def *Definition, sessionID string, config map[string]any, services Services) (*Base, error) {
	if cerr := def.Validate(); cerr != nil {
		return nil, cerr
	}
	if err := def.ValidateConfig(config); err != nil {
		return nil, err
	}

	logger := services.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	b := &Base{
		id:        id,
		sessionID: sessionID,
		def:       def,
		logger:    logger,
		events:    services.Events,
		memory:    services.Memory,
		status:    core.WorkerStatusRegistered,
	}
	b.wctx = newContext(sessionID, b.id, def.Type, config, services, b.setProgress)

	return b, nil
}

// ID returns the worker instance id.
func (b *Base) ID() string { return b.id }

// Type returns the worker type name.
func (b *Base) Type() string { return b.def.Type }

// Session returns the owning session id.
func (b *Base) Session() string { return b.sessionID }

// Context returns the runtime context handed to this worker's hooks. Exposed
// so embedding code and tests can drive the same surface the hooks see.
func (b *Base) Context() *Context { return b.wctx }

// Dependencies returns the shared memory keys this worker waits for.
func (b *Base) Dependencies() []string {
	deps := make([]string, len(b.def.Dependencies))
	copy(deps, b.def.Dependencies)
	return deps
}

// Status returns the current lifecycle status.
func (b *Base) Status() core.WorkerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Progress returns the last reported progress percentage.
func (b *Base) Progress() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.progress
}

// Err returns the recorded failure message, empty while healthy.
func (b *Base) Err() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.errMsg
}

// Initialize runs the definition's Init hook. It is idempotent: a second call
// on an initialized worker is a no-op. A hook failure records error status
// and returns an InitializationError; Execute must not be called afterwards.
func (b *Base) Initialize(ctx context.Context) error {
	b.mu.Lock()
	switch b.status {
	case core.WorkerStatusInitialized:
		b.mu.Unlock()
		return nil
	case core.WorkerStatusRegistered, core.WorkerStatusStarting:
		b.status = core.WorkerStatusInitializing
	default:
		status := b.status
		b.mu.Unlock()
		return fmt.Errorf("worker %s cannot initialize from status %s", b.id, status)
	}
	b.mu.Unlock()

	if b.def.Init != nil {
		if err := b.def.Init(ctx, b.wctx); err != nil {
			ierr := &core.InitializationError{WorkerID: b.id, Err: err}
			b.fail(ierr)
			return ierr
		}
	}

	b.mu.Lock()
	b.status = core.WorkerStatusInitialized
	b.mu.Unlock()

	return nil
}

// Execute waits for the worker's dependencies, then runs PerformWork. On
// success progress is forced to 100 and the worker completes; on failure the
// error is recorded and returned. Execute requires a prior successful
// Initialize.
func (b *Base) Execute(ctx context.Context) error {
	b.mu.Lock()
	if b.status != core.WorkerStatusInitialized {
		status := b.status
		b.mu.Unlock()
		return fmt.Errorf("worker %s cannot execute from status %s", b.id, status)
	}
	b.status = core.WorkerStatusRunning
	b.mu.Unlock()

	if len(b.def.Dependencies) > 0 {
		b.logger.Debug("waiting for dependencies", "worker_id", b.id, "keys", b.def.Dependencies)
		if err := waitForDependencies(ctx, b.memory, b.sessionID, b.id, b.def.Dependencies, b.def.dependencyInterval(), b.def.dependencyTimeout()); err != nil {
			b.fail(err)
			return err
		}
	}

	if err := b.def.PerformWork(ctx, b.wctx); err != nil {
		b.fail(err)
		return err
	}

	b.mu.Lock()
	b.progress = 100
	b.status = core.WorkerStatusCompleted
	b.mu.Unlock()

	return nil
}

// Pause requests a cooperative pause. Only a running worker can pause; a hook
// failure leaves the worker running.
func (b *Base) Pause(ctx context.Context) error {
	b.mu.Lock()
	if b.status != core.WorkerStatusRunning {
		status := b.status
		b.mu.Unlock()
		return &core.NotRunningError{WorkerID: b.id, Status: status}
	}
	b.mu.Unlock()

	if b.def.OnPause != nil {
		if err := b.def.OnPause(ctx, b.wctx); err != nil {
			return fmt.Errorf("pause worker %s: %w", b.id, err)
		}
	}

	b.mu.Lock()
	b.status = core.WorkerStatusPaused
	b.mu.Unlock()

	return nil
}

// Resume returns a paused worker to running.
func (b *Base) Resume(ctx context.Context) error {
	b.mu.Lock()
	if b.status != core.WorkerStatusPaused {
		status := b.status
		b.mu.Unlock()
		return &core.NotRunningError{WorkerID: b.id, Status: status}
	}
	b.mu.Unlock()

	if b.def.OnResume != nil {
		if err := b.def.OnResume(ctx, b.wctx); err != nil {
			return fmt.Errorf("resume worker %s: %w", b.id, err)
		}
	}

	b.mu.Lock()
	b.status = core.WorkerStatusRunning
	b.mu.Unlock()

	return nil
}

// Cleanup runs the OnCleanup hook. Hook errors are logged and swallowed; a
// worker that was not already finished transitions to stopped.
func (b *Base) Cleanup(ctx context.Context) error {
	b.mu.Lock()
	wasFinished := b.status.Finished()
	if !wasFinished {
		b.status = core.WorkerStatusCleaningUp
	}
	b.mu.Unlock()

	if b.def.OnCleanup != nil {
		if err := b.def.OnCleanup(ctx, b.wctx); err != nil {
			b.logger.Warn("worker cleanup failed", "worker_id", b.id, "error", err)
		}
	}

	if !wasFinished {
		b.mu.Lock()
		b.status = core.WorkerStatusStopped
		b.mu.Unlock()
	}

	return nil
}

// HandleMessage dispatches one bus message to the OnMessage hook. Workers
// without a hook silently drop messages.
func (b *Base) HandleMessage(ctx context.Context, m *core.Message) error {
	if b.def.OnMessage == nil {
		return nil
	}
	return b.def.OnMessage(ctx, b.wctx, m)
}

// setProgress clamps and records a progress report, publishing a
// WorkerProgress event when a broadcaster is wired.
func (b *Base) setProgress(percent int, label string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	b.mu.Lock()
	b.progress = percent
	b.mu.Unlock()

	if b.events != nil {
		b.events.Publish(core.WorkerProgress{
			EventBase: core.NewEventBase(b.sessionID),
			WorkerID:  b.id,
			Percent:   percent,
			Label:     label,
		})
	}
}

// fail records a failure and flips the worker to error status.
func (b *Base) fail(err error) {
	b.mu.Lock()
	b.status = core.WorkerStatusError
	b.errMsg = err.Error()
	b.mu.Unlock()

	b.logger.Error("worker failed", "worker_id", b.id, "worker_type", b.def.Type, "error", err)
}
