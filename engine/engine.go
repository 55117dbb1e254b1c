package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/bus"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/worker"
)

// Stores bundles the durable backends the engine writes to. All five are
// required; use the in-memory implementations for single-process setups.
type Stores struct {
	Sessions   core.SessionStore
	Workers    core.WorkerStore
	Artifacts  core.ArtifactStore
	Messages   core.MessageStore
	Memory     core.MemoryStore
	Activities core.ActivityStore
}

// Options configures engine behavior.
type Options struct {
	// Logger receives engine diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
	// Events is the broadcaster lifecycle events are published to. Defaults
	// to a fresh FanOut.
	Events core.Broadcaster
	// DependencyInterval overrides the dependency poll interval for worker
	// definitions that do not set their own.
	DependencyInterval time.Duration
	// DependencyTimeout overrides the dependency wait bound for worker
	// definitions that do not set their own.
	DependencyTimeout time.Duration
	// MaxGeneratorCalls caps generator calls per worker run (0 = unlimited).
	MaxGeneratorCalls int
	// Generator is the text-generation capability handed to workers.
	Generator core.Generator
	// Searcher is the retrieval capability handed to workers.
	Searcher core.Searcher
}

// Engine is the session registry and scheduler. It owns two keyed
// collections, session id to tracking entry and worker id to registration,
// and every public operation goes through it; there is no ambient state.
type Engine struct {
	stores   Stores
	registry *worker.Registry
	bus      *bus.Bus
	events   core.Broadcaster
	logger   logging.Logger
	opts     Options

	mu            sync.RWMutex
	registrations map[string]*Registration
	tracks        map[string]map[string]*Registration // sessionID -> started workers
}

// New creates an engine over the given stores.
func New(stores Stores, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Events == nil {
		opts.Events = core.NewFanOut()
	}

	e := &Engine{
		stores:        stores,
		registry:      worker.NewRegistry(),
		events:        opts.Events,
		logger:        opts.Logger,
		opts:          opts,
		registrations: make(map[string]*Registration),
		tracks:        make(map[string]map[string]*Registration),
	}
	e.bus = bus.New(stores.Messages, e.trackedWorkerIDs, func(o *bus.Options) {
		o.Logger = opts.Logger
		o.Events = opts.Events
	})

	return e
}

// Events returns the lifecycle event broadcaster.
func (e *Engine) Events() core.Broadcaster { return e.events }

// Bus returns the session message bus.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// RegisterWorkerType makes a worker definition available for sessions. The
// definition is contract-checked; registering an incomplete definition fails
// with a ContractError naming the missing operation.
func (e *Engine) RegisterWorkerType(def *worker.Definition) error {
	return e.registry.Register(def)
}

// WorkerTypes returns the registered worker type names.
func (e *Engine) WorkerTypes() []string { return e.registry.Types() }

// CreateSession allocates a session record in status created and opens its
// in-memory tracking entry.
func (e *Engine) CreateSession(ctx context.Context, userID, topic string, preferences map[string]any) (*core.Session, error) {
	session := core.NewSession(util.NewID(), userID, topic, preferences)

	if err := e.stores.Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	e.mu.Lock()
	e.tracks[session.ID] = make(map[string]*Registration)
	e.mu.Unlock()

	e.events.Publish(core.SessionCreated{
		EventBase: core.NewEventBase(session.ID),
		UserID:    userID,
		Topic:     topic,
	})
	e.logActivity(ctx, session.ID, "", core.ActivityInfo, "session created", map[string]any{"topic": topic})

	return session, nil
}

// GetSession returns a session owned by the given user. Access by a
// non-owning user is indistinguishable from absence. An empty userID skips
// the ownership check (internal callers).
func (e *Engine) GetSession(ctx context.Context, sessionID, userID string) (*core.Session, error) {
	session, err := e.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && session.UserID != userID {
		return nil, &core.NotFoundError{Kind: "session", ID: sessionID}
	}
	return session, nil
}

// ListSessions returns the sessions owned by a user.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]*core.Session, error) {
	return e.stores.Sessions.List(ctx, userID)
}

// UpdateSession persists a mutated session record and announces the change.
func (e *Engine) UpdateSession(ctx context.Context, session *core.Session) error {
	session.Updated = time.Now().UTC()

	if err := e.stores.Sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	e.events.Publish(core.SessionUpdated{
		EventBase: core.NewEventBase(session.ID),
		Status:    session.Status,
	})

	return nil
}

// RegisterWorker stores a registration in status registered for a known
// worker type. Pure bookkeeping: the runtime instance is created at start.
func (e *Engine) RegisterWorker(ctx context.Context, sessionID, workerType string, config map[string]any) (*Registration, error) {
	def, err := e.registry.Get(workerType)
	if err != nil {
		return nil, err
	}
	if err := def.ValidateConfig(config); err != nil {
		return nil, err
	}
	if _, err := e.stores.Sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	reg := newRegistration(util.NewID(), sessionID, workerType, config)

	if err := e.stores.Workers.Save(ctx, reg.record()); err != nil {
		return nil, fmt.Errorf("save worker registration: %w", err)
	}

	e.mu.Lock()
	e.registrations[reg.ID] = reg
	e.mu.Unlock()

	e.logActivity(ctx, sessionID, reg.ID, core.ActivityInfo, "worker registered", map[string]any{"type": workerType})

	return reg, nil
}

// StartWorker instantiates the registration's worker, initializes it
// synchronously and schedules execution without blocking the caller. The
// call returns once the worker reaches running; the execution outcome is
// observable through lifecycle events or Registration.Wait.
func (e *Engine) StartWorker(ctx context.Context, workerID string) error {
	reg := e.registration(workerID)
	if reg == nil {
		return &core.NotFoundError{Kind: "worker", ID: workerID}
	}
	if reg.worker() != nil {
		return fmt.Errorf("worker %s already started", workerID)
	}

	def, err := e.registry.Get(reg.Type)
	if err != nil {
		return err
	}
	inst := e.instanceDefinition(def)

	reg.setStatus(core.WorkerStatusStarting)
	if err := e.stores.Workers.Save(ctx, reg.record()); err != nil {
		return fmt.Errorf("save worker registration: %w", err)
	}

	w, err := worker.NewWithID(reg.ID, inst, reg.SessionID, reg.Config, worker.Services{
		Memory:            e.stores.Memory,
		Artifacts:         e.stores.Artifacts,
		Sender:            e.bus,
		Generator:         e.opts.Generator,
		Searcher:          e.opts.Searcher,
		Events:            e.events,
		Logger:            e.logger,
		MaxGeneratorCalls: e.opts.MaxGeneratorCalls,
	})
	if err != nil {
		reg.setError(err.Error())
		e.persistRecord(ctx, reg)
		return err
	}
	reg.setInstance(w)

	if err := w.Initialize(ctx); err != nil {
		reg.setError(err.Error())
		e.persistRecord(ctx, reg)
		e.logActivity(ctx, reg.SessionID, reg.ID, core.ActivityError, "worker initialization failed", map[string]any{"error": err.Error()})
		return err
	}

	reg.markStarted()
	e.track(reg)
	e.subscribeWorker(inst, w)

	if err := e.stores.Workers.Save(ctx, reg.record()); err != nil {
		return fmt.Errorf("save worker registration: %w", err)
	}
	e.markSessionRunning(ctx, reg.SessionID)

	e.events.Publish(core.WorkerStarted{
		EventBase:  core.NewEventBase(reg.SessionID),
		WorkerID:   reg.ID,
		WorkerType: reg.Type,
	})
	e.logActivity(ctx, reg.SessionID, reg.ID, core.ActivityInfo, "worker started", nil)

	go e.runWorker(reg, w)

	return nil
}

// runWorker drives one worker's execute on its own goroutine and folds the
// outcome into registration state, durable mirror, events and session
// aggregation. Execution deliberately uses a background context: stopping a
// worker runs cleanup but cannot interrupt in-flight domain work.
func (e *Engine) runWorker(reg *Registration, w *worker.Base) {
	ctx := context.Background()

	err := w.Execute(ctx)
	reg.finish(err)
	e.persistRecord(ctx, reg)

	if err != nil {
		e.events.Publish(core.WorkerFailed{
			EventBase: core.NewEventBase(reg.SessionID),
			WorkerID:  reg.ID,
			Reason:    err.Error(),
		})
		e.logActivity(ctx, reg.SessionID, reg.ID, core.ActivityError, "worker failed", map[string]any{"error": err.Error()})
	} else {
		e.events.Publish(core.WorkerCompleted{
			EventBase: core.NewEventBase(reg.SessionID),
			WorkerID:  reg.ID,
		})
		e.logActivity(ctx, reg.SessionID, reg.ID, core.ActivityInfo, "worker completed", nil)
	}

	e.aggregateSession(ctx, reg.SessionID)
}

// StopWorker runs cleanup on a currently instantiated, still-unfinished
// worker and records the stop. Cleanup failures never propagate. Execution
// already in flight is not interrupted.
func (e *Engine) StopWorker(ctx context.Context, workerID string) error {
	reg := e.registration(workerID)
	if reg == nil {
		return &core.NotFoundError{Kind: "worker", ID: workerID}
	}

	w := reg.worker()
	if w == nil {
		return &core.NotRunningError{WorkerID: workerID, Status: reg.Status()}
	}
	if status := reg.Status(); status.Finished() {
		return &core.NotRunningError{WorkerID: workerID, Status: status}
	}

	_ = w.Cleanup(ctx)
	e.bus.Unsubscribe(workerID)
	e.persistRecord(ctx, reg)

	e.events.Publish(core.WorkerStopped{
		EventBase: core.NewEventBase(reg.SessionID),
		WorkerID:  workerID,
	})
	e.logActivity(ctx, reg.SessionID, workerID, core.ActivityInfo, "worker stopped", nil)

	return nil
}

// PauseWorker requests a cooperative pause on a running worker.
func (e *Engine) PauseWorker(ctx context.Context, workerID string) error {
	reg := e.registration(workerID)
	if reg == nil {
		return &core.NotFoundError{Kind: "worker", ID: workerID}
	}

	w := reg.worker()
	if w == nil {
		return &core.NotRunningError{WorkerID: workerID, Status: reg.Status()}
	}

	if err := w.Pause(ctx); err != nil {
		return err
	}
	e.persistRecord(ctx, reg)

	e.events.Publish(core.WorkerPaused{
		EventBase: core.NewEventBase(reg.SessionID),
		WorkerID:  workerID,
	})

	return nil
}

// ResumeWorker returns a paused worker to running.
func (e *Engine) ResumeWorker(ctx context.Context, workerID string) error {
	reg := e.registration(workerID)
	if reg == nil {
		return &core.NotFoundError{Kind: "worker", ID: workerID}
	}

	w := reg.worker()
	if w == nil {
		return &core.NotRunningError{WorkerID: workerID, Status: reg.Status()}
	}

	if err := w.Resume(ctx); err != nil {
		return err
	}
	e.persistRecord(ctx, reg)

	e.events.Publish(core.WorkerResumed{
		EventBase: core.NewEventBase(reg.SessionID),
		WorkerID:  workerID,
	})

	return nil
}

// StartWorkers registers and starts one worker per requested type, deriving
// each worker's configuration from the session preferences. It aborts on the
// first failure and propagates it; earlier registrations are not rolled back.
func (e *Engine) StartWorkers(ctx context.Context, sessionID, userID string, workerTypes []string) error {
	session, err := e.GetSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	for _, workerType := range workerTypes {
		config := deriveConfig(session.Preferences, workerType)

		reg, err := e.RegisterWorker(ctx, sessionID, workerType, config)
		if err != nil {
			return fmt.Errorf("register worker type %q: %w", workerType, err)
		}
		if err := e.StartWorker(ctx, reg.ID); err != nil {
			return fmt.Errorf("start worker type %q: %w", workerType, err)
		}
	}

	return nil
}

// Workers returns the durable registration mirrors for a session.
func (e *Engine) Workers(ctx context.Context, sessionID string) ([]*core.WorkerRecord, error) {
	return e.stores.Workers.List(ctx, sessionID)
}

// Registration returns the live registration for a worker id, nil if unknown.
func (e *Engine) Registration(workerID string) *Registration {
	return e.registration(workerID)
}

// deriveConfig builds a worker's configuration from session preferences: the
// shared preference space, overridden by a nested map keyed by the worker
// type when present.
func deriveConfig(preferences map[string]any, workerType string) map[string]any {
	config := make(map[string]any, len(preferences))
	for k, v := range preferences {
		if _, isMap := v.(map[string]any); isMap {
			continue // nested per-type blocks are not shared config
		}
		config[k] = v
	}

	if overrides, ok := preferences[workerType].(map[string]any); ok {
		for k, v := range overrides {
			config[k] = v
		}
	}

	return config
}

// instanceDefinition applies engine-level dependency defaults to a definition
// that does not set its own. The registry copy is never mutated.
func (e *Engine) instanceDefinition(def *worker.Definition) *worker.Definition {
	inst := *def
	if inst.DependencyInterval == 0 && e.opts.DependencyInterval > 0 {
		inst.DependencyInterval = e.opts.DependencyInterval
	}
	if inst.DependencyTimeout == 0 && e.opts.DependencyTimeout > 0 {
		inst.DependencyTimeout = e.opts.DependencyTimeout
	}
	return &inst
}

// subscribeWorker wires the worker's declared message types to its OnMessage
// hook.
func (e *Engine) subscribeWorker(def *worker.Definition, w *worker.Base) {
	if def.OnMessage == nil {
		return
	}
	for _, msgType := range def.MessageTypes {
		e.bus.Subscribe(msgType, w.ID(), func(ctx context.Context, m *core.Message) error {
			return w.HandleMessage(ctx, m)
		})
	}
}

func (e *Engine) registration(workerID string) *Registration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registrations[workerID]
}

// track records a started worker under its session's tracking entry. Only
// started workers count toward completion aggregation and broadcast fan-out.
func (e *Engine) track(reg *Registration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tracked, ok := e.tracks[reg.SessionID]
	if !ok {
		tracked = make(map[string]*Registration)
		e.tracks[reg.SessionID] = tracked
	}
	tracked[reg.ID] = reg
}

// trackedWorkerIDs resolves broadcast recipients for the bus.
func (e *Engine) trackedWorkerIDs(sessionID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tracked := e.tracks[sessionID]
	ids := make([]string, 0, len(tracked))
	for id := range tracked {
		ids = append(ids, id)
	}
	return ids
}

// trackedRegistrations snapshots the started workers of a session.
func (e *Engine) trackedRegistrations(sessionID string) []*Registration {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tracked := e.tracks[sessionID]
	regs := make([]*Registration, 0, len(tracked))
	for _, reg := range tracked {
		regs = append(regs, reg)
	}
	return regs
}

// markSessionRunning flips a created session to running on first worker start.
func (e *Engine) markSessionRunning(ctx context.Context, sessionID string) {
	session, err := e.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		e.logger.Warn("failed to load session for status update", "session_id", sessionID, "error", err)
		return
	}
	if session.Status != core.SessionStatusCreated && session.Status != core.SessionStatusPaused {
		return
	}

	session.Status = core.SessionStatusRunning
	if err := e.UpdateSession(ctx, session); err != nil {
		e.logger.Warn("failed to mark session running", "session_id", sessionID, "error", err)
	}
}

// persistRecord saves the registration mirror, logging instead of failing:
// mirror writes on background paths are best-effort. A registration that was
// dropped by session teardown (delete, restart) is not written back, so a
// worker finishing after the cascade cannot resurrect its record.
func (e *Engine) persistRecord(ctx context.Context, reg *Registration) {
	if e.registration(reg.ID) != reg {
		return
	}
	if err := e.stores.Workers.Save(ctx, reg.record()); err != nil {
		e.logger.Warn("failed to persist worker record", "worker_id", reg.ID, "error", err)
	}
}

// logActivity appends a durable activity row. Logging failures are downgraded
// to a warning, never raised.
func (e *Engine) logActivity(ctx context.Context, sessionID, workerID string, level core.ActivityLevel, msg string, details map[string]any) {
	activity := &core.Activity{
		ID:        util.NewID(),
		SessionID: sessionID,
		WorkerID:  workerID,
		Level:     level,
		Message:   msg,
		Details:   details,
		Created:   time.Now().UTC(),
	}
	if err := e.stores.Activities.Append(ctx, activity); err != nil {
		e.logger.Warn("failed to append activity", "session_id", sessionID, "error", err)
	}
}
