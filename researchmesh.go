// Package researchmesh provides a high-level façade over the orchestration
// engine and its service abstractions (sessions, workers, shared memory,
// artifacts, messages & logging) for building multi-worker research systems.
// Most applications interact with this package by:
//  1. Creating a ResearchMesh via New() (optionally overriding default in-memory stores)
//  2. Registering one or more worker type definitions
//  3. Creating sessions and starting workers, observing progress through Subscribe
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply durable store
// implementations (e.g. the Redis session and memory backends) and a
// structured logger.
package researchmesh

import (
	"context"
	"time"

	"github.com/hupe1980/researchmesh/activity"
	"github.com/hupe1980/researchmesh/artifact"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/engine"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/memory"
	"github.com/hupe1980/researchmesh/message"
	"github.com/hupe1980/researchmesh/session"
	"github.com/hupe1980/researchmesh/worker"
)

// Options configures the ResearchMesh instance.
type Options struct {
	// DependencyInterval is the default poll interval for worker dependency
	// waiting, applied to definitions that do not set their own.
	DependencyInterval time.Duration

	// DependencyTimeout bounds how long a worker waits for its dependency
	// keys, applied to definitions that do not set their own.
	DependencyTimeout time.Duration

	// MaxGeneratorCalls caps text-generation calls per worker run. Zero means
	// unlimited.
	MaxGeneratorCalls int

	// Generator is the text-generation capability handed to workers, for
	// example a model/openai or model/anthropic adapter.
	Generator core.Generator

	// Searcher is the retrieval capability handed to workers.
	Searcher core.Searcher

	// Stores (default to in-memory implementations if not provided).
	SessionStore  core.SessionStore
	WorkerStore   core.WorkerStore
	ArtifactStore core.ArtifactStore
	MessageStore  core.MessageStore
	MemoryStore   core.MemoryStore
	ActivityStore core.ActivityStore

	// Events is the lifecycle broadcaster (defaults to a fresh FanOut).
	Events core.Broadcaster

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// ResearchMesh is the high-level façade aggregating the engine and services.
type ResearchMesh struct {
	opts   Options
	engine *engine.Engine
}

// New creates a ResearchMesh with optional overrides. Any unset store is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *ResearchMesh {
	opts := Options{
		SessionStore:  session.NewInMemoryStore(),
		WorkerStore:   worker.NewInMemoryStore(),
		ArtifactStore: artifact.NewInMemoryStore(),
		MessageStore:  message.NewInMemoryStore(),
		MemoryStore:   memory.NewInMemoryStore(),
		ActivityStore: activity.NewInMemoryStore(),
		Events:        core.NewFanOut(),
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(engine.Stores{
		Sessions:   opts.SessionStore,
		Workers:    opts.WorkerStore,
		Artifacts:  opts.ArtifactStore,
		Messages:   opts.MessageStore,
		Memory:     opts.MemoryStore,
		Activities: opts.ActivityStore,
	}, func(o *engine.Options) {
		o.Logger = opts.Logger
		o.Events = opts.Events
		o.DependencyInterval = opts.DependencyInterval
		o.DependencyTimeout = opts.DependencyTimeout
		o.MaxGeneratorCalls = opts.MaxGeneratorCalls
		o.Generator = opts.Generator
		o.Searcher = opts.Searcher
	})

	return &ResearchMesh{opts: opts, engine: e}
}

// Engine exposes the underlying engine for advanced use.
func (m *ResearchMesh) Engine() *engine.Engine { return m.engine }

// RegisterWorkerType makes a worker definition available for sessions.
func (m *ResearchMesh) RegisterWorkerType(def *worker.Definition) error {
	return m.engine.RegisterWorkerType(def)
}

// CreateSession allocates a new research session.
func (m *ResearchMesh) CreateSession(ctx context.Context, userID, topic string, preferences map[string]any) (*core.Session, error) {
	return m.engine.CreateSession(ctx, userID, topic, preferences)
}

// GetSession returns a session owned by the given user.
func (m *ResearchMesh) GetSession(ctx context.Context, sessionID, userID string) (*core.Session, error) {
	return m.engine.GetSession(ctx, sessionID, userID)
}

// StartWorkers registers and starts one worker per requested type.
func (m *ResearchMesh) StartWorkers(ctx context.Context, sessionID, userID string, workerTypes []string) error {
	return m.engine.StartWorkers(ctx, sessionID, userID, workerTypes)
}

// PauseSession pauses every running worker of the session.
func (m *ResearchMesh) PauseSession(ctx context.Context, sessionID, userID string) error {
	return m.engine.PauseSession(ctx, sessionID, userID)
}

// ResumeSession resumes every paused worker of the session.
func (m *ResearchMesh) ResumeSession(ctx context.Context, sessionID, userID string) error {
	return m.engine.ResumeSession(ctx, sessionID, userID)
}

// StopSession stops every tracked worker and marks the session stopped.
func (m *ResearchMesh) StopSession(ctx context.Context, sessionID, userID string) error {
	return m.engine.StopSession(ctx, sessionID, userID)
}

// RestartSession resets a terminal session and runs a fresh worker set.
func (m *ResearchMesh) RestartSession(ctx context.Context, sessionID, userID string, opts engine.RestartOptions) error {
	return m.engine.RestartSession(ctx, sessionID, userID, opts)
}

// DeleteSession removes a session and everything it owns.
func (m *ResearchMesh) DeleteSession(ctx context.Context, sessionID, userID string) error {
	return m.engine.DeleteSession(ctx, sessionID, userID)
}

// SubmitFeedback records user feedback tied to a session, worker or artifact.
func (m *ResearchMesh) SubmitFeedback(ctx context.Context, sessionID, userID, workerID, artifactID string, content map[string]any) error {
	return m.engine.SubmitFeedback(ctx, sessionID, userID, workerID, artifactID, content)
}

// ListArtifacts returns a session's artifacts with filtering and pagination.
func (m *ResearchMesh) ListArtifacts(ctx context.Context, sessionID, userID string, filter core.ArtifactFilter) ([]*core.Artifact, error) {
	return m.engine.ListArtifacts(ctx, sessionID, userID, filter)
}

// ListLogs returns a session's activity log with filtering and pagination.
func (m *ResearchMesh) ListLogs(ctx context.Context, sessionID, userID string, filter core.ActivityFilter) ([]*core.Activity, error) {
	return m.engine.ListLogs(ctx, sessionID, userID, filter)
}

// Subscribe registers a lifecycle event subscriber and returns the channel
// plus a cancel function.
func (m *ResearchMesh) Subscribe(buffer int) (<-chan core.Event, func()) {
	return m.engine.Events().Subscribe(buffer)
}

// RunSession is a synchronous helper: it creates a session, starts the given
// worker types and blocks until the session reaches a terminal status or the
// context is done, returning the final session record.
func (m *ResearchMesh) RunSession(ctx context.Context, userID, topic string, preferences map[string]any, workerTypes []string) (*core.Session, error) {
	events, cancel := m.engine.Events().Subscribe(64)
	defer cancel()

	s, err := m.engine.CreateSession(ctx, userID, topic, preferences)
	if err != nil {
		return nil, err
	}
	if err := m.engine.StartWorkers(ctx, s.ID, userID, workerTypes); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev := <-events:
			status, ok := ev.(core.SessionStatusUpdated)
			if !ok || status.SessionID() != s.ID {
				continue
			}
			return m.engine.GetSession(ctx, s.ID, userID)
		}
	}
}
