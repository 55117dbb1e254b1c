package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/activity"
	"github.com/hupe1980/researchmesh/artifact"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/memory"
	"github.com/hupe1980/researchmesh/message"
	"github.com/hupe1980/researchmesh/session"
	"github.com/hupe1980/researchmesh/worker"
)

func testEngine(optFns ...func(o *Options)) *Engine {
	return New(Stores{
		Sessions:   session.NewInMemoryStore(),
		Workers:    worker.NewInMemoryStore(),
		Artifacts:  artifact.NewInMemoryStore(),
		Messages:   message.NewInMemoryStore(),
		Memory:     memory.NewInMemoryStore(),
		Activities: activity.NewInMemoryStore(),
	}, optFns...)
}

// gateWorker builds a definition whose PerformWork blocks until release is
// closed, then returns result.
func gateWorker(typ string, release <-chan struct{}, result error) *worker.Definition {
	return &worker.Definition{
		Type: typ,
		PerformWork: func(ctx context.Context, _ *worker.Context) error {
			if release != nil {
				select {
				case <-release:
				case <-time.After(5 * time.Second):
					return errors.New("test gate never released")
				}
			}
			return result
		},
	}
}

func waitSessionStatus(t *testing.T, e *Engine, sessionID string, want core.SessionStatus) *core.Session {
	t.Helper()

	var got *core.Session
	require.Eventually(t, func() bool {
		s, err := e.GetSession(context.Background(), sessionID, "")
		if err != nil {
			return false
		}
		got = s
		return s.Status == want
	}, 3*time.Second, 10*time.Millisecond, "session never reached status %s", want)

	return got
}

func TestEngine_SessionCompletesWhenAllWorkersComplete(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(gateWorker("planner", nil, nil)))
	require.NoError(t, e.RegisterWorkerType(gateWorker("writer", nil, nil)))

	s, err := e.CreateSession(ctx, "u1", "climate policy", nil)
	require.NoError(t, err)
	require.Equal(t, core.SessionStatusCreated, s.Status)

	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"planner", "writer"}))

	got := waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)
	require.NotNil(t, got.Completed)
	require.Empty(t, got.Error)
}

func TestEngine_ErrorDominatesRegardlessOfOrder(t *testing.T) {
	// The failing worker finishes first in one run and last in the other;
	// the session must aggregate to error in both.
	for _, failFirst := range []bool{true, false} {
		e := testEngine()
		ctx := context.Background()

		failGate := make(chan struct{})
		okGate := make(chan struct{})
		require.NoError(t, e.RegisterWorkerType(gateWorker("failing", failGate, errors.New("boom"))))
		require.NoError(t, e.RegisterWorkerType(gateWorker("healthy", okGate, nil)))

		s, err := e.CreateSession(ctx, "u1", "topic", nil)
		require.NoError(t, err)
		require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"failing", "healthy"}))

		if failFirst {
			close(failGate)
			time.Sleep(20 * time.Millisecond)
			close(okGate)
		} else {
			close(okGate)
			time.Sleep(20 * time.Millisecond)
			close(failGate)
		}

		got := waitSessionStatus(t, e, s.ID, core.SessionStatusError)
		require.Contains(t, got.Error, "boom")
	}
}

func TestEngine_SessionStaysNonTerminalUntilLastWorker(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	slowGate := make(chan struct{})
	require.NoError(t, e.RegisterWorkerType(gateWorker("fast", nil, nil)))
	require.NoError(t, e.RegisterWorkerType(gateWorker("slow", slowGate, nil)))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"fast", "slow"}))

	// The fast worker is done almost immediately; with the slow worker still
	// gated the session must not be terminal.
	time.Sleep(50 * time.Millisecond)
	got, err := e.GetSession(ctx, s.ID, "u1")
	require.NoError(t, err)
	require.False(t, got.Status.Terminal(), "session went terminal with a worker still running")

	close(slowGate)
	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)
}

func TestEngine_RegisteredButNeverStartedDoesNotBlockAggregation(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(gateWorker("planner", nil, nil)))
	require.NoError(t, e.RegisterWorkerType(gateWorker("archivist", nil, nil)))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)

	// Registered, never started: must not count toward the barrier.
	_, err = e.RegisterWorker(ctx, s.ID, "archivist", nil)
	require.NoError(t, err)

	reg, err := e.RegisterWorker(ctx, s.ID, "planner", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorker(ctx, reg.ID))

	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)
}

func TestEngine_DependencyTimeoutScenario(t *testing.T) {
	// The echo worker depends on "seed" which nobody writes; it must end in
	// error with a dependency-timeout message and the session aggregates to
	// error.
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(&worker.Definition{
		Type:               "echo",
		Dependencies:       []string{"seed"},
		DependencyInterval: 10 * time.Millisecond,
		DependencyTimeout:  100 * time.Millisecond,
		PerformWork: func(context.Context, *worker.Context) error {
			return nil
		},
	}))

	s, err := e.CreateSession(ctx, "u1", "T", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"echo"}))

	got := waitSessionStatus(t, e, s.ID, core.SessionStatusError)
	require.Contains(t, got.Error, "seed")

	records, err := e.Workers(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, core.WorkerStatusError, records[0].Status)
	require.Contains(t, records[0].Error, "timed out")
}

func TestEngine_DependencyResolvedBeforeTimeout(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(&worker.Definition{
		Type: "seeder",
		PerformWork: func(ctx context.Context, wc *worker.Context) error {
			time.Sleep(30 * time.Millisecond)
			return wc.StoreShared(ctx, "seed", "value")
		},
	}))
	require.NoError(t, e.RegisterWorkerType(&worker.Definition{
		Type:               "echo",
		Dependencies:       []string{"seed"},
		DependencyInterval: 10 * time.Millisecond,
		DependencyTimeout:  time.Second,
		PerformWork: func(ctx context.Context, wc *worker.Context) error {
			sv, ok, err := wc.RetrieveShared(ctx, "seed")
			if err != nil || !ok {
				return errors.New("seed missing after dependency wait")
			}
			if sv.Value != "value" {
				return errors.New("unexpected seed value")
			}
			return nil
		},
	}))

	s, err := e.CreateSession(ctx, "u1", "T", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"seeder", "echo"}))

	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)
}

func TestEngine_InitializationFailurePropagates(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(&worker.Definition{
		Type:        "broken",
		Init:        func(context.Context, *worker.Context) error { return errors.New("no credentials") },
		PerformWork: func(context.Context, *worker.Context) error { return nil },
	}))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)

	reg, err := e.RegisterWorker(ctx, s.ID, "broken", nil)
	require.NoError(t, err)

	err = e.StartWorker(ctx, reg.ID)
	var ierr *core.InitializationError
	require.ErrorAs(t, err, &ierr)

	record, err := e.stores.Workers.Get(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, core.WorkerStatusError, record.Status)

	// An init-failed worker never counted as started, so the session stays
	// non-terminal.
	got, err := e.GetSession(ctx, s.ID, "u1")
	require.NoError(t, err)
	require.False(t, got.Status.Terminal())
}

func TestEngine_StartWorkersAbortsOnFirstFailureWithoutRollback(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(gateWorker("planner", nil, nil)))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)

	err = e.StartWorkers(ctx, s.ID, "u1", []string{"planner", "unknown-type"})
	require.Error(t, err)
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)

	// The earlier registration survives: partial registrations are an
	// accepted inconsistency surfaced as the returned error.
	records, err := e.Workers(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "planner", records[0].Type)
}

func TestEngine_RestartOnlyFromTerminal(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	gate := make(chan struct{})
	require.NoError(t, e.RegisterWorkerType(gateWorker("planner", gate, nil)))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)

	// From created.
	err = e.RestartSession(ctx, s.ID, "u1", RestartOptions{WorkerTypes: []string{"planner"}})
	var invalid *core.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, core.ClassInvalidState, core.Classify(err))

	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"planner"}))

	// From running.
	err = e.RestartSession(ctx, s.ID, "u1", RestartOptions{WorkerTypes: []string{"planner"}})
	require.ErrorAs(t, err, &invalid)

	got, err := e.GetSession(ctx, s.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, core.SessionStatusRunning, got.Status, "rejected restart must leave the session unmodified")

	close(gate)
	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)

	// From completed the restart is accepted and runs a fresh worker set.
	require.NoError(t, e.RestartSession(ctx, s.ID, "u1", RestartOptions{
		ClearArtifacts: true,
		ClearMemory:    true,
		WorkerTypes:    []string{"planner"},
	}))
	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)
}

func TestEngine_RestartPreservesNamedPhase(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(&worker.Definition{
		Type: "planner",
		PerformWork: func(ctx context.Context, wc *worker.Context) error {
			if _, err := wc.CreateArtifact(ctx, "outline", map[string]any{"text": "keep"}, nil); err != nil {
				return err
			}
			if _, err := wc.CreateArtifact(ctx, "scratch", map[string]any{"text": "drop"}, nil); err != nil {
				return err
			}
			if err := wc.StoreShared(ctx, "outline:plan", "keep"); err != nil {
				return err
			}
			return wc.StoreShared(ctx, "notes", "drop")
		},
	}))
	require.NoError(t, e.RegisterWorkerType(gateWorker("noop", nil, nil)))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"planner"}))
	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)

	require.NoError(t, e.RestartSession(ctx, s.ID, "u1", RestartOptions{
		ClearArtifacts: true,
		ClearMemory:    true,
		PreservePhase:  "outline",
		WorkerTypes:    []string{"noop"},
	}))
	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)

	artifacts, err := e.ListArtifacts(ctx, s.ID, "u1", core.ArtifactFilter{})
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.Equal(t, "outline", artifacts[0].Type)

	_, ok, err := e.stores.Memory.Get(ctx, s.ID, "outline:plan")
	require.NoError(t, err)
	require.True(t, ok, "preserved phase memory must survive the restart")
	_, ok, err = e.stores.Memory.Get(ctx, s.ID, "notes")
	require.NoError(t, err)
	require.False(t, ok, "unpreserved memory must be cleared")
}

func TestEngine_GetSessionOwnership(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)

	_, err = e.GetSession(ctx, s.ID, "u1")
	require.NoError(t, err)

	_, err = e.GetSession(ctx, s.ID, "intruder")
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, core.ClassNotFound, core.Classify(err))
}

func TestEngine_DeleteSessionCascades(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(&worker.Definition{
		Type: "producer",
		PerformWork: func(ctx context.Context, wc *worker.Context) error {
			if _, err := wc.CreateArtifact(ctx, "summary", map[string]any{"text": "x"}, nil); err != nil {
				return err
			}
			if _, err := wc.Broadcast(ctx, "announce", nil); err != nil {
				return err
			}
			return wc.StoreShared(ctx, "k", "v")
		},
	}))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"producer"}))
	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)

	require.NoError(t, e.DeleteSession(ctx, s.ID, "u1"))

	_, err = e.GetSession(ctx, s.ID, "u1")
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)

	artifacts, err := e.stores.Artifacts.List(ctx, s.ID, core.ArtifactFilter{})
	require.NoError(t, err)
	require.Empty(t, artifacts)

	messages, err := e.stores.Messages.List(ctx, s.ID)
	require.NoError(t, err)
	require.Empty(t, messages)

	records, err := e.stores.Workers.List(ctx, s.ID)
	require.NoError(t, err)
	require.Empty(t, records)

	snapshot, err := e.stores.Memory.Snapshot(ctx, s.ID)
	require.NoError(t, err)
	require.Empty(t, snapshot)
}

func TestEngine_PauseAndResumeSession(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	gate := make(chan struct{})
	require.NoError(t, e.RegisterWorkerType(gateWorker("planner", gate, nil)))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"planner"}))

	require.NoError(t, e.PauseSession(ctx, s.ID, "u1"))
	got, err := e.GetSession(ctx, s.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, core.SessionStatusPaused, got.Status)

	require.NoError(t, e.ResumeSession(ctx, s.ID, "u1"))
	got, err = e.GetSession(ctx, s.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, core.SessionStatusRunning, got.Status)

	close(gate)
	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)
}

func TestEngine_StopSession(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	gate := make(chan struct{})
	defer close(gate)
	require.NoError(t, e.RegisterWorkerType(gateWorker("planner", gate, nil)))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"planner"}))

	require.NoError(t, e.StopSession(ctx, s.ID, "u1"))
	got, err := e.GetSession(ctx, s.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, core.SessionStatusStopped, got.Status)
}

func TestEngine_StopWorkerRequiresInstance(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(gateWorker("planner", nil, nil)))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)

	reg, err := e.RegisterWorker(ctx, s.ID, "planner", nil)
	require.NoError(t, err)

	err = e.StopWorker(ctx, reg.ID)
	var notRunning *core.NotRunningError
	require.ErrorAs(t, err, &notRunning)

	err = e.StopWorker(ctx, "unknown")
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestEngine_StopWorkerRejectsFinished(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(gateWorker("planner", nil, nil)))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)

	reg, err := e.RegisterWorker(ctx, s.ID, "planner", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorker(ctx, reg.ID))
	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)

	err = e.StopWorker(ctx, reg.ID)
	var notRunning *core.NotRunningError
	require.ErrorAs(t, err, &notRunning)
	require.Equal(t, core.WorkerStatusCompleted, notRunning.Status)

	// A rejected stop emits no stop event and leaves the record terminal.
	record, err := e.stores.Workers.Get(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, core.WorkerStatusCompleted, record.Status)
}

func TestEngine_DeleteSessionWhileWorkerInFlight(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	gate := make(chan struct{})
	require.NoError(t, e.RegisterWorkerType(gateWorker("digger", gate, nil)))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"digger"}))

	records, err := e.stores.Workers.List(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	reg := e.Registration(records[0].ID)
	require.NotNil(t, reg)

	// Cascade while PerformWork is still gated.
	require.NoError(t, e.DeleteSession(ctx, s.ID, "u1"))

	close(gate)
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = reg.Wait(waitCtx)

	// The late finish must not write the worker record back after the cascade.
	records, err = e.stores.Workers.List(ctx, s.ID)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestEngine_MessageRoutingBetweenWorkers(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	received := make(chan *core.Message, 1)
	consumerGate := make(chan struct{})

	require.NoError(t, e.RegisterWorkerType(&worker.Definition{
		Type:         "consumer",
		MessageTypes: []string{"handoff"},
		PerformWork: func(ctx context.Context, _ *worker.Context) error {
			<-consumerGate
			return nil
		},
		OnMessage: func(_ context.Context, _ *worker.Context, m *core.Message) error {
			received <- m
			return nil
		},
	}))
	require.NoError(t, e.RegisterWorkerType(&worker.Definition{
		Type: "producer",
		PerformWork: func(ctx context.Context, wc *worker.Context) error {
			_, err := wc.Broadcast(ctx, "handoff", map[string]any{"payload": "data"})
			return err
		},
	}))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorkers(ctx, s.ID, "u1", []string{"consumer", "producer"}))

	select {
	case m := <-received:
		require.Equal(t, "handoff", m.Type)
		require.Equal(t, "data", m.Data["payload"])
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never received the broadcast")
	}
	close(consumerGate)

	waitSessionStatus(t, e, s.ID, core.SessionStatusCompleted)
}

func TestEngine_RegistrationWait(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkerType(gateWorker("failing", nil, errors.New("boom"))))

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)

	reg, err := e.RegisterWorker(ctx, s.ID, "failing", nil)
	require.NoError(t, err)
	require.NoError(t, e.StartWorker(ctx, reg.ID))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err = reg.Wait(waitCtx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestEngine_SubmitFeedback(t *testing.T) {
	e := testEngine()
	ctx := context.Background()

	ch, unsubscribe := e.Events().Subscribe(4)
	defer unsubscribe()

	s, err := e.CreateSession(ctx, "u1", "topic", nil)
	require.NoError(t, err)

	require.NoError(t, e.SubmitFeedback(ctx, s.ID, "u1", "", "a1", map[string]any{"rating": 5}))

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-ch:
			if feedback, ok := ev.(core.FeedbackReceived); ok {
				require.Equal(t, "a1", feedback.ArtifactID)
				require.Equal(t, 5, feedback.Content["rating"])
				return
			}
		case <-deadline:
			t.Fatal("feedback event never published")
		}
	}
}

func TestDeriveConfig(t *testing.T) {
	preferences := map[string]any{
		"max_sources": 5,
		"format":      "markdown",
		"writer": map[string]any{
			"format": "html",
			"tone":   "formal",
		},
	}

	config := deriveConfig(preferences, "writer")
	require.Equal(t, 5, config["max_sources"])
	require.Equal(t, "html", config["format"], "per-type override must win")
	require.Equal(t, "formal", config["tone"])
	require.NotContains(t, config, "writer")

	other := deriveConfig(preferences, "planner")
	require.Equal(t, "markdown", other["format"])
	require.NotContains(t, other, "tone")
}
