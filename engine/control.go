package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/researchmesh/core"
)

// aggregateSession reduces the terminal states of a session's started workers
// into one session status. It is a count-based barrier with error dominance:
// once every tracked worker is finished, any worker error makes the session
// error, otherwise it completes. Dependency semantics play no role here; they
// live inside each worker's own dependency wait.
func (e *Engine) aggregateSession(ctx context.Context, sessionID string) {
	regs := e.trackedRegistrations(sessionID)
	if len(regs) == 0 {
		return
	}

	var completed int
	var firstError string
	for _, reg := range regs {
		status := reg.Status()
		if !status.Finished() {
			return
		}
		if status == core.WorkerStatusCompleted {
			completed++
		} else if firstError == "" {
			firstError = fmt.Sprintf("worker %s (%s): %s", reg.ID, reg.Type, reg.Err())
		}
	}

	session, err := e.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		e.logger.Warn("failed to load session for aggregation", "session_id", sessionID, "error", err)
		return
	}
	if session.Status.Terminal() {
		return
	}

	status := core.SessionStatusCompleted
	if firstError != "" {
		status = core.SessionStatusError
	}

	now := time.Now().UTC()
	session.Status = status
	session.Error = firstError
	session.Completed = &now
	if err := e.UpdateSession(ctx, session); err != nil {
		e.logger.Warn("failed to persist aggregated session status", "session_id", sessionID, "error", err)
		return
	}

	e.events.Publish(core.SessionStatusUpdated{
		EventBase:        core.NewEventBase(sessionID),
		Status:           status,
		CompletedWorkers: completed,
		TotalWorkers:     len(regs),
		Error:            firstError,
	})
	e.logActivity(ctx, sessionID, "", core.ActivityInfo, "session finished",
		map[string]any{"status": string(status), "completed": completed, "total": len(regs)})
}

// PauseSession pauses every running worker tracked under the session, then
// marks the session paused.
func (e *Engine) PauseSession(ctx context.Context, sessionID, userID string) error {
	session, err := e.GetSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, reg := range e.trackedRegistrations(sessionID) {
		if reg.Status() != core.WorkerStatusRunning {
			continue
		}
		workerID := reg.ID
		g.Go(func() error {
			return e.PauseWorker(gctx, workerID)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pause session %s: %w", sessionID, err)
	}

	session.Status = core.SessionStatusPaused
	return e.UpdateSession(ctx, session)
}

// ResumeSession resumes every paused worker and marks the session running.
func (e *Engine) ResumeSession(ctx context.Context, sessionID, userID string) error {
	session, err := e.GetSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, reg := range e.trackedRegistrations(sessionID) {
		if reg.Status() != core.WorkerStatusPaused {
			continue
		}
		workerID := reg.ID
		g.Go(func() error {
			return e.ResumeWorker(gctx, workerID)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}

	session.Status = core.SessionStatusRunning
	return e.UpdateSession(ctx, session)
}

// StopSession stops every tracked worker and marks the session stopped.
func (e *Engine) StopSession(ctx context.Context, sessionID, userID string) error {
	session, err := e.GetSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, reg := range e.trackedRegistrations(sessionID) {
		if reg.Status().Finished() {
			continue
		}
		workerID := reg.ID
		g.Go(func() error {
			err := e.StopWorker(gctx, workerID)
			var notRunning *core.NotRunningError
			if errors.As(err, &notRunning) {
				return nil // finished between the snapshot and the stop
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("stop session %s: %w", sessionID, err)
	}

	session.Status = core.SessionStatusStopped
	return e.UpdateSession(ctx, session)
}

// DeleteSession force-stops every registered worker, cascades removal of the
// session's artifacts, messages, logs, shared memory and worker records, then
// deletes the session itself. Teardown of individual workers is best-effort.
func (e *Engine) DeleteSession(ctx context.Context, sessionID, userID string) error {
	if _, err := e.GetSession(ctx, sessionID, userID); err != nil {
		return err
	}

	e.forceStopWorkers(ctx, sessionID)

	if err := e.stores.Artifacts.Clear(ctx, sessionID, ""); err != nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	if err := e.stores.Messages.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if err := e.stores.Activities.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear activities: %w", err)
	}
	if err := e.stores.Memory.Clear(ctx, sessionID, ""); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	if err := e.stores.Workers.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear worker records: %w", err)
	}
	if err := e.stores.Sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	e.dropSessionState(sessionID)

	e.events.Publish(core.SessionDeleted{EventBase: core.NewEventBase(sessionID)})

	return nil
}

// RestartOptions controls what a session restart clears and runs.
type RestartOptions struct {
	// ClearArtifacts removes the session's artifacts before restarting.
	ClearArtifacts bool
	// ClearMemory removes the session's shared memory before restarting.
	ClearMemory bool
	// PreservePhase names an artifact type and shared-memory key prefix to
	// keep while clearing, so one phase's output survives the restart.
	PreservePhase string
	// WorkerTypes are started after the reset.
	WorkerTypes []string
}

// RestartSession resets a terminal session to a clean slate and runs a fresh
// set of workers. It is only legal from a terminal status; from any other
// status it fails with an InvalidStateError and leaves the session
// unmodified. Any failure during the restart itself forces the session into
// error with a descriptive message rather than leaving it inconsistent.
func (e *Engine) RestartSession(ctx context.Context, sessionID, userID string, opts RestartOptions) error {
	session, err := e.GetSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !session.Status.Terminal() {
		return &core.InvalidStateError{SessionID: sessionID, Status: session.Status, Op: "restart"}
	}

	e.forceStopWorkers(ctx, sessionID)

	if opts.ClearArtifacts {
		if err := e.stores.Artifacts.Clear(ctx, sessionID, opts.PreservePhase); err != nil {
			return e.forceSessionError(ctx, sessionID, fmt.Errorf("restart: clear artifacts: %w", err))
		}
	}
	if opts.ClearMemory {
		preservePrefix := ""
		if opts.PreservePhase != "" {
			preservePrefix = opts.PreservePhase + ":"
		}
		if err := e.stores.Memory.Clear(ctx, sessionID, preservePrefix); err != nil {
			return e.forceSessionError(ctx, sessionID, fmt.Errorf("restart: clear memory: %w", err))
		}
	}

	e.dropSessionState(sessionID)
	e.mu.Lock()
	e.tracks[sessionID] = make(map[string]*Registration)
	e.mu.Unlock()

	session.Status = core.SessionStatusCreated
	session.Error = ""
	session.Completed = nil
	if err := e.UpdateSession(ctx, session); err != nil {
		return e.forceSessionError(ctx, sessionID, fmt.Errorf("restart: reset session: %w", err))
	}
	e.logActivity(ctx, sessionID, "", core.ActivityInfo, "session restarted", map[string]any{"worker_types": opts.WorkerTypes})

	if err := e.StartWorkers(ctx, sessionID, userID, opts.WorkerTypes); err != nil {
		return e.forceSessionError(ctx, sessionID, fmt.Errorf("restart: start workers: %w", err))
	}

	return nil
}

// SubmitFeedback records user feedback tied to a session, worker or artifact
// and announces it to subscribers.
func (e *Engine) SubmitFeedback(ctx context.Context, sessionID, userID, workerID, artifactID string, content map[string]any) error {
	if _, err := e.GetSession(ctx, sessionID, userID); err != nil {
		return err
	}

	e.events.Publish(core.FeedbackReceived{
		EventBase:  core.NewEventBase(sessionID),
		WorkerID:   workerID,
		ArtifactID: artifactID,
		Content:    content,
	})
	e.logActivity(ctx, sessionID, workerID, core.ActivityInfo, "feedback received",
		map[string]any{"artifact_id": artifactID})

	return nil
}

// ListArtifacts returns a session's artifacts with type/status filtering and
// pagination, enforcing ownership.
func (e *Engine) ListArtifacts(ctx context.Context, sessionID, userID string, filter core.ArtifactFilter) ([]*core.Artifact, error) {
	if _, err := e.GetSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return e.stores.Artifacts.List(ctx, sessionID, filter)
}

// ListLogs returns a session's activity log with level/worker filtering and
// pagination, enforcing ownership.
func (e *Engine) ListLogs(ctx context.Context, sessionID, userID string, filter core.ActivityFilter) ([]*core.Activity, error) {
	if _, err := e.GetSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return e.stores.Activities.List(ctx, sessionID, filter)
}

// forceStopWorkers runs cleanup on every still-unfinished registration of a
// session. Best-effort: individual stop failures are logged and skipped.
func (e *Engine) forceStopWorkers(ctx context.Context, sessionID string) {
	e.mu.RLock()
	var regs []*Registration
	for _, reg := range e.registrations {
		if reg.SessionID == sessionID {
			regs = append(regs, reg)
		}
	}
	e.mu.RUnlock()

	for _, reg := range regs {
		w := reg.worker()
		if w == nil || reg.Status().Finished() {
			continue
		}
		if err := e.StopWorker(ctx, reg.ID); err != nil {
			e.logger.Warn("failed to stop worker during teardown", "worker_id", reg.ID, "error", err)
		}
	}
}

// dropSessionState removes the session's in-memory registrations, tracking
// entry and bus subscriptions.
func (e *Engine) dropSessionState(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, reg := range e.registrations {
		if reg.SessionID == sessionID {
			delete(e.registrations, id)
			e.bus.Unsubscribe(id)
		}
	}
	delete(e.tracks, sessionID)
}

// forceSessionError pins a session to error status with a descriptive
// message. The original failure is returned for the caller.
func (e *Engine) forceSessionError(ctx context.Context, sessionID string, cause error) error {
	session, err := e.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		e.logger.Warn("failed to load session while forcing error status", "session_id", sessionID, "error", err)
		return cause
	}

	session.Status = core.SessionStatusError
	session.Error = cause.Error()
	if err := e.UpdateSession(ctx, session); err != nil {
		e.logger.Warn("failed to force session error status", "session_id", sessionID, "error", err)
	}

	return cause
}
