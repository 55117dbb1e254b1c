package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
	"github.com/hupe1980/researchmesh/logging"
)

// Services bundles the runtime collaborators handed to a worker instance.
// Memory and Artifacts are required; the rest default to no-ops when nil.
type Services struct {
	Memory    core.MemoryStore
	Artifacts core.ArtifactStore
	Sender    core.MessageSender
	Generator core.Generator
	Searcher  core.Searcher
	Events    core.Broadcaster
	Logger    logging.Logger

	// MaxGeneratorCalls caps Generate calls for one worker run (0 = unlimited).
	MaxGeneratorCalls int
}

// Task is one entry in a worker's private task list. The list is visible only
// through the owning worker's context.
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Done        bool       `json:"done"`
	Created     time.Time  `json:"created"`
	Completed   *time.Time `json:"completed,omitempty"`
}

// Context is the runtime surface handed to worker hooks. It scopes every
// operation to the owning worker and session: private memory keys are
// prefixed per worker, shared memory keys are raw, artifacts are stamped with
// the producer, and delegation goes through the session's message bus.
//
// A Context is bound to one worker instance and is safe for concurrent use by
// the hooks of that instance.
type Context struct {
	sessionID  string
	workerID   string
	workerType string
	config     map[string]any
	services   Services

	progress func(percent int, label string)

	mu       sync.Mutex
	tasks    []*Task
	genCalls int
}

func newContext(sessionID, workerID, workerType string, config map[string]any, services Services, progress func(int, string)) *Context {
	if services.Logger == nil {
		services.Logger = logging.NoOpLogger{}
	}
	return &Context{
		sessionID:  sessionID,
		workerID:   workerID,
		workerType: workerType,
		config:     config,
		services:   services,
		progress:   progress,
	}
}

// SessionID returns the owning session id.
func (c *Context) SessionID() string { return c.sessionID }

// WorkerID returns the owning worker id.
func (c *Context) WorkerID() string { return c.workerID }

// WorkerType returns the owning worker's type name.
func (c *Context) WorkerType() string { return c.workerType }

// Logger returns the worker's logger.
func (c *Context) Logger() logging.Logger { return c.services.Logger }

// Config returns the instance configuration map. Callers must not mutate it.
func (c *Context) Config() map[string]any { return c.config }

// ConfigString reads a string config value, falling back to def when the key
// is absent or not a string.
func (c *Context) ConfigString(key, def string) string {
	if v, ok := c.config[key].(string); ok {
		return v
	}
	return def
}

// UpdateProgress reports partial progress. The percentage is clamped to
// [0, 100] and published as a WorkerProgress event.
func (c *Context) UpdateProgress(percent int, label string) {
	if c.progress != nil {
		c.progress(percent, label)
	}
}

// privateKey namespaces a worker-private memory key so it never collides with
// shared keys or another worker's private state.
func (c *Context) privateKey(key string) string {
	return "worker:" + c.workerID + ":" + key
}

// StoreMemory writes a worker-private value. Private values live in the same
// session store as shared memory but under a per-worker prefix, so they
// survive the worker's in-process state yet stay invisible to shared reads.
func (c *Context) StoreMemory(ctx context.Context, key string, value any) error {
	sv := core.NewSharedValue(c.sessionID, c.workerID, value)
	return c.services.Memory.Put(ctx, c.sessionID, c.privateKey(key), sv)
}

// RetrieveMemory reads a worker-private value. A missing key is not an error.
func (c *Context) RetrieveMemory(ctx context.Context, key string) (any, bool, error) {
	sv, ok, err := c.services.Memory.Get(ctx, c.sessionID, c.privateKey(key))
	if err != nil || !ok {
		return nil, ok, err
	}
	return sv.Value, true, nil
}

// SearchMemory returns the worker's private keys (prefix stripped) whose name
// contains the query string.
func (c *Context) SearchMemory(ctx context.Context, query string) ([]string, error) {
	snapshot, err := c.services.Memory.Snapshot(ctx, c.sessionID)
	if err != nil {
		return nil, err
	}

	prefix := c.privateKey("")
	var matched []string
	for key := range snapshot {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if query == "" || strings.Contains(name, query) {
			matched = append(matched, name)
		}
	}

	return matched, nil
}

// StoreShared writes a session-shared value readable by every worker in the
// session. Last write wins; the stored value carries write provenance.
func (c *Context) StoreShared(ctx context.Context, key string, value any) error {
	sv := core.NewSharedValue(c.sessionID, c.workerID, value)
	return c.services.Memory.Put(ctx, c.sessionID, key, sv)
}

// RetrieveShared reads a session-shared value with its provenance metadata.
// A missing key is not an error.
func (c *Context) RetrieveShared(ctx context.Context, key string) (core.SharedValue, bool, error) {
	return c.services.Memory.Get(ctx, c.sessionID, key)
}

// AddTask appends an entry to the worker's private task list and returns its id.
func (c *Context) AddTask(description string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	task := &Task{
		ID:          util.NewID(),
		Description: description,
		Created:     time.Now().UTC(),
	}
	c.tasks = append(c.tasks, task)

	return task.ID
}

// CompleteTask marks a private task as done.
func (c *Context) CompleteTask(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, task := range c.tasks {
		if task.ID == taskID {
			now := time.Now().UTC()
			task.Done = true
			task.Completed = &now
			return nil
		}
	}

	return fmt.Errorf("task %s not found", taskID)
}

// Tasks returns a copy of the private task list.
func (c *Context) Tasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Task, len(c.tasks))
	for i, task := range c.tasks {
		out[i] = *task
	}

	return out
}

// CreateArtifact persists a new draft artifact produced by this worker.
func (c *Context) CreateArtifact(ctx context.Context, artifactType string, content, metadata map[string]any) (*core.Artifact, error) {
	now := time.Now().UTC()
	artifact := &core.Artifact{
		ID:        util.NewID(),
		SessionID: c.sessionID,
		WorkerID:  c.workerID,
		Type:      artifactType,
		Content:   content,
		Metadata:  metadata,
		Status:    core.ArtifactStatusDraft,
		Created:   now,
		Updated:   now,
	}

	if err := c.services.Artifacts.Save(ctx, artifact); err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}

	return artifact, nil
}

// UpdateArtifact replaces an artifact's content and status in place. Use it
// to promote a draft to final output.
func (c *Context) UpdateArtifact(ctx context.Context, artifactID string, content map[string]any, status core.ArtifactStatus) (*core.Artifact, error) {
	artifact, err := c.services.Artifacts.Get(ctx, c.sessionID, artifactID)
	if err != nil {
		return nil, err
	}

	artifact.Content = content
	artifact.Status = status
	artifact.Updated = time.Now().UTC()

	if err := c.services.Artifacts.Save(ctx, artifact); err != nil {
		return nil, fmt.Errorf("update artifact: %w", err)
	}

	return artifact, nil
}

// GetArtifact reads any artifact in the session (artifacts are readable
// session-wide regardless of producer).
func (c *Context) GetArtifact(ctx context.Context, artifactID string) (*core.Artifact, error) {
	return c.services.Artifacts.Get(ctx, c.sessionID, artifactID)
}

// Delegate queues a message to another worker in the session.
func (c *Context) Delegate(ctx context.Context, to, msgType string, data map[string]any) (*core.Message, error) {
	if c.services.Sender == nil {
		return nil, fmt.Errorf("worker %s has no message sender", c.workerID)
	}
	return c.services.Sender.Send(ctx, c.sessionID, c.workerID, to, msgType, data)
}

// Broadcast queues a message to every worker tracked under the session.
func (c *Context) Broadcast(ctx context.Context, msgType string, data map[string]any) (*core.Message, error) {
	return c.Delegate(ctx, "", msgType, data)
}

// Generate calls the configured text generator, counting the call against the
// worker run's call budget.
func (c *Context) Generate(ctx context.Context, prompt string) (string, error) {
	if c.services.Generator == nil {
		return "", fmt.Errorf("worker %s has no generator configured", c.workerID)
	}
	if err := c.consumeGeneratorCall(); err != nil {
		return "", err
	}
	return c.services.Generator.Generate(ctx, prompt)
}

func (c *Context) consumeGeneratorCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.services.MaxGeneratorCalls > 0 && c.genCalls >= c.services.MaxGeneratorCalls {
		return fmt.Errorf("worker %s exhausted its generator call budget of %d", c.workerID, c.services.MaxGeneratorCalls)
	}
	c.genCalls++
	return nil
}

// GeneratorCalls returns how many generator calls this run has made.
func (c *Context) GeneratorCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.genCalls
}

// RenderPrompt expands template markers in a prompt against the worker's
// configuration, so prompt text can reference config values like the session
// topic without manual formatting.
func (c *Context) RenderPrompt(text string) (string, error) {
	return util.RenderTemplate(text, c.config)
}

// Search queries the configured searcher.
func (c *Context) Search(ctx context.Context, collectionID, query string, limit int) ([]core.SearchResult, error) {
	if c.services.Searcher == nil {
		return nil, fmt.Errorf("worker %s has no searcher configured", c.workerID)
	}
	return c.services.Searcher.Search(ctx, collectionID, query, limit)
}
