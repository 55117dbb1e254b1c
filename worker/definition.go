package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
)

const (
	// DefaultDependencyInterval is the poll interval for dependency waiting.
	DefaultDependencyInterval = 5 * time.Second
	// DefaultDependencyTimeout bounds how long a worker waits for its
	// dependency keys before failing with a DependencyTimeoutError.
	DefaultDependencyTimeout = 300 * time.Second
)

// HookFunc is a lifecycle hook invoked with the worker's runtime context.
type HookFunc func(ctx context.Context, wc *Context) error

// MessageHookFunc handles one bus message addressed to the worker.
type MessageHookFunc func(ctx context.Context, wc *Context, m *core.Message) error

// Definition describes a pluggable worker type. PerformWork is the only
// required hook; everything else defaults to a no-op. A Definition is
// registered once per type and instantiated per session start.
type Definition struct {
	// Type is the unique worker type name, e.g. "planner" or "writer".
	Type string
	// Description documents the worker's purpose for listings and logs.
	Description string
	// Dependencies names shared memory keys that must exist before
	// PerformWork runs. The worker polls for them after initialization.
	Dependencies []string
	// DependencyInterval overrides the poll interval (default 5s).
	DependencyInterval time.Duration
	// DependencyTimeout overrides the wait bound (default 300s).
	DependencyTimeout time.Duration
	// ConfigSchema optionally validates per-instance configuration. Build it
	// by hand or derive it from a typed struct via util.CreateSchema.
	ConfigSchema map[string]any
	// MessageTypes names the bus message types routed to OnMessage. Workers
	// without message types never receive bus deliveries.
	MessageTypes []string

	// Init runs once before PerformWork. A failure aborts the worker with an
	// InitializationError; PerformWork is never called.
	Init HookFunc
	// PerformWork is the worker's domain logic. Required.
	PerformWork HookFunc
	// OnPause runs when a cooperative pause is requested.
	OnPause HookFunc
	// OnResume runs when a paused worker is resumed.
	OnResume HookFunc
	// OnCleanup runs during teardown. Errors are logged, never propagated.
	OnCleanup HookFunc
	// OnMessage handles bus messages delivered to this worker.
	OnMessage MessageHookFunc
}

// Validate checks the definition against the worker contract. It returns a
// ContractError naming the first missing piece, or nil if the definition is
// complete.
func (d *Definition) Validate() *core.ContractError {
	if d.Type == "" {
		return &core.ContractError{WorkerType: d.Type, Missing: "type name"}
	}
	if d.PerformWork == nil {
		return &core.ContractError{WorkerType: d.Type, Missing: "PerformWork operation"}
	}
	return nil
}

// ValidateConfig checks an instance configuration against the definition's
// schema. A nil schema accepts any configuration.
func (d *Definition) ValidateConfig(config map[string]any) error {
	if d.ConfigSchema == nil {
		return nil
	}
	if err := util.ValidateParameters(config, d.ConfigSchema); err != nil {
		return fmt.Errorf("invalid config for worker type %q: %w", d.Type, err)
	}
	return nil
}

func (d *Definition) dependencyInterval() time.Duration {
	if d.DependencyInterval > 0 {
		return d.DependencyInterval
	}
	return DefaultDependencyInterval
}

func (d *Definition) dependencyTimeout() time.Duration {
	if d.DependencyTimeout > 0 {
		return d.DependencyTimeout
	}
	return DefaultDependencyTimeout
}

// Registry holds the known worker type definitions. It is safe for
// concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty worker type registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register validates and stores a definition. Registering a type twice is an
// error so a misconfigured deployment fails loudly at startup.
func (r *Registry) Register(def *Definition) error {
	if cerr := def.Validate(); cerr != nil {
		return cerr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Type]; exists {
		return fmt.Errorf("worker type %q already registered", def.Type)
	}
	r.defs[def.Type] = def

	return nil
}

// Get returns the definition for a type.
func (r *Registry) Get(workerType string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[workerType]
	if !ok {
		return nil, &core.NotFoundError{Kind: "worker type", ID: workerType}
	}

	return def, nil
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	sort.Strings(types)

	return types
}
