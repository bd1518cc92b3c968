package tool

import (
	"sort"
	"sync"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/model"
)

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	// FailFast makes Register return the conflict instead of only logging
	// it. Either way the first registration wins.
	FailFast bool
	Logger   logging.Logger
}

// Registry holds the tool set assembled at startup. Registration conflicts
// keep the first writer; duplicates are rejected with a ConflictError.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	opts   RegistryOptions
	logger logging.Logger
}

// NewRegistry builds an empty registry and registers the given providers.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{tools: map[string]Tool{}, opts: opts, logger: opts.Logger}
}

// Register adds a tool. A duplicate name returns *core.ConflictError; the
// existing registration is kept untouched.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		err := &core.ConflictError{Kind: "tool", Name: t.Name()}
		r.logger.Warn("duplicate tool registration rejected", "tool", t.Name())
		return err
	}
	r.tools[t.Name()] = t
	r.logger.Debug("tool registered", "tool", t.Name())
	return nil
}

// RegisterAll registers a provider list in order. With FailFast the first
// conflict aborts; otherwise conflicts are logged and skipped.
func (r *Registry) RegisterAll(tools ...Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil && r.opts.FailFast {
			return err
		}
	}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions exports the registry as model-facing tool definitions, sorted
// by name for a stable prompt layout.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
