package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/types"
)

// Capability is one callable exposed to an agent, bound to a single session.
// Name, Description, and Parameters are the only information exposed to the
// language-model backend for capability selection; changing any of them is a
// protocol change that alters observable agent behavior.
type Capability struct {
	Name        string
	Description string
	// Parameters is a JSON schema describing the call arguments.
	Parameters json.RawMessage
	// Call runs the capability. Recoverable failures are reported in the
	// returned string, not the error: the error return is reserved for
	// faults that must fail the enclosing turn (e.g. trace log writes).
	Call func(ctx context.Context, args map[string]any) (string, error)
}

// Factory produces a capability bound to the given session context. It runs
// once per session at construction time.
type Factory func(sctx types.SessionContext) (*Capability, error)

// Registry maps tool identifiers to factories. It is read-only after process
// startup; sessions share one instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.With(zap.String("component", "tool_registry")),
	}
}

// Register binds a factory to a tool identifier. Last write wins; normal use
// registers everything once in process bootstrap.
func (r *Registry) Register(toolID string, factory Factory) {
	r.mu.Lock()
	if _, replaced := r.factories[toolID]; replaced {
		r.logger.Warn("tool factory re-registered", zap.String("tool_id", toolID))
	}
	r.factories[toolID] = factory
	r.mu.Unlock()
}

// Has reports whether an identifier is registered.
func (r *Registry) Has(toolID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[toolID]
	return ok
}

// IDs returns the registered identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve invokes the factory for toolID with the session context. An
// unknown identifier is a configuration error and must abort session
// construction.
func (r *Registry) Resolve(toolID string, sctx types.SessionContext) (*Capability, error) {
	r.mu.RLock()
	factory, ok := r.factories[toolID]
	r.mu.RUnlock()

	if !ok {
		return nil, types.NewConfigError(types.ErrToolNotRegistered,
			fmt.Sprintf("tool with id %q was not registered", toolID))
	}

	capability, err := factory(sctx)
	if err != nil {
		return nil, fmt.Errorf("build capability %q: %w", toolID, err)
	}
	return capability, nil
}

// ResolveAll resolves every identifier in order, wrapping each capability
// with trace recording. The first configuration error aborts.
func (r *Registry) ResolveAll(toolIDs []string, sctx types.SessionContext) ([]*Capability, error) {
	caps := make([]*Capability, 0, len(toolIDs))
	for _, id := range toolIDs {
		capability, err := r.Resolve(id, sctx)
		if err != nil {
			return nil, err
		}
		caps = append(caps, WrapWithTracing(capability, sctx))
	}
	return caps, nil
}
