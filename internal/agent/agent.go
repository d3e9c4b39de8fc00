// Package agent adapts external code-changing tools behind a uniform
// execution interface. Adapters run the tool against the modified tree
// and translate its raw output into the normalized log shape.
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evalcraft/evalcraft/internal/models"
)

// Request carries everything an adapter needs for one execution.
type Request struct {
	// WorkDir is the modified tree the agent operates on.
	WorkDir string

	// Prompt is the task description handed to the agent, when the
	// adapter supports one.
	Prompt string

	// Timeout bounds the execution. Zero means no adapter-level timeout.
	Timeout time.Duration
}

// Agent is implemented by every adapter.
type Agent interface {
	// Name identifies the adapter in results and logs.
	Name() string

	// CheckAvailability reports whether the underlying tool can run at
	// all. Callers record an unavailable outcome instead of executing.
	CheckAvailability() bool

	// Execute runs the tool to completion and reports its outcome. A
	// non-zero exit is a failed outcome, not an error; errors mean the
	// execution itself could not happen.
	Execute(ctx context.Context, req Request) (*models.AgentOutcome, error)

	// NormalizeLog translates raw tool output into the standard log.
	NormalizeLog(raw string) *models.StandardLog
}

// Factory builds an agent from its configuration.
type Factory func(cfg models.AgentConfig) (Agent, error)

// UnknownKindError is returned when no factory is registered for a kind.
type UnknownKindError struct {
	Kind  string
	Known []string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown agent type %q (known: %v)", e.Kind, e.Known)
}

// Registry maps agent kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in adapters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindCommand, func(cfg models.AgentConfig) (Agent, error) {
		return NewCommandAgent(cfg)
	})
	r.Register(KindMock, func(cfg models.AgentConfig) (Agent, error) {
		return NewMockAgent(cfg), nil
	})
	return r
}

// Register adds or replaces the factory for a kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Create builds an agent for the configured kind.
func (r *Registry) Create(cfg models.AgentConfig) (Agent, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownKindError{Kind: cfg.Kind, Known: r.Kinds()}
	}
	return f(cfg)
}
