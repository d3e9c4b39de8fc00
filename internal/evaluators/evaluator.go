// Package evaluators defines the pluggable scoring units that inspect a
// code change and emit pass/fail/skip verdicts with metrics, plus the
// registry used to construct them from configuration.
package evaluators

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evalcraft/evalcraft/internal/models"
)

// Context is the immutable, shared-by-reference view handed to every
// evaluator. It is read-only: the only writer (agent execution) completes
// before any evaluator starts.
type Context struct {
	ModifiedDir  string
	ExpectedDir  string
	ArtifactsDir string
	AgentLog     *models.StandardLog
}

// Evaluator is the contract every scoring unit implements.
type Evaluator interface {
	// Name identifies the evaluator in results and error messages.
	Name() string

	// RequiresExpected reports whether the evaluator needs a materialized
	// expected reference tree.
	RequiresExpected() bool

	// CheckPreconditions reports whether the evaluator can run against the
	// given context. A false return carries the unmet-precondition reason.
	CheckPreconditions(ec *Context) (bool, string)

	// Evaluate scores the change set and returns exactly one result.
	Evaluate(ctx context.Context, ec *Context) (*models.EvaluationResult, error)
}

// Factory constructs an evaluator from its configured name and parameters.
type Factory func(name string, params map[string]any) (Evaluator, error)

// UnknownKindError is returned when no factory is registered for a kind.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("%q is not a registered evaluator type", e.Kind)
}

// Registry maps evaluator kind names to factories. It is populated at
// startup and read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a kind name to a factory, replacing any previous binding.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kind names.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}

// Create constructs an evaluator for the given kind. A lookup miss yields
// an *UnknownKindError.
func (r *Registry) Create(kind, name string, params map[string]any) (Evaluator, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownKindError{Kind: kind}
	}
	return factory(name, params)
}

// DefaultRegistry returns a registry with all built-in evaluator kinds.
// The judge capability may be nil; the judge evaluator then reports an
// unmet precondition instead of failing.
func DefaultRegistry(judge Judge) *Registry {
	r := NewRegistry()
	r.Register(KindDiff, NewDiffEvaluator)
	r.Register(KindExpected, NewExpectedEvaluator)
	r.Register(KindJudge, func(name string, params map[string]any) (Evaluator, error) {
		return NewJudgeEvaluator(name, params, judge)
	})
	return r
}

// Evaluator kind names as used in run spec configuration.
const (
	KindDiff     = "diff"
	KindExpected = "expected"
	KindJudge    = "judge"
)

// measureTime stamps duration and timestamp onto a result.
func measureTime(fn func() (*models.EvaluationResult, error)) (*models.EvaluationResult, error) {
	start := time.Now()
	result, err := fn()

	if result != nil {
		result.DurationMs = time.Since(start).Milliseconds()
		result.Timestamp = start.UTC()
	}

	return result, err
}
