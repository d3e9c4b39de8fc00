package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalcraft/evalcraft/internal/evaluators"
	"github.com/evalcraft/evalcraft/internal/models"
)

// stubEvaluator is a scriptable evaluator for runner tests.
type stubEvaluator struct {
	name         string
	precondition string
	delay        time.Duration
	result       *models.EvaluationResult
	err          error
	panicWith    any
	respectCtx   bool
}

func (s *stubEvaluator) Name() string           { return s.name }
func (s *stubEvaluator) RequiresExpected() bool { return false }

func (s *stubEvaluator) CheckPreconditions(_ *evaluators.Context) (bool, string) {
	if s.precondition != "" {
		return false, s.precondition
	}
	return true, ""
}

func (s *stubEvaluator) Evaluate(ctx context.Context, _ *evaluators.Context) (*models.EvaluationResult, error) {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if s.delay > 0 {
		if s.respectCtx {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			time.Sleep(s.delay)
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &models.EvaluationResult{Status: models.StatusPassed}, nil
}

func passing(name string) *stubEvaluator { return &stubEvaluator{name: name} }

func TestRunReturnsResultsInConfiguredOrder(t *testing.T) {
	// Reverse-sorted delays so completion order is the opposite of input order
	evs := []evaluators.Evaluator{
		&stubEvaluator{name: "slow", delay: 60 * time.Millisecond},
		&stubEvaluator{name: "medium", delay: 30 * time.Millisecond},
		&stubEvaluator{name: "fast"},
	}

	results := Run(context.Background(), evs, &evaluators.Context{}, Options{MaxConcurrency: 3})

	require.Len(t, results, 3)
	assert.Equal(t, "slow", results[0].EvaluatorName)
	assert.Equal(t, "medium", results[1].EvaluatorName)
	assert.Equal(t, "fast", results[2].EvaluatorName)
}

func TestRunOneResultPerEvaluator(t *testing.T) {
	var evs []evaluators.Evaluator
	for i := 0; i < 20; i++ {
		evs = append(evs, passing(fmt.Sprintf("ev-%02d", i)))
	}

	results := Run(context.Background(), evs, &evaluators.Context{}, Options{MaxConcurrency: 3})

	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("ev-%02d", i), r.EvaluatorName)
		assert.Equal(t, models.StatusPassed, r.Status)
	}
}

func TestRunIsolatesEvaluatorError(t *testing.T) {
	// Three evaluators where the second throws mid-execution
	evs := []evaluators.Evaluator{
		passing("a"),
		&stubEvaluator{name: "b", err: errors.New("boom")},
		passing("c"),
	}

	results := Run(context.Background(), evs, &evaluators.Context{}, Options{})

	require.Len(t, results, 3)
	assert.Equal(t, models.StatusPassed, results[0].Status)
	assert.Equal(t, models.StatusSkipped, results[1].Status)
	assert.Contains(t, results[1].ErrorMsg, "boom")
	assert.Equal(t, models.StatusPassed, results[2].Status)
}

func TestRunIsolatesPanic(t *testing.T) {
	evs := []evaluators.Evaluator{
		passing("a"),
		&stubEvaluator{name: "b", panicWith: "unexpected state"},
		passing("c"),
	}

	// The Run call itself must never raise
	require.NotPanics(t, func() {
		results := Run(context.Background(), evs, &evaluators.Context{}, Options{})

		require.Len(t, results, 3)
		assert.Equal(t, models.StatusSkipped, results[1].Status)
		assert.Contains(t, results[1].ErrorMsg, "panicked")
		assert.Equal(t, models.StatusPassed, results[0].Status)
		assert.Equal(t, models.StatusPassed, results[2].Status)
	})
}

func TestRunPerEvaluatorTimeout(t *testing.T) {
	evs := []evaluators.Evaluator{
		&stubEvaluator{name: "stuck", delay: 5 * time.Second, respectCtx: true},
		passing("quick"),
	}

	start := time.Now()
	results := Run(context.Background(), evs, &evaluators.Context{}, Options{
		EvaluatorTimeout: 50 * time.Millisecond,
	})
	elapsed := time.Since(start)

	require.Len(t, results, 2)
	assert.Equal(t, models.StatusSkipped, results[0].Status)
	assert.Contains(t, results[0].ErrorMsg, "timed out")
	assert.Equal(t, models.StatusPassed, results[1].Status)
	assert.Less(t, elapsed, 2*time.Second, "timeout must not stall the whole run")
}

func TestRunPreconditionUnmet(t *testing.T) {
	evs := []evaluators.Evaluator{
		&stubEvaluator{name: "needs-ref", precondition: "no expected reference tree configured"},
		passing("independent"),
	}

	results := Run(context.Background(), evs, &evaluators.Context{}, Options{})

	assert.Equal(t, models.StatusSkipped, results[0].Status)
	assert.Contains(t, results[0].Message, "precondition unmet")
	assert.Contains(t, results[0].Message, "expected reference")
	assert.Equal(t, models.StatusPassed, results[1].Status)
}

func TestRunFailedResultPreserved(t *testing.T) {
	evs := []evaluators.Evaluator{
		&stubEvaluator{name: "strict", result: &models.EvaluationResult{
			Status:  models.StatusFailed,
			Message: "threshold violated",
		}},
	}

	results := Run(context.Background(), evs, &evaluators.Context{}, Options{})

	require.Len(t, results, 1)
	assert.Equal(t, models.StatusFailed, results[0].Status)
	assert.Equal(t, "strict", results[0].EvaluatorName)
}

func TestRunConcurrencyBound(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0

	var evs []evaluators.Evaluator
	for i := 0; i < 10; i++ {
		evs = append(evs, &trackingEvaluator{
			name: fmt.Sprintf("t%d", i),
			onRun: func() {
				mu.Lock()
				active++
				if active > peak {
					peak = active
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
			},
		})
	}

	Run(context.Background(), evs, &evaluators.Context{}, Options{MaxConcurrency: 2})

	assert.LessOrEqual(t, peak, 2)
}

func TestRunOnResultCallback(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}

	evs := []evaluators.Evaluator{passing("a"), passing("b")}
	Run(context.Background(), evs, &evaluators.Context{}, Options{
		OnResult: func(r models.EvaluationResult) {
			mu.Lock()
			seen[r.EvaluatorName] = true
			mu.Unlock()
		},
	})

	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

// trackingEvaluator invokes a callback during Evaluate.
type trackingEvaluator struct {
	name  string
	onRun func()
}

func (tr *trackingEvaluator) Name() string                                        { return tr.name }
func (tr *trackingEvaluator) RequiresExpected() bool                              { return false }
func (tr *trackingEvaluator) CheckPreconditions(_ *evaluators.Context) (bool, string) { return true, "" }

func (tr *trackingEvaluator) Evaluate(_ context.Context, _ *evaluators.Context) (*models.EvaluationResult, error) {
	tr.onRun()
	return &models.EvaluationResult{Status: models.StatusPassed}, nil
}
