// Package runner executes a configured set of evaluators concurrently
// against one shared, read-only evaluation context, isolating each
// evaluator's failure from its siblings.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evalcraft/evalcraft/internal/evaluators"
	"github.com/evalcraft/evalcraft/internal/models"
)

const defaultMaxConcurrency = 4

// Options configures a Run.
type Options struct {
	// MaxConcurrency bounds the number of evaluators running at once.
	// Zero or negative means the default.
	MaxConcurrency int

	// EvaluatorTimeout cancels a single evaluator without affecting
	// siblings. Zero means no per-evaluator timeout.
	EvaluatorTimeout time.Duration

	// OnResult, when set, is called as each evaluator settles. Completion
	// order is unspecified.
	OnResult func(result models.EvaluationResult)
}

// Run fans out all evaluators, waits for every one to settle, and returns
// exactly one result per evaluator in the given order regardless of
// completion timing. Evaluation-phase failures never propagate: a panic,
// error, timeout, or unmet precondition becomes that evaluator's own
// skipped (or failed) result.
func Run(ctx context.Context, evs []evaluators.Evaluator, ec *evaluators.Context, opts Options) []models.EvaluationResult {
	workers := opts.MaxConcurrency
	if workers <= 0 {
		workers = defaultMaxConcurrency
	}

	results := make([]models.EvaluationResult, len(evs))
	semaphore := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, ev := range evs {
		wg.Add(1)
		go func(idx int, ev evaluators.Evaluator) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result := runOne(ctx, ev, ec, opts.EvaluatorTimeout)
			results[idx] = result

			if opts.OnResult != nil {
				opts.OnResult(result)
			}
		}(i, ev)
	}
	wg.Wait()

	return results
}

// runOne executes a single evaluator behind the failure-isolation boundary.
func runOne(ctx context.Context, ev evaluators.Evaluator, ec *evaluators.Context, timeout time.Duration) (result models.EvaluationResult) {
	start := time.Now()

	// The isolation boundary: nothing an evaluator does may escape it.
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("evaluator panicked", "evaluator", ev.Name(), "panic", r)
			result = skippedResult(ev.Name(), start, fmt.Sprintf("evaluator panicked: %v", r))
		}
	}()

	if ok, reason := ev.CheckPreconditions(ec); !ok {
		res := skippedResult(ev.Name(), start, "")
		res.Message = "precondition unmet: " + reason
		return res
	}

	evalCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := ev.Evaluate(evalCtx, ec)
	if err != nil {
		if evalCtx.Err() == context.DeadlineExceeded {
			return skippedResult(ev.Name(), start, fmt.Sprintf("timed out after %s: %v", timeout, err))
		}
		return skippedResult(ev.Name(), start, err.Error())
	}
	if res == nil {
		return skippedResult(ev.Name(), start, "evaluator returned no result")
	}

	res.EvaluatorName = ev.Name()
	if res.Timestamp.IsZero() {
		res.Timestamp = start.UTC()
	}
	return *res
}

func skippedResult(name string, start time.Time, errMsg string) models.EvaluationResult {
	return models.EvaluationResult{
		EvaluatorName: name,
		Status:        models.StatusSkipped,
		DurationMs:    time.Since(start).Milliseconds(),
		Timestamp:     start.UTC(),
		ErrorMsg:      errMsg,
	}
}
