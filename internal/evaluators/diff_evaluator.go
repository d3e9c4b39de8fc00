package evaluators

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/evalcraft/evalcraft/internal/diffmetrics"
	"github.com/evalcraft/evalcraft/internal/models"
)

// diffThresholds are the configurable numeric assertions for the diff
// evaluator. Nil means the threshold is not configured.
type diffThresholds struct {
	MaxFilesChanged *int     `mapstructure:"max_files_changed"`
	MaxLinesAdded   *int     `mapstructure:"max_lines_added"`
	MinLinesAdded   *int     `mapstructure:"min_lines_added"`
	MaxLinesRemoved *int     `mapstructure:"max_lines_removed"`
	MinLinesRemoved *int     `mapstructure:"min_lines_removed"`
	MinEntropy      *float64 `mapstructure:"min_entropy"`
	MaxEntropy      *float64 `mapstructure:"max_entropy"`
}

func (t *diffThresholds) configured() bool {
	return t.MaxFilesChanged != nil || t.MaxLinesAdded != nil || t.MinLinesAdded != nil ||
		t.MaxLinesRemoved != nil || t.MinLinesRemoved != nil ||
		t.MinEntropy != nil || t.MaxEntropy != nil
}

// diffEvaluator scores the change set of the modified tree: file/line
// counts plus change entropy, checked against configured thresholds.
type diffEvaluator struct {
	name       string
	thresholds diffThresholds
}

// NewDiffEvaluator constructs the git-diff-backed evaluator.
func NewDiffEvaluator(name string, params map[string]any) (Evaluator, error) {
	var t diffThresholds
	if err := mapstructure.Decode(params, &t); err != nil {
		return nil, fmt.Errorf("diff evaluator %q: decoding config: %w", name, err)
	}
	return &diffEvaluator{name: name, thresholds: t}, nil
}

func (e *diffEvaluator) Name() string           { return e.name }
func (e *diffEvaluator) RequiresExpected() bool { return false }

func (e *diffEvaluator) CheckPreconditions(ec *Context) (bool, string) {
	if ec.ModifiedDir == "" {
		return false, "no modified tree available"
	}
	return true, ""
}

func (e *diffEvaluator) Evaluate(ctx context.Context, ec *Context) (*models.EvaluationResult, error) {
	return measureTime(func() (*models.EvaluationResult, error) {
		stats, err := diffmetrics.Collect(ctx, ec.ModifiedDir)
		if err != nil {
			return nil, err
		}
		entropy := diffmetrics.ChangeEntropy(stats)

		assertions := e.checkThresholds(stats, entropy)

		result := &models.EvaluationResult{
			EvaluatorName: e.name,
			Metrics: map[string]any{
				"files_changed":  stats.FilesChanged,
				"lines_added":    stats.LinesAdded,
				"lines_removed":  stats.LinesRemoved,
				"total_changes":  stats.TotalChanges,
				"change_entropy": entropy,
			},
			Assertions: assertions,
		}

		failed := 0
		for _, a := range assertions {
			if !a.Passed {
				failed++
			}
		}

		switch {
		case failed > 0:
			result.Status = models.StatusFailed
			result.Message = fmt.Sprintf("%d of %d change-scope assertions violated", failed, len(assertions))
		case !e.thresholds.configured() && stats.TotalChanges == 0:
			result.Status = models.StatusSkipped
			result.Message = "no changes detected and no thresholds configured"
		default:
			result.Status = models.StatusPassed
			result.Message = fmt.Sprintf("%d files changed (+%d/-%d), entropy %.3f",
				stats.FilesChanged, stats.LinesAdded, stats.LinesRemoved, entropy)
		}

		return result, nil
	})
}

func (e *diffEvaluator) checkThresholds(stats *diffmetrics.Stats, entropy float64) []models.AssertionResult {
	t := e.thresholds
	var assertions []models.AssertionResult

	check := func(name string, threshold, actual float64, ok bool) {
		assertions = append(assertions, models.AssertionResult{
			Name:      name,
			Threshold: threshold,
			Actual:    actual,
			Passed:    ok,
		})
	}

	if t.MaxFilesChanged != nil {
		check("max_files_changed", float64(*t.MaxFilesChanged), float64(stats.FilesChanged), stats.FilesChanged <= *t.MaxFilesChanged)
	}
	if t.MaxLinesAdded != nil {
		check("max_lines_added", float64(*t.MaxLinesAdded), float64(stats.LinesAdded), stats.LinesAdded <= *t.MaxLinesAdded)
	}
	if t.MinLinesAdded != nil {
		check("min_lines_added", float64(*t.MinLinesAdded), float64(stats.LinesAdded), stats.LinesAdded >= *t.MinLinesAdded)
	}
	if t.MaxLinesRemoved != nil {
		check("max_lines_removed", float64(*t.MaxLinesRemoved), float64(stats.LinesRemoved), stats.LinesRemoved <= *t.MaxLinesRemoved)
	}
	if t.MinLinesRemoved != nil {
		check("min_lines_removed", float64(*t.MinLinesRemoved), float64(stats.LinesRemoved), stats.LinesRemoved >= *t.MinLinesRemoved)
	}
	if t.MinEntropy != nil {
		check("min_entropy", *t.MinEntropy, entropy, entropy >= *t.MinEntropy)
	}
	if t.MaxEntropy != nil {
		check("max_entropy", *t.MaxEntropy, entropy, entropy <= *t.MaxEntropy)
	}

	return assertions
}
