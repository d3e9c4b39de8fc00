package evaluators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"

	"github.com/evalcraft/evalcraft/internal/models"
	"github.com/evalcraft/evalcraft/internal/similarity"
)

// expectedEvaluator scores the modified tree against the expected
// reference tree and passes iff the aggregate similarity meets the
// configured threshold.
type expectedEvaluator struct {
	name      string
	threshold float64
}

// NewExpectedEvaluator constructs the reference-similarity evaluator.
// The threshold is required and must be in (0, 1].
func NewExpectedEvaluator(name string, params map[string]any) (Evaluator, error) {
	var cfg struct {
		Threshold *float64 `mapstructure:"threshold"`
	}
	if err := mapstructure.Decode(params, &cfg); err != nil {
		return nil, fmt.Errorf("expected evaluator %q: decoding config: %w", name, err)
	}
	if cfg.Threshold == nil {
		return nil, fmt.Errorf("expected evaluator %q: threshold is required", name)
	}
	if *cfg.Threshold <= 0 || *cfg.Threshold > 1 {
		return nil, fmt.Errorf("expected evaluator %q: threshold must be in (0,1], got %v", name, *cfg.Threshold)
	}
	return &expectedEvaluator{name: name, threshold: *cfg.Threshold}, nil
}

func (e *expectedEvaluator) Name() string           { return e.name }
func (e *expectedEvaluator) RequiresExpected() bool { return true }

func (e *expectedEvaluator) CheckPreconditions(ec *Context) (bool, string) {
	if ec.ExpectedDir == "" {
		return false, "no expected reference tree configured"
	}
	if fi, err := os.Stat(ec.ExpectedDir); err != nil || !fi.IsDir() {
		return false, "expected reference tree not materialized"
	}
	return true, ""
}

func (e *expectedEvaluator) Evaluate(ctx context.Context, ec *Context) (*models.EvaluationResult, error) {
	return measureTime(func() (*models.EvaluationResult, error) {
		report, err := similarity.Compare(ec.ModifiedDir, ec.ExpectedDir)
		if err != nil {
			return nil, err
		}

		result := &models.EvaluationResult{
			EvaluatorName: e.name,
			Metrics: map[string]any{
				"aggregate_similarity": report.Aggregate,
				"files_matched":        report.Matched,
				"files_changed":        report.Changed,
				"files_added":          report.Added,
				"files_removed":        report.Removed,
			},
			Assertions: []models.AssertionResult{{
				Name:      "aggregate_similarity",
				Threshold: e.threshold,
				Actual:    report.Aggregate,
				Passed:    report.Aggregate >= e.threshold,
			}},
		}

		if report.Aggregate >= e.threshold {
			result.Status = models.StatusPassed
			result.Message = fmt.Sprintf("aggregate similarity %.4f meets threshold %.2f", report.Aggregate, e.threshold)
		} else {
			result.Status = models.StatusFailed
			result.Message = fmt.Sprintf("aggregate similarity %.4f below threshold %.2f", report.Aggregate, e.threshold)
		}

		if path, err := e.writeReport(ec, report); err != nil {
			slog.Warn("similarity report not written", "evaluator", e.name, "error", err)
			result.Message += " (similarity report not written)"
		} else if path != "" {
			result.Artifacts = []string{path}
		}

		return result, nil
	})
}

// writeReport persists the per-file similarity breakdown as a run artifact.
func (e *expectedEvaluator) writeReport(ec *Context, report *similarity.Report) (string, error) {
	if ec.ArtifactsDir == "" {
		return "", nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(ec.ArtifactsDir, e.name+"-similarity.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
