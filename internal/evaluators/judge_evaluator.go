package evaluators

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/evalcraft/evalcraft/internal/models"
)

// judgeEvaluator delegates free-form quality scoring to an injected Judge
// capability with a strict verdict schema.
type judgeEvaluator struct {
	name      string
	criteria  string
	threshold float64
	judge     Judge
}

// NewJudgeEvaluator constructs the judge-backed evaluator. When threshold
// is configured (> 0) it overrides the judge's own pass/fail call.
func NewJudgeEvaluator(name string, params map[string]any, judge Judge) (Evaluator, error) {
	var cfg struct {
		Criteria  string  `mapstructure:"criteria"`
		Threshold float64 `mapstructure:"threshold"`
	}
	if err := mapstructure.Decode(params, &cfg); err != nil {
		return nil, fmt.Errorf("judge evaluator %q: decoding config: %w", name, err)
	}
	if cfg.Criteria == "" {
		return nil, fmt.Errorf("judge evaluator %q: criteria is required", name)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("judge evaluator %q: threshold must be in [0,1], got %v", name, cfg.Threshold)
	}
	return &judgeEvaluator{name: name, criteria: cfg.Criteria, threshold: cfg.Threshold, judge: judge}, nil
}

func (e *judgeEvaluator) Name() string           { return e.name }
func (e *judgeEvaluator) RequiresExpected() bool { return false }

func (e *judgeEvaluator) CheckPreconditions(ec *Context) (bool, string) {
	if e.judge == nil {
		return false, "no judge capability configured"
	}
	if ec.ModifiedDir == "" {
		return false, "no modified tree available"
	}
	return true, ""
}

func (e *judgeEvaluator) Evaluate(ctx context.Context, ec *Context) (*models.EvaluationResult, error) {
	return measureTime(func() (*models.EvaluationResult, error) {
		verdict, err := e.judge.Judge(ctx, JudgeRequest{
			Criteria:    e.criteria,
			ModifiedDir: ec.ModifiedDir,
			AgentLog:    ec.AgentLog,
		})
		if err != nil {
			return nil, err
		}

		passed := verdict.Passed
		if e.threshold > 0 {
			passed = verdict.Score >= e.threshold
		}

		result := &models.EvaluationResult{
			EvaluatorName: e.name,
			Metrics: map[string]any{
				"score": verdict.Score,
			},
			Message: verdict.Reasoning,
		}
		if e.threshold > 0 {
			result.Assertions = []models.AssertionResult{{
				Name:      "judge_score",
				Threshold: e.threshold,
				Actual:    verdict.Score,
				Passed:    passed,
			}}
		}

		if passed {
			result.Status = models.StatusPassed
		} else {
			result.Status = models.StatusFailed
		}

		return result, nil
	})
}
