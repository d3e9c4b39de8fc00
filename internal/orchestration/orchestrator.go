// Package orchestration drives one complete evaluation run: workspace
// setup, agent execution, concurrent evaluation, and result aggregation.
package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evalcraft/evalcraft/internal/agent"
	"github.com/evalcraft/evalcraft/internal/evaluators"
	"github.com/evalcraft/evalcraft/internal/hooks"
	"github.com/evalcraft/evalcraft/internal/models"
	"github.com/evalcraft/evalcraft/internal/results"
	"github.com/evalcraft/evalcraft/internal/runner"
	"github.com/evalcraft/evalcraft/internal/utils"
	"github.com/evalcraft/evalcraft/internal/workspace"
)

const defaultWorkspaceRoot = ".evalcraft"

// EventType identifies a progress event.
type EventType string

const (
	EventRunStart          EventType = "run_start"
	EventWorkspaceReady    EventType = "workspace_ready"
	EventAgentStart        EventType = "agent_start"
	EventAgentComplete     EventType = "agent_complete"
	EventEvaluatorComplete EventType = "evaluator_complete"
	EventRunComplete       EventType = "run_complete"
)

// ProgressEvent is delivered to listeners as the run advances.
type ProgressEvent struct {
	EventType EventType
	RunID     string
	Evaluator string
	Status    models.Status
	Overall   models.OverallStatus
	Details   map[string]any
}

// ProgressListener receives progress updates. Listeners may be called
// from evaluator goroutines and must be safe for concurrent use.
type ProgressListener func(event ProgressEvent)

// Orchestrator executes a run spec end to end.
type Orchestrator struct {
	spec       *models.RunSpec
	agents     *agent.Registry
	evaluators *evaluators.Registry
	hookRunner *hooks.Runner
	verbose    bool

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithVerbose enables hook output passthrough and extra logging.
func WithVerbose(v bool) Option {
	return func(o *Orchestrator) { o.verbose = v }
}

// WithAgentRegistry overrides the default agent registry.
func WithAgentRegistry(r *agent.Registry) Option {
	return func(o *Orchestrator) { o.agents = r }
}

// WithEvaluatorRegistry overrides the default evaluator registry.
func WithEvaluatorRegistry(r *evaluators.Registry) Option {
	return func(o *Orchestrator) { o.evaluators = r }
}

// New builds an orchestrator for the given spec. The judge capability may
// be nil; judge evaluators then skip with an unmet precondition.
func New(spec *models.RunSpec, judge evaluators.Judge, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		spec:       spec,
		agents:     agent.DefaultRegistry(),
		evaluators: evaluators.DefaultRegistry(judge),
	}
	for _, opt := range opts {
		opt(o)
	}

	// Hooks run with the same filtered environment as the agent.
	o.hookRunner = &hooks.Runner{
		Verbose: o.verbose,
		Env:     agent.FilterEnv(spec.Agent.Env),
	}
	return o
}

// OnProgress registers a progress listener.
func (o *Orchestrator) OnProgress(listener ProgressListener) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	o.listeners = append(o.listeners, listener)
}

func (o *Orchestrator) notifyProgress(event ProgressEvent) {
	o.progressMu.Lock()
	listeners := make([]ProgressListener, len(o.listeners))
	copy(listeners, o.listeners)
	o.progressMu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

// Execute runs the full pipeline and returns the results bundle. Setup
// failures (workspace, lock, materialization, configuration) return an
// error with no bundle; evaluator failures are captured inside the bundle.
func (o *Orchestrator) Execute(ctx context.Context) (*models.ResultsBundle, error) {
	if timeout := o.spec.Config.TimeoutSec; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	// Construct evaluators before touching the filesystem so a bad
	// configuration never leaves a workspace behind.
	evs, err := o.buildEvaluators()
	if err != nil {
		return nil, err
	}

	ag, err := o.agents.Create(o.spec.Agent)
	if err != nil {
		return nil, fmt.Errorf("configuring agent: %w", err)
	}

	root := o.spec.Config.WorkspaceRoot
	if root == "" {
		root = defaultWorkspaceRoot
	}

	ws, err := workspace.Create(root, o.spec.Name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cleanupErr := workspace.Cleanup(ws, o.spec.Config.KeepWorkspace); cleanupErr != nil {
			slog.Warn("workspace cleanup failed", "dir", ws.Dir, "error", cleanupErr)
		}
	}()

	o.notifyProgress(ProgressEvent{EventType: EventRunStart, RunID: ws.RunID})
	slog.Info("run started", "run_id", ws.RunID, "spec", o.spec.Name)

	// after_run hooks fire on every exit path once the run has started,
	// so external state set up by before_run is always torn down.
	afterRunDone := false
	runAfterRun := func() error {
		if afterRunDone {
			return nil
		}
		afterRunDone = true
		return o.hookRunner.Execute(context.WithoutCancel(ctx), "after_run", o.spec.Hooks.AfterRun)
	}
	defer func() {
		if err := runAfterRun(); err != nil {
			slog.Warn("after_run hooks failed", "error", err)
		}
	}()

	if err := o.hookRunner.Execute(ctx, "before_run", o.spec.Hooks.BeforeRun); err != nil {
		return nil, err
	}

	// Local repo paths in the spec resolve relative to the spec file.
	repo := o.spec.Repo
	repo.URL = utils.ResolveRepoURL(repo.URL, o.spec.SpecDir())
	expected := o.spec.Expected
	if expected != nil {
		resolved := *expected
		resolved.URL = utils.ResolveRepoURL(resolved.URL, o.spec.SpecDir())
		expected = &resolved
	}

	if err := workspace.MaterializePair(ctx, ws, repo, expected); err != nil {
		return nil, err
	}
	o.notifyProgress(ProgressEvent{EventType: EventWorkspaceReady, RunID: ws.RunID})

	outcome, err := o.executeAgent(ctx, ag, ws)
	if err != nil {
		return nil, err
	}

	if err := o.hookRunner.Execute(ctx, "before_evaluation", o.spec.Hooks.BeforeEvaluation); err != nil {
		return nil, err
	}

	ec := &evaluators.Context{
		ModifiedDir:  ws.ModifiedDir,
		ArtifactsDir: ws.ArtifactsDir,
	}
	if ws.HasExpected() {
		ec.ExpectedDir = ws.ExpectedDir
	}
	if outcome.Log != nil {
		ec.AgentLog = outcome.Log
	}

	evalResults := runner.Run(ctx, evs, ec, runner.Options{
		MaxConcurrency:   o.spec.Config.MaxConcurrency,
		EvaluatorTimeout: time.Duration(o.spec.Config.EvaluatorTimeoutSec) * time.Second,
		OnResult: func(r models.EvaluationResult) {
			o.notifyProgress(ProgressEvent{
				EventType: EventEvaluatorComplete,
				RunID:     ws.RunID,
				Evaluator: r.EvaluatorName,
				Status:    r.Status,
			})
		},
	})

	if err := o.hookRunner.Execute(ctx, "after_evaluation", o.spec.Hooks.AfterEvaluation); err != nil {
		return nil, err
	}

	bundle := results.Aggregate(models.WorkspaceInfo{
		RunID:        ws.RunID,
		Dir:          ws.Dir,
		ModifiedDir:  ws.ModifiedDir,
		ExpectedDir:  ec.ExpectedDir,
		ArtifactsDir: ws.ArtifactsDir,
	}, o.spec.Name, *outcome, evalResults)

	bundlePath, err := results.Write(bundle, ws.ArtifactsDir)
	if err != nil {
		return nil, err
	}
	slog.Info("results written", "path", bundlePath, "overall", bundle.Summary.OverallStatus)

	if err := runAfterRun(); err != nil {
		return bundle, err
	}

	o.notifyProgress(ProgressEvent{
		EventType: EventRunComplete,
		RunID:     ws.RunID,
		Overall:   bundle.Summary.OverallStatus,
	})

	return bundle, nil
}

// executeAgent runs the configured agent against the modified tree. An
// unavailable agent is recorded, not fatal; evaluators then score the
// unmodified tree.
func (o *Orchestrator) executeAgent(ctx context.Context, ag agent.Agent, ws *workspace.Workspace) (*models.AgentOutcome, error) {
	if !ag.CheckAvailability() {
		slog.Warn("agent unavailable, evaluating unmodified tree", "agent", ag.Name())
		return &models.AgentOutcome{Agent: ag.Name(), Status: models.AgentUnavailable}, nil
	}

	o.notifyProgress(ProgressEvent{EventType: EventAgentStart, RunID: ws.RunID})

	outcome, err := ag.Execute(ctx, agent.Request{
		WorkDir: ws.ModifiedDir,
		Prompt:  o.spec.Description,
		Timeout: time.Duration(o.spec.Agent.TimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("executing agent %s: %w", ag.Name(), err)
	}

	slog.Info("agent finished", "agent", ag.Name(), "status", outcome.Status, "exit_code", outcome.ExitCode)
	o.notifyProgress(ProgressEvent{
		EventType: EventAgentComplete,
		RunID:     ws.RunID,
		Details:   map[string]any{"status": outcome.Status, "exit_code": outcome.ExitCode},
	})

	return outcome, nil
}

// buildEvaluators constructs every configured evaluator in spec order.
func (o *Orchestrator) buildEvaluators() ([]evaluators.Evaluator, error) {
	evs := make([]evaluators.Evaluator, 0, len(o.spec.Evaluators))
	for _, cfg := range o.spec.Evaluators {
		ev, err := o.evaluators.Create(cfg.Kind, cfg.Name, cfg.Parameters)
		if err != nil {
			return nil, fmt.Errorf("configuring evaluator %q: %w", cfg.Name, err)
		}
		evs = append(evs, ev)
	}
	return evs, nil
}
