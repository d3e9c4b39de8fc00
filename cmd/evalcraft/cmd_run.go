package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evalcraft/evalcraft/internal/evaluators"
	"github.com/evalcraft/evalcraft/internal/models"
	"github.com/evalcraft/evalcraft/internal/orchestration"
	"github.com/evalcraft/evalcraft/internal/validation"
)

func newRunCommand() *cobra.Command {
	var (
		keepWorkspace  bool
		workspaceRoot  string
		maxConcurrency int
		timeoutSec     int
		verbose        bool
		outputPath     string
		judgeModel     string
		agentKind      string
	)

	cmd := &cobra.Command{
		Use:   "run <runspec.yaml>",
		Short: "Run an evaluation against a repository",
		Long: `Run an evaluation from a run spec file.

The spec defines the repository to evaluate, the agent producing the
change, and the evaluators scoring it. Results are written to the
workspace artifacts directory as results.json.

The judge evaluator uses the OPENAI_API_KEY environment variable when
present; without it, judge evaluators are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specPath := args[0]

			schemaErrs, err := validation.ValidateRunSpecFile(specPath)
			if err != nil {
				return err
			}
			if len(schemaErrs) > 0 {
				for _, e := range schemaErrs {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e)
				}
				return fmt.Errorf("%s: run spec failed schema validation", specPath)
			}

			spec, err := models.LoadRunSpec(specPath)
			if err != nil {
				return fmt.Errorf("loading run spec: %w", err)
			}

			// CLI flags override spec config
			if cmd.Flags().Changed("keep-workspace") {
				spec.Config.KeepWorkspace = keepWorkspace
			}
			if workspaceRoot != "" {
				spec.Config.WorkspaceRoot = workspaceRoot
			}
			if maxConcurrency > 0 {
				spec.Config.MaxConcurrency = maxConcurrency
			}
			if timeoutSec > 0 {
				spec.Config.TimeoutSec = timeoutSec
			}
			if agentKind != "" {
				spec.Agent.Kind = agentKind
			}

			var judge evaluators.Judge
			if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
				judge = evaluators.NewOpenAIJudge(apiKey, judgeModel)
			}

			o := orchestration.New(spec, judge, orchestration.WithVerbose(verbose))
			if verbose {
				o.OnProgress(func(e orchestration.ProgressEvent) {
					switch e.EventType {
					case orchestration.EventEvaluatorComplete:
						fmt.Fprintf(cmd.OutOrStdout(), "  %-30s %s\n", e.Evaluator, e.Status)
					case orchestration.EventWorkspaceReady:
						fmt.Fprintf(cmd.OutOrStdout(), "workspace ready (%s)\n", e.RunID)
					case orchestration.EventAgentStart:
						fmt.Fprintln(cmd.OutOrStdout(), "agent running...")
					}
				})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bundle, err := o.Execute(ctx)
			if err != nil {
				return err
			}

			printSummary(cmd, bundle)

			if outputPath != "" {
				if err := saveBundle(bundle, outputPath); err != nil {
					return fmt.Errorf("saving results to %s: %w", outputPath, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Results saved to: %s\n", outputPath)
			}

			if bundle.Summary.OverallStatus != models.OverallPassed {
				return &VerdictError{Overall: bundle.Summary.OverallStatus}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepWorkspace, "keep-workspace", false, "Keep the run workspace on disk after the run")
	cmd.Flags().StringVar(&workspaceRoot, "workspace-root", "", "Directory to create run workspaces under")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "Maximum evaluators running at once (default 4)")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "Overall run timeout in seconds")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output with per-evaluator progress")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Copy the results bundle to this path")
	cmd.Flags().StringVar(&judgeModel, "judge-model", "", "Model for the judge evaluator (default gpt-4o-mini)")
	cmd.Flags().StringVar(&agentKind, "agent", "", "Agent adapter to use (overrides spec agent type)")

	return cmd
}

func printSummary(cmd *cobra.Command, bundle *models.ResultsBundle) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "\nRun %s (%s)\n", bundle.RunID, bundle.SpecName)
	fmt.Fprintf(out, "Agent: %s (%s)\n\n", bundle.Agent.Agent, bundle.Agent.Status)

	for _, r := range bundle.Results {
		fmt.Fprintf(out, "  %-30s %-8s %6dms", r.EvaluatorName, r.Status, r.DurationMs)
		if r.Message != "" {
			fmt.Fprintf(out, "  %s", r.Message)
		} else if r.ErrorMsg != "" {
			fmt.Fprintf(out, "  %s", r.ErrorMsg)
		}
		fmt.Fprintln(out)
	}

	s := bundle.Summary
	fmt.Fprintf(out, "\n%d evaluators: %d passed, %d failed, %d skipped\n", s.Total, s.Passed, s.Failed, s.Skipped)
	fmt.Fprintf(out, "Overall: %s\n", s.OverallStatus)
}

// saveBundle writes the bundle to an arbitrary path. The workspace copy
// may already be gone when keep_workspace is off, so marshal again.
func saveBundle(bundle *models.ResultsBundle, path string) error {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
