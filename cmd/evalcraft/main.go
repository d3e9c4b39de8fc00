package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/evalcraft/evalcraft/internal/models"
	"github.com/evalcraft/evalcraft/internal/results"
)

// Exit codes for the different failure modes
const (
	ExitPassed  = 0 // every evaluator passed
	ExitFailed  = 1 // at least one evaluator failed
	ExitPartial = 2 // no failures, but at least one evaluator skipped
	ExitSetup   = 3 // configuration or setup error, nothing evaluated
)

// VerdictError signals that the run completed but the overall verdict was
// not a clean pass.
type VerdictError struct {
	Overall models.OverallStatus
}

func (e *VerdictError) Error() string {
	return fmt.Sprintf("run finished with overall status %q", e.Overall)
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var verdictErr *VerdictError
		if errors.As(err, &verdictErr) {
			os.Exit(results.ExitCode(verdictErr.Overall))
		}

		// Everything else is a configuration/setup error
		os.Exit(ExitSetup)
	}
}
