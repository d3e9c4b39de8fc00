// Package results merges evaluator outcomes into a summary verdict and
// persists the durable results bundle.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evalcraft/evalcraft/internal/models"
)

// BundleFileName is the well-known artifacts path other tooling consumes.
const BundleFileName = "results.json"

// Summarize counts statuses and derives the overall verdict: failed if any
// result failed; partial if none failed but at least one was skipped;
// passed otherwise.
func Summarize(results []models.EvaluationResult) models.Summary {
	s := models.Summary{Total: len(results)}

	for _, r := range results {
		switch r.Status {
		case models.StatusPassed:
			s.Passed++
		case models.StatusFailed:
			s.Failed++
		case models.StatusSkipped:
			s.Skipped++
		}
	}

	switch {
	case s.Failed > 0:
		s.OverallStatus = models.OverallFailed
	case s.Skipped > 0:
		s.OverallStatus = models.OverallPartial
	default:
		s.OverallStatus = models.OverallPassed
	}

	return s
}

// Aggregate assembles the complete results bundle. Results keep their
// configured order.
func Aggregate(ws models.WorkspaceInfo, specName string, agent models.AgentOutcome, results []models.EvaluationResult) *models.ResultsBundle {
	return &models.ResultsBundle{
		RunID:     ws.RunID,
		SpecName:  specName,
		Timestamp: time.Now().UTC(),
		Workspace: ws,
		Agent:     agent,
		Results:   results,
		Summary:   Summarize(results),
	}
}

// Write persists the bundle to the artifacts directory and returns the
// written path.
func Write(bundle *models.ResultsBundle, artifactsDir string) (string, error) {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding results bundle: %w", err)
	}

	path := filepath.Join(artifactsDir, BundleFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing results bundle: %w", err)
	}

	return path, nil
}

// ArtifactPaths collects every artifact path recorded by individual
// evaluators, in result order.
func ArtifactPaths(results []models.EvaluationResult) []string {
	var paths []string
	for _, r := range results {
		paths = append(paths, r.Artifacts...)
	}
	return paths
}

// ExitCode maps an overall status to the process exit status.
func ExitCode(status models.OverallStatus) int {
	switch status {
	case models.OverallPassed:
		return 0
	case models.OverallFailed:
		return 1
	case models.OverallPartial:
		return 2
	default:
		return 3
	}
}
