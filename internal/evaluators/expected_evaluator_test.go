package evaluators

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalcraft/evalcraft/internal/models"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestExpectedEvaluatorRequiresThreshold(t *testing.T) {
	_, err := NewExpectedEvaluator("ref", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold is required")

	_, err = NewExpectedEvaluator("ref", map[string]any{"threshold": 1.5})
	require.Error(t, err)

	_, err = NewExpectedEvaluator("ref", map[string]any{"threshold": 0.8})
	require.NoError(t, err)
}

func TestExpectedEvaluatorPassesOnIdenticalTrees(t *testing.T) {
	files := map[string]string{"a.txt": "a\n", "b.txt": "b\n", "c.txt": "c\n"}
	ec := &Context{
		ModifiedDir:  writeTree(t, files),
		ExpectedDir:  writeTree(t, files),
		ArtifactsDir: t.TempDir(),
	}

	ev, err := NewExpectedEvaluator("ref", map[string]any{"threshold": 1.0})
	require.NoError(t, err)

	result, err := ev.Evaluate(context.Background(), ec)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPassed, result.Status)
	assert.Equal(t, 1.0, result.Metrics["aggregate_similarity"])
	assert.Equal(t, 3, result.Metrics["files_matched"])

	// The per-file breakdown is persisted as an artifact
	require.Len(t, result.Artifacts, 1)
	assert.FileExists(t, result.Artifacts[0])
}

func TestExpectedEvaluatorFailsBelowThreshold(t *testing.T) {
	// 1 of 3 expected files missing: aggregate (1+1+0)/3 ≈ 0.667 < 0.80
	ec := &Context{
		ModifiedDir: writeTree(t, map[string]string{"a.txt": "a\n", "b.txt": "b\n"}),
		ExpectedDir: writeTree(t, map[string]string{"a.txt": "a\n", "b.txt": "b\n", "c.txt": "c\n"}),
	}

	ev, err := NewExpectedEvaluator("ref", map[string]any{"threshold": 0.80})
	require.NoError(t, err)

	result, err := ev.Evaluate(context.Background(), ec)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, result.Status)
	require.Len(t, result.Assertions, 1)
	assert.False(t, result.Assertions[0].Passed)
	assert.InDelta(t, 0.6667, result.Assertions[0].Actual, 1e-4)
}

func TestExpectedEvaluatorReportWriteFailureIsNonFatal(t *testing.T) {
	files := map[string]string{"a.txt": "a\n"}

	// A regular file where the artifacts directory should be makes the
	// report write fail without touching the comparison itself.
	notADir := filepath.Join(t.TempDir(), "artifacts")
	require.NoError(t, os.WriteFile(notADir, []byte("occupied"), 0o644))

	ec := &Context{
		ModifiedDir:  writeTree(t, files),
		ExpectedDir:  writeTree(t, files),
		ArtifactsDir: notADir,
	}

	ev, err := NewExpectedEvaluator("ref", map[string]any{"threshold": 1.0})
	require.NoError(t, err)

	result, err := ev.Evaluate(context.Background(), ec)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPassed, result.Status)
	assert.Empty(t, result.Artifacts)
	assert.Contains(t, result.Message, "similarity report not written")
}

func TestExpectedEvaluatorPreconditions(t *testing.T) {
	ev, err := NewExpectedEvaluator("ref", map[string]any{"threshold": 0.5})
	require.NoError(t, err)
	assert.True(t, ev.RequiresExpected())

	ok, reason := ev.CheckPreconditions(&Context{ModifiedDir: t.TempDir()})
	assert.False(t, ok)
	assert.Contains(t, reason, "expected")

	ok, reason = ev.CheckPreconditions(&Context{
		ModifiedDir: t.TempDir(),
		ExpectedDir: filepath.Join(t.TempDir(), "missing"),
	})
	assert.False(t, ok)
	assert.Contains(t, reason, "not materialized")

	ok, _ = ev.CheckPreconditions(&Context{ModifiedDir: t.TempDir(), ExpectedDir: t.TempDir()})
	assert.True(t, ok)
}
