package diffmetrics

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/foo.go b/foo.go
index 83db48f..bf269f4 100644
--- a/foo.go
+++ b/foo.go
@@ -1,3 +1,4 @@
 line1
-old
+new
+added
 line3
diff --git a/bar.go b/bar.go
index 83db48f..bf269f4 100644
--- a/bar.go
+++ b/bar.go
@@ -1,2 +1,2 @@
 keep
-gone
+here
`

func TestParseDiff(t *testing.T) {
	stats, err := parseDiff([]byte(sampleDiff))
	require.NoError(t, err)
	require.Len(t, stats.Files, 2)

	byPath := map[string]FileChange{}
	for _, fc := range stats.Files {
		byPath[fc.Path] = fc
	}

	assert.Equal(t, 2, byPath["foo.go"].LinesAdded)
	assert.Equal(t, 1, byPath["foo.go"].LinesRemoved)
	assert.Equal(t, 1, byPath["bar.go"].LinesAdded)
	assert.Equal(t, 1, byPath["bar.go"].LinesRemoved)
}

func TestParseDiffKeepsRealDirectoryPrefixes(t *testing.T) {
	// A repo directory literally named a/ must not lose its prefix: git
	// emits a/a/main.go and b/a/main.go for it.
	const nestedDiff = `diff --git a/a/main.go b/a/main.go
index 83db48f..bf269f4 100644
--- a/a/main.go
+++ b/a/main.go
@@ -1,2 +1,2 @@
 keep
-gone
+here
diff --git a/b/util.go b/b/util.go
index 83db48f..bf269f4 100644
--- a/b/util.go
+++ b/b/util.go
@@ -1,1 +1,2 @@
 keep
+added
`

	stats, err := parseDiff([]byte(nestedDiff))
	require.NoError(t, err)
	require.Len(t, stats.Files, 2)

	paths := []string{stats.Files[0].Path, stats.Files[1].Path}
	assert.Contains(t, paths, "a/main.go")
	assert.Contains(t, paths, "b/util.go")
}

func TestParseDiffEmpty(t *testing.T) {
	stats, err := parseDiff([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, stats.Files)
}

func TestChangeEntropySingleFile(t *testing.T) {
	// One file changed (+10/-2): all changes concentrated, entropy 0
	stats := &Stats{
		TotalChanges: 12,
		Files:        []FileChange{{Path: "a.go", LinesAdded: 10, LinesRemoved: 2}},
	}
	assert.Equal(t, 0.0, ChangeEntropy(stats))
}

func TestChangeEntropyEvenSpread(t *testing.T) {
	// Four files with identical change counts: maximal spread, entropy 1
	files := []FileChange{
		{Path: "a.go", LinesAdded: 5},
		{Path: "b.go", LinesAdded: 5},
		{Path: "c.go", LinesAdded: 5},
		{Path: "d.go", LinesAdded: 5},
	}
	stats := &Stats{TotalChanges: 20, Files: files}
	assert.InDelta(t, 1.0, ChangeEntropy(stats), 1e-9)
}

func TestChangeEntropyBounds(t *testing.T) {
	tests := []struct {
		name  string
		files []FileChange
	}{
		{"skewed", []FileChange{{Path: "a", LinesAdded: 100}, {Path: "b", LinesAdded: 1}}},
		{"three way", []FileChange{{Path: "a", LinesAdded: 7}, {Path: "b", LinesRemoved: 3}, {Path: "c", LinesAdded: 1}}},
		{"two even", []FileChange{{Path: "a", LinesAdded: 4}, {Path: "b", LinesRemoved: 4}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			total := 0
			for _, fc := range tc.files {
				total += fc.TotalChanges()
			}
			e := ChangeEntropy(&Stats{TotalChanges: total, Files: tc.files})
			assert.GreaterOrEqual(t, e, 0.0)
			assert.LessOrEqual(t, e, 1.0)
		})
	}
}

func TestChangeEntropyZeroChanges(t *testing.T) {
	assert.Equal(t, 0.0, ChangeEntropy(&Stats{}))
	assert.Equal(t, 0.0, ChangeEntropy(nil))
}

func TestChangeEntropySkewedBelowEven(t *testing.T) {
	even := &Stats{TotalChanges: 10, Files: []FileChange{
		{Path: "a", LinesAdded: 5}, {Path: "b", LinesAdded: 5},
	}}
	skewed := &Stats{TotalChanges: 10, Files: []FileChange{
		{Path: "a", LinesAdded: 9}, {Path: "b", LinesAdded: 1},
	}}
	assert.Less(t, ChangeEntropy(skewed), ChangeEntropy(even))
}

func TestCollectAgainstGitRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("one\ntwo\nthree\n"), 0o644))
	git("init", "-q")
	git("add", ".")
	git("commit", "-q", "-m", "initial")

	// Modify a tracked file and add an untracked one
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("one\nTWO\nthree\nfour\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("alpha\nbeta\n"), 0o644))

	stats, err := Collect(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesChanged)
	assert.Equal(t, stats.LinesAdded+stats.LinesRemoved, stats.TotalChanges)

	byPath := map[string]FileChange{}
	for _, fc := range stats.Files {
		byPath[fc.Path] = fc
	}
	assert.Equal(t, 2, byPath["new.txt"].LinesAdded)
	assert.Equal(t, 0, byPath["new.txt"].LinesRemoved)
	assert.Greater(t, byPath["tracked.txt"].LinesAdded, 0)
}

func TestCollectIsDeterministic(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	git("init", "-q")
	git("commit", "-q", "--allow-empty", "-m", "initial")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0o644))

	first, err := Collect(context.Background(), dir)
	require.NoError(t, err)
	second, err := Collect(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first.Files, 2)
	assert.Equal(t, "a.txt", first.Files[0].Path)
}

func TestCountLines(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	for _, tc := range []struct {
		content string
		want    int
	}{
		{"", 0},
		{"one\n", 1},
		{"one\ntwo", 2},
		{"one\ntwo\n", 2},
	} {
		p := write("f.txt", tc.content)
		n, err := countLines(p)
		require.NoError(t, err)
		assert.Equal(t, tc.want, n, "content %q", tc.content)
	}
}
