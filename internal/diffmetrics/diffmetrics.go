// Package diffmetrics computes change-scope metrics and a change-entropy
// score from a working tree's modifications.
package diffmetrics

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// FileChange holds per-file line counts for one changed file.
type FileChange struct {
	Path         string `json:"path"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// TotalChanges returns the file's combined added and removed line count.
func (fc FileChange) TotalChanges() int {
	return fc.LinesAdded + fc.LinesRemoved
}

// Stats aggregates the change set of a working tree.
type Stats struct {
	FilesChanged int          `json:"files_changed"`
	LinesAdded   int          `json:"lines_added"`
	LinesRemoved int          `json:"lines_removed"`
	TotalChanges int          `json:"total_changes"`
	Files        []FileChange `json:"files"`
}

// Collect inspects the git working tree at dir and returns its change set,
// including untracked files (each counted as purely added lines).
func Collect(ctx context.Context, dir string) (*Stats, error) {
	out, err := gitOutput(ctx, dir, "diff", "HEAD", "--no-ext-diff", "--no-color")
	if err != nil {
		return nil, fmt.Errorf("collecting diff in %s: %w", dir, err)
	}

	stats, err := parseDiff(out)
	if err != nil {
		return nil, fmt.Errorf("parsing diff output: %w", err)
	}

	untracked, err := gitOutput(ctx, dir, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("listing untracked files in %s: %w", dir, err)
	}
	for _, rel := range splitLines(string(untracked)) {
		added, err := countLines(filepath.Join(dir, rel))
		if err != nil {
			return nil, fmt.Errorf("reading untracked file %s: %w", rel, err)
		}
		stats.Files = append(stats.Files, FileChange{Path: rel, LinesAdded: added})
	}

	sort.Slice(stats.Files, func(i, j int) bool { return stats.Files[i].Path < stats.Files[j].Path })

	for _, fc := range stats.Files {
		stats.LinesAdded += fc.LinesAdded
		stats.LinesRemoved += fc.LinesRemoved
	}
	stats.FilesChanged = len(stats.Files)
	stats.TotalChanges = stats.LinesAdded + stats.LinesRemoved

	return stats, nil
}

// ChangeEntropy measures how concentrated vs. distributed the change set is
// across files. Each changed file's share of total changes is treated as a
// probability; the Shannon entropy is normalized by log2(file count) so the
// result lands in [0,1]. Zero means all changes in one file; values near one
// mean changes spread evenly across all changed files.
func ChangeEntropy(stats *Stats) float64 {
	if stats == nil || stats.TotalChanges == 0 || len(stats.Files) == 0 {
		return 0.0
	}

	entropy := 0.0
	for _, fc := range stats.Files {
		p := float64(fc.TotalChanges()) / float64(stats.TotalChanges)
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}

	if len(stats.Files) > 1 {
		entropy /= math.Log2(float64(len(stats.Files)))
	}

	// Guard against float drift at the boundaries
	return math.Min(1.0, math.Max(0.0, entropy))
}

// parseDiff converts raw unified diff output into per-file line counts.
func parseDiff(raw []byte) (*Stats, error) {
	stats := &Stats{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return stats, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff(raw)
	if err != nil {
		return nil, err
	}

	for _, fd := range fileDiffs {
		st := fd.Stat()
		stats.Files = append(stats.Files, FileChange{
			Path:         diffPath(fd),
			LinesAdded:   int(st.Added + st.Changed),
			LinesRemoved: int(st.Deleted + st.Changed),
		})
	}

	return stats, nil
}

// diffPath picks the post-image name, falling back to the pre-image for
// deletions. Only the prefix git emits for the chosen side is stripped,
// so repo paths that themselves start with a/ or b/ survive intact.
func diffPath(fd *diff.FileDiff) string {
	if name := fd.NewName; name != "" && name != "/dev/null" {
		return strings.TrimPrefix(name, "b/")
	}
	return strings.TrimPrefix(fd.OrigName, "a/")
}

func gitOutput(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n, nil
}
