package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/evalcraft/evalcraft/internal/models"
)

// Materialize clones (or copies, for local paths) a repository state into
// targetDir and checks out the requested ref. Failures are SetupErrors.
func Materialize(ctx context.Context, ref models.RepoRef, targetDir string) error {
	if ref.URL == "" {
		return &SetupError{Op: "materialize", Err: fmt.Errorf("empty repository URL")}
	}

	if isLocalPath(ref.URL) {
		if err := copyTree(ref.URL, targetDir); err != nil {
			return &SetupError{Op: "copying " + ref.URL, Err: err}
		}
	} else {
		if err := runGit(ctx, "", "clone", ref.URL, targetDir); err != nil {
			return &SetupError{Op: "cloning " + ref.URL, Err: err}
		}
	}

	if ref.Ref != "" {
		if err := runGit(ctx, targetDir, "checkout", ref.Ref); err != nil {
			return &SetupError{Op: fmt.Sprintf("checking out %s", ref.Ref), Err: err}
		}
	}

	return nil
}

// MaterializePair materializes the modified tree and, when configured, the
// expected reference tree. The two materializations are independent and run
// in parallel.
func MaterializePair(ctx context.Context, ws *Workspace, modified models.RepoRef, expected *models.RepoRef) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return Materialize(ctx, modified, ws.ModifiedDir)
	})

	if expected != nil {
		g.Go(func() error {
			if err := os.MkdirAll(ws.ExpectedDir, 0o755); err != nil {
				return &SetupError{Op: "creating " + ws.ExpectedDir, Err: err}
			}
			return Materialize(ctx, *expected, ws.ExpectedDir)
		})
	}

	return g.Wait()
}

// isLocalPath distinguishes a local directory from a clone URL.
func isLocalPath(url string) bool {
	if strings.Contains(url, "://") || strings.HasPrefix(url, "git@") {
		return false
	}
	fi, err := os.Stat(url)
	return err == nil && fi.IsDir()
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}

// copyTree recursively copies src into dst, preserving file modes.
// Symlinks are skipped; an evaluation tree should not reach outside itself.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
