// SPDX-License-Identifier: Apache-2.0

package gitx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Runner executes git commands. Injectable so tracker logic can be tested
// without a git binary or a real repository.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (stdout, stderr string, exitCode int, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
		err = nil
	}

	return stdout.String(), stderr.String(), exitCode, err
}

// Tracker captures before/after state of a version-tracked working tree.
// The external remediation tool may or may not commit its own changes; the
// tracker re-derives state by diffing against whichever baseline is correct,
// so callers never need to know which happened.
type Tracker struct {
	dir string
	run Runner
}

// NewTracker creates a tracker over the given working directory
func NewTracker(dir string) *Tracker {
	return &Tracker{dir: dir, run: execRunner{}}
}

// NewTrackerWithRunner creates a tracker with a custom command runner
func NewTrackerWithRunner(dir string, run Runner) *Tracker {
	return &Tracker{dir: dir, run: run}
}

// EnsureRepo bootstraps a git repository recording the current tree as the
// baseline if none exists. Idempotent: an existing repository is left alone.
func (t *Tracker) EnsureRepo(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(t.dir, ".git")); err == nil {
		return nil
	}

	fmt.Println("[warn] no .git found; initializing repository for patch capture")

	steps := [][]string{
		{"init"},
		{"add", "."},
		{"commit", "-m", "baseline snapshot"},
	}
	for _, args := range steps {
		_, stderr, code, err := t.run.Run(ctx, t.dir, args...)
		if err != nil {
			return fmt.Errorf("git %s failed: %w", args[0], err)
		}
		if code != 0 {
			return fmt.Errorf("git %s failed: %s", args[0], strings.TrimSpace(stderr))
		}
	}

	return nil
}

// Commit records the current working tree as the new baseline so the next
// attempt's diff covers only its own change. A clean tree (the external
// tool already committed on its own) is not an error.
func (t *Tracker) Commit(ctx context.Context, message string) error {
	_, stderr, code, err := t.run.Run(ctx, t.dir, "add", "-A")
	if err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("git add failed: %s", strings.TrimSpace(stderr))
	}

	stdout, stderr, code, err := t.run.Run(ctx, t.dir, "commit", "-m", message)
	if err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	if code != 0 {
		if strings.Contains(stdout, "nothing to commit") || strings.Contains(stderr, "nothing to commit") {
			return nil
		}
		return fmt.Errorf("git commit failed: %s", strings.TrimSpace(stderr))
	}

	return nil
}

// Snapshot returns the current baseline reference (HEAD sha)
func (t *Tracker) Snapshot(ctx context.Context) (string, error) {
	stdout, stderr, code, err := t.run.Run(ctx, t.dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	if code != 0 {
		return "", fmt.Errorf("git rev-parse failed: %s", strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}

// DiffSince computes the unified diff and changed file list since the given
// snapshot. If the external tool committed (HEAD advanced) the diff spans
// ref..HEAD; otherwise it is the working-tree diff against ref.
func (t *Tracker) DiffSince(ctx context.Context, ref string) (string, []string, error) {
	head, err := t.Snapshot(ctx)
	if err != nil {
		return "", nil, err
	}

	target := ref
	if head != ref {
		target = ref + ".." + head
	}

	stdout, stderr, code, err := t.run.Run(ctx, t.dir, "diff", target)
	if err != nil {
		return "", nil, fmt.Errorf("git diff failed: %w", err)
	}
	// git diff exits 1 when differences exist; both 0 and 1 are success
	if code != 0 && code != 1 {
		return "", nil, fmt.Errorf("git diff failed: %s", strings.TrimSpace(stderr))
	}

	return stdout, ChangedFiles(stdout), nil
}

// ChangedFiles extracts the touched file paths from a unified diff
func ChangedFiles(patch string) []string {
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return nil
	}

	var files []string
	for _, fd := range fileDiffs {
		name := strings.TrimPrefix(fd.NewName, "b/")
		if fd.NewName == "/dev/null" {
			name = strings.TrimPrefix(fd.OrigName, "a/")
		}
		if name != "" {
			files = append(files, name)
		}
	}
	return files
}

// PatchStats returns the number of files and hunks in a unified diff
func PatchStats(patch string) (files, hunks int) {
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return 0, 0
	}
	for _, fd := range fileDiffs {
		files++
		hunks += len(fd.Hunks)
	}
	return files, hunks
}
