// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/klocfix/klocfix/internal/core/models"
	"github.com/klocfix/klocfix/internal/engine"
	"github.com/klocfix/klocfix/internal/testutil"
)

const samplePatch = `diff --git a/input.c b/input.c
index 83db48f..bf269f4 100644
--- a/input.c
+++ b/input.c
@@ -1,3 +1,3 @@
 int main(void) {
-  return 1;
+  return 0;
 }
`

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.c")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readSource(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestApplyAdvisor(t *testing.T) {
	t.Run("SuggestionLeavesFileUntouched", func(t *testing.T) {
		original := "int main(void) {\n  return 1;\n}\n"
		path := writeSource(t, original)

		fixer := &testutil.MockFixOracle{}
		fixer.On("ProposeFix", mock.Anything, models.ModeAdvisor, "FNH.MIGHT", "guidance", path, original).
			Return(samplePatch, nil)
		tracker := &testutil.MockTracker{}

		applier := engine.NewApplier(fixer, tracker, nil)
		result := applier.Apply(context.Background(), engine.Request{
			Mode: models.ModeAdvisor, Path: path, RuleID: "FNH.MIGHT", RuleText: "guidance", Content: original,
		})

		assert.Equal(t, models.OutcomeApplied, result.Outcome)
		assert.Contains(t, result.Patch, "return 0;")
		assert.Equal(t, original, result.Content)
		// the file on disk is verified unchanged and the tracker never ran
		assert.Equal(t, original, readSource(t, path))
		tracker.AssertNotCalled(t, "Snapshot", mock.Anything)
		tracker.AssertNotCalled(t, "DiffSince", mock.Anything, mock.Anything)
	})

	t.Run("EmptySuggestionIsNoChange", func(t *testing.T) {
		fixer := &testutil.MockFixOracle{}
		fixer.On("ProposeFix", mock.Anything, models.ModeAdvisor, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("  \n", nil)

		applier := engine.NewApplier(fixer, &testutil.MockTracker{}, nil)
		result := applier.Apply(context.Background(), engine.Request{Mode: models.ModeAdvisor, Path: "a.c", Content: "x"})

		assert.Equal(t, models.OutcomeNoChange, result.Outcome)
		assert.Empty(t, result.Patch)
	})
}

func TestApplyReplacement(t *testing.T) {
	original := "int main(void) {\n  return 1;\n}\n"
	fixed := "int main(void) {\n  return 0;\n}\n"

	t.Run("AppliedWhenOracleReturnsNewContent", func(t *testing.T) {
		path := writeSource(t, original)

		fixer := &testutil.MockFixOracle{}
		fixer.On("ProposeFix", mock.Anything, models.ModeStrict, "FNH.MIGHT", "guidance", path, original).
			Return("Here you go:\n```c\n"+fixed+"```", nil)

		tracker := &testutil.MockTracker{}
		tracker.On("Snapshot", mock.Anything).Return("abc123", nil)
		tracker.On("DiffSince", mock.Anything, "abc123").Return(samplePatch, []string{"input.c"}, nil)
		tracker.On("Commit", mock.Anything, mock.Anything).Return(nil)

		applier := engine.NewApplier(fixer, tracker, nil)
		result := applier.Apply(context.Background(), engine.Request{
			Mode: models.ModeStrict, Path: path, RuleID: "FNH.MIGHT", RuleText: "guidance", Content: original,
		})

		assert.Equal(t, models.OutcomeApplied, result.Outcome)
		assert.Equal(t, fixed, result.Content)
		assert.Equal(t, fixed, readSource(t, path))
		assert.Equal(t, samplePatch, result.Patch)
		assert.Equal(t, []string{"input.c"}, result.ChangedFiles)
		assert.Equal(t, "1 file(s) changed, 1 patch hunk(s)", result.Summary)
		// the applied edit becomes the new baseline for the next attempt
		tracker.AssertCalled(t, "Commit", mock.Anything, "apply FNH.MIGHT to input.c")
	})

	t.Run("NoChangeNeverAdvancesBaseline", func(t *testing.T) {
		path := writeSource(t, original)

		fixer := &testutil.MockFixOracle{}
		fixer.On("ProposeFix", mock.Anything, models.ModeStrict, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("```c\n"+original+"```", nil)

		tracker := &testutil.MockTracker{}
		tracker.On("Snapshot", mock.Anything).Return("abc123", nil)

		applier := engine.NewApplier(fixer, tracker, nil)
		result := applier.Apply(context.Background(), engine.Request{
			Mode: models.ModeStrict, Path: path, RuleID: "X.Y", RuleText: "t", Content: original,
		})

		assert.Equal(t, models.OutcomeNoChange, result.Outcome)
		tracker.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything)
	})

	t.Run("CommitFailureIsFailedOutcome", func(t *testing.T) {
		path := writeSource(t, original)

		fixer := &testutil.MockFixOracle{}
		fixer.On("ProposeFix", mock.Anything, models.ModeStrict, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("```c\n"+fixed+"```", nil)

		tracker := &testutil.MockTracker{}
		tracker.On("Snapshot", mock.Anything).Return("abc123", nil)
		tracker.On("DiffSince", mock.Anything, "abc123").Return(samplePatch, []string{"input.c"}, nil)
		tracker.On("Commit", mock.Anything, mock.Anything).Return(fmt.Errorf("git commit failed: index locked"))

		applier := engine.NewApplier(fixer, tracker, nil)
		result := applier.Apply(context.Background(), engine.Request{
			Mode: models.ModeStrict, Path: path, RuleID: "X.Y", RuleText: "t", Content: original,
		})

		assert.Equal(t, models.OutcomeFailed, result.Outcome)
		assert.Contains(t, result.Err, "baseline advance failed")
	})

	t.Run("IdenticalContentIsNoChange", func(t *testing.T) {
		path := writeSource(t, original)

		fixer := &testutil.MockFixOracle{}
		fixer.On("ProposeFix", mock.Anything, models.ModeStrict, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("```c\n"+original+"```", nil)

		tracker := &testutil.MockTracker{}
		tracker.On("Snapshot", mock.Anything).Return("abc123", nil)

		applier := engine.NewApplier(fixer, tracker, nil)

		// applying the same no-op twice yields no_change twice and leaves
		// the content bit-identical
		for i := 0; i < 2; i++ {
			result := applier.Apply(context.Background(), engine.Request{
				Mode: models.ModeStrict, Path: path, RuleID: "X.Y", RuleText: "t", Content: original,
			})
			assert.Equal(t, models.OutcomeNoChange, result.Outcome)
			assert.Empty(t, result.Patch)
			assert.Equal(t, original, result.Content)
		}
		assert.Equal(t, original, readSource(t, path))
		tracker.AssertNotCalled(t, "DiffSince", mock.Anything, mock.Anything)
	})

	t.Run("OracleErrorIsFailedOutcome", func(t *testing.T) {
		path := writeSource(t, original)

		fixer := &testutil.MockFixOracle{}
		fixer.On("ProposeFix", mock.Anything, models.ModeStrict, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", fmt.Errorf("oracle call failed: timeout"))

		tracker := &testutil.MockTracker{}
		tracker.On("Snapshot", mock.Anything).Return("abc123", nil)

		applier := engine.NewApplier(fixer, tracker, nil)
		result := applier.Apply(context.Background(), engine.Request{
			Mode: models.ModeStrict, Path: path, RuleID: "X.Y", RuleText: "t", Content: original,
		})

		assert.Equal(t, models.OutcomeFailed, result.Outcome)
		assert.Contains(t, result.Err, "timeout")
		assert.Equal(t, original, result.Content)
	})

	t.Run("MissingFenceIsFailedOutcome", func(t *testing.T) {
		path := writeSource(t, original)

		fixer := &testutil.MockFixOracle{}
		fixer.On("ProposeFix", mock.Anything, models.ModeStrict, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("I cannot fix this file.", nil)

		tracker := &testutil.MockTracker{}
		tracker.On("Snapshot", mock.Anything).Return("abc123", nil)

		applier := engine.NewApplier(fixer, tracker, nil)
		result := applier.Apply(context.Background(), engine.Request{
			Mode: models.ModeStrict, Path: path, RuleID: "X.Y", RuleText: "t", Content: original,
		})

		assert.Equal(t, models.OutcomeFailed, result.Outcome)
		assert.Contains(t, result.Err, "fenced code block")
		assert.Equal(t, original, readSource(t, path))
	})
}

// commitTracker mimics commit/diff sequencing over one file: DiffSince
// reports line changes against the last committed baseline, Commit makes
// the current file content the new baseline.
type commitTracker struct {
	path     string
	baseline string
	commits  int
}

func (f *commitTracker) Snapshot(ctx context.Context) (string, error) {
	return fmt.Sprintf("rev%d", f.commits), nil
}

func (f *commitTracker) DiffSince(ctx context.Context, ref string) (string, []string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", nil, err
	}
	current := string(data)
	if current == f.baseline {
		return "", nil, nil
	}

	var patch strings.Builder
	baseLines := strings.Split(f.baseline, "\n")
	currLines := strings.Split(current, "\n")
	for i := 0; i < len(baseLines) || i < len(currLines); i++ {
		var from, to string
		if i < len(baseLines) {
			from = baseLines[i]
		}
		if i < len(currLines) {
			to = currLines[i]
		}
		if from != to {
			fmt.Fprintf(&patch, "-%s\n+%s\n", from, to)
		}
	}
	return patch.String(), []string{filepath.Base(f.path)}, nil
}

func (f *commitTracker) Commit(ctx context.Context, message string) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	f.baseline = string(data)
	f.commits++
	return nil
}

func TestSequentialAttemptsProduceDisjointPatches(t *testing.T) {
	v0 := "int a = 1;\nint b = 1;\n"
	v1 := "int a = 2;\nint b = 1;\n"
	v2 := "int a = 2;\nint b = 2;\n"
	path := writeSource(t, v0)

	fixer := &testutil.MockFixOracle{}
	fixer.On("ProposeFix", mock.Anything, models.ModeStrict, "AAA.ONE", mock.Anything, mock.Anything, mock.Anything).
		Return("```c\n"+v1+"```", nil)
	fixer.On("ProposeFix", mock.Anything, models.ModeStrict, "BBB.TWO", mock.Anything, mock.Anything, mock.Anything).
		Return("```c\n"+v2+"```", nil)

	tracker := &commitTracker{path: path, baseline: v0}
	applier := engine.NewApplier(fixer, tracker, nil)

	first := applier.Apply(context.Background(), engine.Request{
		Mode: models.ModeStrict, Path: path, RuleID: "AAA.ONE", RuleText: "t", Content: v0,
	})
	second := applier.Apply(context.Background(), engine.Request{
		Mode: models.ModeStrict, Path: path, RuleID: "BBB.TWO", RuleText: "t", Content: first.Content,
	})

	require.Equal(t, models.OutcomeApplied, first.Outcome)
	require.Equal(t, models.OutcomeApplied, second.Outcome)

	// each attempt's patch covers only its own change
	assert.Contains(t, first.Patch, "+int a = 2;")
	assert.NotContains(t, first.Patch, "+int b = 2;")
	assert.Contains(t, second.Patch, "+int b = 2;")
	assert.NotContains(t, second.Patch, "+int a = 2;")
	assert.NotContains(t, second.Patch, "-int a = 1;")

	// the threaded content ends at the fully fixed source
	assert.Equal(t, v2, second.Content)
	assert.Equal(t, v2, readSource(t, path))
	assert.Equal(t, 2, tracker.commits)
}

func TestApplyWithTool(t *testing.T) {
	original := "int main(void) {\n  return 1;\n}\n"
	fixed := "int main(void) {\n  return 0;\n}\n"

	t.Run("ToolEditReportedThroughTracker", func(t *testing.T) {
		path := writeSource(t, original)

		tool := &testutil.MockTool{}
		tool.On("Run", mock.Anything, path, mock.MatchedBy(func(msg string) bool {
			return len(msg) > 0
		})).Run(func(args mock.Arguments) {
			require.NoError(t, os.WriteFile(path, []byte(fixed), 0644))
		}).Return(nil)

		tracker := &testutil.MockTracker{}
		tracker.On("Snapshot", mock.Anything).Return("abc123", nil)
		tracker.On("DiffSince", mock.Anything, "abc123").Return(samplePatch, []string{"input.c"}, nil)
		tracker.On("Commit", mock.Anything, mock.Anything).Return(nil)

		applier := engine.NewApplier(&testutil.MockFixOracle{}, tracker, tool)
		result := applier.Apply(context.Background(), engine.Request{
			Mode: models.ModeStrict, Path: path, RuleID: "FNH.MIGHT", RuleText: "guidance", Content: original,
		})

		assert.Equal(t, models.OutcomeApplied, result.Outcome)
		assert.Equal(t, fixed, result.Content)
		assert.Equal(t, samplePatch, result.Patch)
		tracker.AssertCalled(t, "Commit", mock.Anything, "apply FNH.MIGHT to input.c")
	})

	t.Run("ToolNoEditIsNoChange", func(t *testing.T) {
		path := writeSource(t, original)

		tool := &testutil.MockTool{}
		tool.On("Run", mock.Anything, path, mock.Anything).Return(nil)

		tracker := &testutil.MockTracker{}
		tracker.On("Snapshot", mock.Anything).Return("abc123", nil)
		tracker.On("DiffSince", mock.Anything, "abc123").Return("", nil, nil)

		applier := engine.NewApplier(&testutil.MockFixOracle{}, tracker, tool)
		result := applier.Apply(context.Background(), engine.Request{
			Mode: models.ModeStrict, Path: path, RuleID: "X.Y", RuleText: "t", Content: original,
		})

		assert.Equal(t, models.OutcomeNoChange, result.Outcome)
		assert.Empty(t, result.Patch)
	})

	t.Run("ToolFailureIsFailedOutcome", func(t *testing.T) {
		path := writeSource(t, original)

		tool := &testutil.MockTool{}
		tool.On("Run", mock.Anything, path, mock.Anything).Return(fmt.Errorf("tool execution failed: exit status 2"))

		tracker := &testutil.MockTracker{}
		tracker.On("Snapshot", mock.Anything).Return("abc123", nil)

		applier := engine.NewApplier(&testutil.MockFixOracle{}, tracker, tool)
		result := applier.Apply(context.Background(), engine.Request{
			Mode: models.ModeStrict, Path: path, RuleID: "X.Y", RuleText: "t", Content: original,
		})

		assert.Equal(t, models.OutcomeFailed, result.Outcome)
		assert.Contains(t, result.Err, "exit status 2")
		assert.Equal(t, original, readSource(t, path))
	})

	t.Run("ImprovementModeExtendsInstruction", func(t *testing.T) {
		path := writeSource(t, original)

		var captured string
		tool := &testutil.MockTool{}
		tool.On("Run", mock.Anything, path, mock.Anything).Run(func(args mock.Arguments) {
			captured = args.String(2)
		}).Return(nil)

		tracker := &testutil.MockTracker{}
		tracker.On("Snapshot", mock.Anything).Return("abc123", nil)
		tracker.On("DiffSince", mock.Anything, "abc123").Return("", nil, nil)

		applier := engine.NewApplier(&testutil.MockFixOracle{}, tracker, tool)
		applier.Apply(context.Background(), engine.Request{
			Mode: models.ModeImprovement, Path: path, RuleID: "X.Y", RuleText: "t", Content: original,
		})

		assert.Contains(t, captured, "small improvements")
	})
}
