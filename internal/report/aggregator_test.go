// SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klocfix/klocfix/internal/core/models"
	"github.com/klocfix/klocfix/internal/core/schema"
)

func TestRecordFile(t *testing.T) {
	t.Run("WritesMirroredArtifacts", func(t *testing.T) {
		baseDir := t.TempDir()
		outputDir := filepath.Join(baseDir, "outputs")

		agg := NewAggregator(outputDir, baseDir, models.ModeStrict)
		require.NoError(t, agg.EnsureDirs())

		result := models.FileResult{
			File: filepath.Join(baseDir, "src", "input.c"),
			Rules: []models.RemediationAttempt{
				{Rule: "FNH.MIGHT", Status: models.OutcomeApplied, Patch: "patch-text"},
			},
		}
		agg.RecordFile(result, "fixed content\n")

		// modified snapshot mirrors the relative tree
		modified, err := os.ReadFile(filepath.Join(outputDir, ModifiedDirName, "src", "input.c"))
		require.NoError(t, err)
		assert.Equal(t, "fixed content\n", string(modified))

		patch, err := os.ReadFile(filepath.Join(outputDir, PatchesDirName, "src", "input.c.patch"))
		require.NoError(t, err)
		assert.Equal(t, "patch-text", string(patch))

		reportData, err := os.ReadFile(filepath.Join(outputDir, ReportsDirName, "src", "input.c.json"))
		require.NoError(t, err)
		var fileReport models.FileResult
		require.NoError(t, json.Unmarshal(reportData, &fileReport))
		assert.Equal(t, "patch-text", fileReport.FilePatch)
		require.Len(t, fileReport.Rules, 1)
		assert.Equal(t, models.OutcomeApplied, fileReport.Rules[0].Status)
	})

	t.Run("RerunsOverwriteArtifacts", func(t *testing.T) {
		baseDir := t.TempDir()
		outputDir := filepath.Join(baseDir, "outputs")
		agg := NewAggregator(outputDir, baseDir, models.ModeStrict)
		require.NoError(t, agg.EnsureDirs())

		result := models.FileResult{File: filepath.Join(baseDir, "a.c")}
		agg.RecordFile(result, "first\n")
		agg.RecordFile(result, "second\n")

		entries, err := os.ReadDir(filepath.Join(outputDir, ModifiedDirName))
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		content, err := os.ReadFile(filepath.Join(outputDir, ModifiedDirName, "a.c"))
		require.NoError(t, err)
		assert.Equal(t, "second\n", string(content))
	})

	t.Run("AdvisorModeWritesSuggestionsOnly", func(t *testing.T) {
		baseDir := t.TempDir()
		outputDir := filepath.Join(baseDir, "outputs")
		agg := NewAggregator(outputDir, baseDir, models.ModeAdvisor)
		require.NoError(t, agg.EnsureDirs())

		result := models.FileResult{
			File: filepath.Join(baseDir, "a.c"),
			Rules: []models.RemediationAttempt{
				{Rule: "X.Y", Status: models.OutcomeApplied, Patch: "suggested diff"},
			},
		}
		agg.RecordFile(result, "untouched\n")

		advice, err := os.ReadFile(filepath.Join(outputDir, AdvisoryDirName, "a.c.advice.txt"))
		require.NoError(t, err)
		assert.Contains(t, string(advice), "=== X.Y ===")
		assert.Contains(t, string(advice), "suggested diff")

		// no modified snapshot in advisor mode
		_, err = os.Stat(filepath.Join(outputDir, ModifiedDirName, "a.c"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestFinalize(t *testing.T) {
	baseDir := t.TempDir()
	outputDir := filepath.Join(baseDir, "outputs")
	agg := NewAggregator(outputDir, baseDir, models.ModeStrict)
	require.NoError(t, agg.EnsureDirs())

	agg.RecordFile(models.FileResult{
		File:  filepath.Join(baseDir, "a.c"),
		Rules: []models.RemediationAttempt{{Rule: "A.A", Status: models.OutcomeApplied, Patch: "patch-a"}},
	}, "a\n")
	agg.RecordFile(models.FileResult{
		File:  filepath.Join(baseDir, "b.c"),
		Rules: []models.RemediationAttempt{{Rule: "B.B", Status: models.OutcomeNoChange}},
	}, "b\n")

	report := agg.Finalize()
	assert.Equal(t, 2, report.TotalFiles)
	assert.NotEmpty(t, report.GeneratedAt)

	// run patch concatenates only non-empty per-file patches
	fullPatch, err := os.ReadFile(filepath.Join(outputDir, FullPatchName))
	require.NoError(t, err)
	assert.Equal(t, "patch-a", string(fullPatch))

	// run report is valid against the report schema
	fullReport, err := os.ReadFile(filepath.Join(outputDir, FullReportName))
	require.NoError(t, err)
	assert.NoError(t, schema.ValidateReport(fullReport))
}
