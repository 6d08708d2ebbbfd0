//go:build integration

// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klocfix/klocfix/internal/core/config"
	"github.com/klocfix/klocfix/internal/core/knowledge"
	"github.com/klocfix/klocfix/internal/core/models"
	"github.com/klocfix/klocfix/internal/pipeline"
	"github.com/klocfix/klocfix/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBasicWorkflow tests the klocfix workflow end-to-end. It needs git and
// sed on PATH; the fix tool is sed so no oracle credentials are required.
func TestBasicWorkflow(t *testing.T) {
	tempDir := t.TempDir()

	kbDir := filepath.Join(tempDir, "kb")
	require.NoError(t, os.MkdirAll(kbDir, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(kbDir, "MISRA.DEFINE.BADEXP.md"),
		[]byte("Macro expansion must be parenthesized.\n"), 0644))

	srcDir := filepath.Join(tempDir, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0755))
	source := "/* MISRA.DEFINE.BADEXP */\n#define SQUARE(x) x*x\nint main(void) { return SQUARE(2); }\n"
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "input.c"), []byte(source), 0644))

	// 1. Test configuration loading
	t.Run("ConfigurationLoad", func(t *testing.T) {
		cfg, err := config.LoadConfig(tempDir)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, config.DefaultModel, cfg.Model)
		assert.Equal(t, config.DefaultKnowledgeDir, cfg.KnowledgeDir)
		assert.Equal(t, config.DefaultOutputDir, cfg.OutputDir)
		assert.Equal(t, config.DefaultRuleLimit, cfg.RuleLimit)

		fmt.Printf("✓ Configuration loaded successfully\n")
	})

	// 2. Test knowledge base loading
	t.Run("KnowledgeLoad", func(t *testing.T) {
		store, err := knowledge.Load(kbDir)
		require.NoError(t, err)
		assert.Equal(t, 1, store.Len())
		assert.Equal(t, []string{"MISRA.DEFINE.BADEXP"}, store.IDs())

		fmt.Printf("✓ Knowledge base loaded successfully\n")
	})

	// 3. Test detection without an oracle
	t.Run("HeuristicScan", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.KnowledgeDir = kbDir

		results, err := pipeline.Scan(context.Background(), cfg, srcDir, false)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, []string{"MISRA.DEFINE.BADEXP"}, results[0].Rules)

		fmt.Printf("✓ Heuristic scan found the expected rule\n")
	})

	// 4. Test a full tool-based fix run
	t.Run("ToolBasedFix", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.KnowledgeDir = kbDir
		cfg.OutputDir = filepath.Join(tempDir, "outputs")
		cfg.FixTool = "sed"
		cfg.FixToolArgs = []string{"-i", "s/x\\*x/((x)*(x))/", "{{.File}}"}

		runReport, err := pipeline.Run(context.Background(), cfg, pipeline.Params{
			Target: srcDir,
			Mode:   models.ModeStrict,
		})
		require.NoError(t, err)
		require.Equal(t, 1, runReport.TotalFiles)
		require.Len(t, runReport.Results[0].Rules, 1)
		assert.Equal(t, models.OutcomeApplied, runReport.Results[0].Rules[0].Status)

		fixed, err := os.ReadFile(filepath.Join(srcDir, "input.c"))
		require.NoError(t, err)
		assert.Contains(t, string(fixed), "((x)*(x))")

		_, err = os.Stat(filepath.Join(cfg.OutputDir, report.FullReportName))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(cfg.OutputDir, report.FullPatchName))
		assert.NoError(t, err)

		fmt.Printf("✓ Tool-based fix applied and artifacts written\n")
	})
}

// TestSequentialRuleFixes drives two applied rules against one file through
// the real git tracker and checks that each per-rule patch covers only its
// own change.
func TestSequentialRuleFixes(t *testing.T) {
	tempDir := t.TempDir()

	kbDir := filepath.Join(tempDir, "kb")
	require.NoError(t, os.MkdirAll(kbDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(kbDir, "AAA.ONE.md"),
		[]byte("First assignment convention.\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(kbDir, "BBB.TWO.md"),
		[]byte("Second assignment convention.\n"), 0644))

	srcDir := filepath.Join(tempDir, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0755))
	source := "/* AAA.ONE BBB.TWO */\nint a = 1;\nint b = 1;\n"
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "seq.c"), []byte(source), 0644))

	// the tool edits per rule, keyed off the rule id in the instruction
	script := filepath.Join(tempDir, "fixtool.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
case "$1" in
  *AAA.ONE*) sed -i 's/int a = 1;/int a = 2;/' "$2" ;;
  *BBB.TWO*) sed -i 's/int b = 1;/int b = 2;/' "$2" ;;
esac
`), 0755))

	cfg := config.NewDefaultConfig()
	cfg.KnowledgeDir = kbDir
	cfg.OutputDir = filepath.Join(tempDir, "outputs")
	cfg.FixTool = script
	cfg.FixToolArgs = []string{"{{.Message}}", "{{.File}}"}

	runReport, err := pipeline.Run(context.Background(), cfg, pipeline.Params{
		Target: srcDir,
		Mode:   models.ModeStrict,
	})
	require.NoError(t, err)
	require.Equal(t, 1, runReport.TotalFiles)
	attempts := runReport.Results[0].Rules
	require.Len(t, attempts, 2)

	require.Equal(t, models.OutcomeApplied, attempts[0].Status)
	require.Equal(t, models.OutcomeApplied, attempts[1].Status)

	// each patch carries exactly its own rule's change
	assert.Contains(t, attempts[0].Patch, "+int a = 2;")
	assert.NotContains(t, attempts[0].Patch, "+int b = 2;")
	assert.Contains(t, attempts[1].Patch, "+int b = 2;")
	assert.NotContains(t, attempts[1].Patch, "+int a = 2;")
	assert.NotContains(t, attempts[1].Patch, "-int a = 1;")

	fixed, err := os.ReadFile(filepath.Join(srcDir, "seq.c"))
	require.NoError(t, err)
	assert.Equal(t, "/* AAA.ONE BBB.TWO */\nint a = 2;\nint b = 2;\n", string(fixed))

	fmt.Printf("✓ Sequential rule fixes produced disjoint patches\n")
}
