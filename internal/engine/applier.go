// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klocfix/klocfix/internal/core/models"
	"github.com/klocfix/klocfix/internal/gitx"
	"github.com/klocfix/klocfix/internal/oracle"
)

// FixOracle proposes remediations for a single rule in a single file
type FixOracle interface {
	ProposeFix(ctx context.Context, mode models.Mode, ruleID, ruleText, filename, code string) (string, error)
}

// ChangeTracker captures before/after state of the working tree. Commit
// advances the baseline so consecutive attempts produce disjoint patches.
type ChangeTracker interface {
	Snapshot(ctx context.Context) (string, error)
	DiffSince(ctx context.Context, ref string) (patch string, changedFiles []string, err error)
	Commit(ctx context.Context, message string) error
}

// ToolRunner invokes an external editing tool against one file with an
// instruction message. The tool edits the file in place; its changes are
// only observable through the change tracker.
type ToolRunner interface {
	Run(ctx context.Context, file, message string) error
}

// Request describes one remediation attempt
type Request struct {
	Mode     models.Mode
	Path     string
	RuleID   string
	RuleText string
	// Content is the current file content, threaded through the rule loop
	// by the orchestrator
	Content string
}

// Result is the outcome of one remediation attempt. Failures are carried
// in Err as text, never as a Go error, so one bad attempt cannot abort the
// surrounding loop.
type Result struct {
	Outcome       models.Outcome
	Content       string
	Patch         string
	ChangedFiles  []string
	Summary       string
	Err           string
}

// Applier produces remediation attempts. With a tool configured, strict and
// improvement fixes are delegated to the external tool; otherwise the
// oracle's full-file replacement is written directly.
type Applier struct {
	oracle  FixOracle
	tracker ChangeTracker
	tool    ToolRunner
}

// NewApplier creates an applier. tool may be nil to force the oracle
// replacement path.
func NewApplier(o FixOracle, tracker ChangeTracker, tool ToolRunner) *Applier {
	return &Applier{oracle: o, tracker: tracker, tool: tool}
}

// Apply runs one remediation attempt and classifies its outcome.
//
// Advisor mode is handled first and returns before any branch that could
// write to the filesystem; the no-mutation policy is structural, not a
// prompt-wording promise.
func (a *Applier) Apply(ctx context.Context, req Request) Result {
	if req.Mode == models.ModeAdvisor {
		return a.advise(ctx, req)
	}

	snapshot, err := a.tracker.Snapshot(ctx)
	if err != nil {
		return failure(req, fmt.Sprintf("snapshot failed: %v", err))
	}

	if a.tool != nil {
		return a.applyWithTool(ctx, req, snapshot)
	}
	return a.applyReplacement(ctx, req, snapshot)
}

// advise asks the oracle for a diff-shaped suggestion without touching the
// working tree
func (a *Applier) advise(ctx context.Context, req Request) Result {
	suggestion, err := a.oracle.ProposeFix(ctx, models.ModeAdvisor, req.RuleID, req.RuleText, req.Path, req.Content)
	if err != nil {
		return failure(req, err.Error())
	}

	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" {
		return Result{Outcome: models.OutcomeNoChange, Content: req.Content}
	}

	return Result{
		Outcome: models.OutcomeApplied,
		Content: req.Content,
		Patch:   suggestion,
		Summary: fmt.Sprintf("advisory suggestion for %s (not applied)", req.RuleID),
	}
}

// applyWithTool delegates the edit to the external tool and re-derives what
// happened from the tracker diff
func (a *Applier) applyWithTool(ctx context.Context, req Request, snapshot string) Result {
	message := buildToolMessage(req.Mode, req.RuleID, req.RuleText)
	if err := a.tool.Run(ctx, req.Path, message); err != nil {
		return failure(req, err.Error())
	}

	patch, changed, err := a.tracker.DiffSince(ctx, snapshot)
	if err != nil {
		return failure(req, fmt.Sprintf("diff capture failed: %v", err))
	}

	if patch == "" {
		return Result{Outcome: models.OutcomeNoChange, Content: req.Content}
	}

	content := req.Content
	if data, err := os.ReadFile(req.Path); err == nil {
		content = string(data)
	} else {
		fmt.Printf("[warn] could not re-read %s after tool run: %v\n", req.Path, err)
	}

	if err := a.advanceBaseline(ctx, req); err != nil {
		return failure(req, err.Error())
	}

	return Result{
		Outcome:      models.OutcomeApplied,
		Content:      content,
		Patch:        patch,
		ChangedFiles: changed,
		Summary:      patchSummary(patch),
	}
}

// applyReplacement asks the oracle for the full fixed source and writes it
// in place
func (a *Applier) applyReplacement(ctx context.Context, req Request, snapshot string) Result {
	reply, err := a.oracle.ProposeFix(ctx, req.Mode, req.RuleID, req.RuleText, req.Path, req.Content)
	if err != nil {
		return failure(req, err.Error())
	}

	replacement, ok := oracle.ExtractFencedBlock(reply)
	if !ok {
		return failure(req, "oracle reply carried no fenced code block")
	}
	replacement = normalizeReplacement(replacement, req.Content)

	if replacement == req.Content {
		return Result{Outcome: models.OutcomeNoChange, Content: req.Content}
	}

	if err := os.WriteFile(req.Path, []byte(replacement), 0644); err != nil {
		return failure(req, fmt.Sprintf("writing replacement failed: %v", err))
	}

	patch, changed, err := a.tracker.DiffSince(ctx, snapshot)
	if err != nil {
		return failure(req, fmt.Sprintf("diff capture failed: %v", err))
	}
	if patch == "" {
		return Result{Outcome: models.OutcomeNoChange, Content: replacement}
	}

	if err := a.advanceBaseline(ctx, req); err != nil {
		return failure(req, err.Error())
	}

	return Result{
		Outcome:      models.OutcomeApplied,
		Content:      replacement,
		Patch:        patch,
		ChangedFiles: changed,
		Summary:      patchSummary(patch),
	}
}

// advanceBaseline commits an applied attempt's edit so the next attempt
// diffs only against state that includes it. Without this, per-rule patches
// re-contain every earlier rule's change.
func (a *Applier) advanceBaseline(ctx context.Context, req Request) error {
	message := fmt.Sprintf("apply %s to %s", req.RuleID, filepath.Base(req.Path))
	if err := a.tracker.Commit(ctx, message); err != nil {
		return fmt.Errorf("baseline advance failed: %w", err)
	}
	return nil
}

func failure(req Request, errText string) Result {
	return Result{
		Outcome: models.OutcomeFailed,
		Content: req.Content,
		Err:     errText,
	}
}

// normalizeReplacement keeps the replacement's trailing-newline convention
// in line with the original so cosmetic fence stripping never shows up as a
// content change
func normalizeReplacement(replacement, original string) string {
	if strings.HasSuffix(original, "\n") && !strings.HasSuffix(replacement, "\n") {
		return replacement + "\n"
	}
	return replacement
}

func patchSummary(patch string) string {
	files, hunks := gitx.PatchStats(patch)
	return fmt.Sprintf("%d file(s) changed, %d patch hunk(s)", files, hunks)
}

// buildToolMessage composes the instruction payload for the external tool
func buildToolMessage(mode models.Mode, ruleID, ruleText string) string {
	message := fmt.Sprintf(`Strict fix request for rule: %s

Apply only the minimal code changes required to resolve the violation described below.
- Do not change unrelated logic.
- Preserve function and variable names unless strictly necessary to fix the violation.
- Keep changes minimal and safe for compilation.

Rule and guidance:
%s

Modify the provided source file to fix any occurrences of this rule.`, ruleID, ruleText)

	if mode == models.ModeImprovement {
		message += "\nIn addition to the rule fix, you may apply small improvements (formatting, small refactors) only if they help clarity."
	}

	return message
}
