// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/klocfix/klocfix/internal/core/knowledge"
	"github.com/klocfix/klocfix/internal/core/models"
	"github.com/klocfix/klocfix/internal/engine"
)

// Detector maps one source file to its candidate rule id set
type Detector interface {
	Detect(ctx context.Context, file, code string) []string
}

// Applier produces one remediation attempt per (file, rule) pair
type Applier interface {
	Apply(ctx context.Context, req engine.Request) engine.Result
}

// Recorder persists a finished file's results
type Recorder interface {
	RecordFile(result models.FileResult, finalContent string)
}

// Confirmer is the interactive yes/no gate asked before each apply when
// confirmation-required policy is active
type Confirmer func(file, rule string) bool

// Orchestrator drives the per-file, per-rule remediation loop. Rules within
// one file run strictly sequentially: each attempt's input content is the
// previous attempt's output. Distinct files may run in parallel; the
// working-tree applier and the confirmation gate are serialized across
// workers.
type Orchestrator struct {
	detector Detector
	store    *knowledge.Store
	applier  Applier
	recorder Recorder
	confirm  Confirmer
	opts     models.RunOptions

	applyMu   sync.Mutex
	confirmMu sync.Mutex
}

// New creates an orchestrator. confirm may be nil unless opts.Confirm is set.
func New(d Detector, store *knowledge.Store, a Applier, r Recorder, confirm Confirmer, opts models.RunOptions) *Orchestrator {
	return &Orchestrator{
		detector: d,
		store:    store,
		applier:  a,
		recorder: r,
		confirm:  confirm,
		opts:     opts,
	}
}

// Run processes every file. Per-file failures are recovered and recorded;
// only context cancellation aborts the run.
func (o *Orchestrator) Run(ctx context.Context, files []string) error {
	jobs := o.opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	if jobs == 1 {
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			o.processFile(ctx, file)
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			o.processFile(ctx, file)
			return nil
		})
	}
	return g.Wait()
}

// ScanResult is one file's detection-only outcome
type ScanResult struct {
	File  string   `json:"file"`
	Rules []string `json:"rules"`
}

// Scan runs detection without remediation
func (o *Orchestrator) Scan(ctx context.Context, files []string) []ScanResult {
	results := make([]ScanResult, 0, len(files))
	for _, file := range files {
		code, err := os.ReadFile(file)
		if err != nil {
			fmt.Printf("[error] could not read %s: %v\n", file, err)
			continue
		}
		rules := o.detector.Detect(ctx, file, string(code))
		results = append(results, ScanResult{File: file, Rules: rules})
	}
	return results
}

// processFile runs the full rule loop for one file and records the result.
// A clean file (no rules detected) produces no report entry.
func (o *Orchestrator) processFile(ctx context.Context, file string) {
	fmt.Printf("[scan] Analyzing %s\n", file)

	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Printf("[error] could not read %s: %v\n", file, err)
		return
	}
	content := string(data)

	rules := o.detector.Detect(ctx, file, content)
	if len(rules) == 0 {
		fmt.Printf("[ok] No rule violations detected in %s\n", file)
		return
	}

	result := models.FileResult{File: file}
	for _, rule := range rules {
		attempt := o.attemptRule(ctx, file, rule, &content)
		result.Rules = append(result.Rules, attempt)
	}

	o.recorder.RecordFile(result, content)
}

// attemptRule runs one (file, rule) attempt. The content accumulator is
// advanced only on an applied outcome, so every other outcome leaves the
// next rule's input unchanged.
func (o *Orchestrator) attemptRule(ctx context.Context, file, rule string, content *string) models.RemediationAttempt {
	ruleText, ok := o.store.Get(rule)
	if !ok {
		fmt.Printf("[warn] rule '%s' not found in knowledge base; skipping\n", rule)
		return models.RemediationAttempt{Rule: rule, Status: models.OutcomeMissingRule}
	}

	if o.opts.Confirm && o.confirm != nil {
		o.confirmMu.Lock()
		accepted := o.confirm(file, rule)
		o.confirmMu.Unlock()
		if !accepted {
			fmt.Printf("[skip] rule %s declined for %s\n", rule, file)
			return models.RemediationAttempt{Rule: rule, Status: models.OutcomeSkipped}
		}
	}

	fmt.Printf("[fix] Applying rule %s -> %s\n", rule, file)

	o.applyMu.Lock()
	res := o.applier.Apply(ctx, engine.Request{
		Mode:     o.opts.Mode,
		Path:     file,
		RuleID:   rule,
		RuleText: ruleText,
		Content:  *content,
	})
	o.applyMu.Unlock()

	attempt := models.RemediationAttempt{
		Rule:          rule,
		Status:        res.Outcome,
		Summary:       res.Summary,
		Patch:         res.Patch,
		Error:         res.Err,
		ModifiedFiles: res.ChangedFiles,
	}

	switch res.Outcome {
	case models.OutcomeApplied:
		*content = res.Content
	case models.OutcomeFailed:
		fmt.Printf("[error] remediation failed for %s rule %s: %s\n", file, rule, res.Err)
	}

	return attempt
}
