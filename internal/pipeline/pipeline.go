// SPDX-License-Identifier: Apache-2.0

// Package pipeline assembles the remediation components into runnable
// operations. Commands call this layer; it owns wiring and lifecycle, the
// packages underneath own behavior.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klocfix/klocfix/internal/core/config"
	"github.com/klocfix/klocfix/internal/core/knowledge"
	"github.com/klocfix/klocfix/internal/core/models"
	"github.com/klocfix/klocfix/internal/core/rulefilter"
	"github.com/klocfix/klocfix/internal/detector"
	"github.com/klocfix/klocfix/internal/engine"
	"github.com/klocfix/klocfix/internal/gitx"
	"github.com/klocfix/klocfix/internal/oracle"
	"github.com/klocfix/klocfix/internal/orchestrator"
	"github.com/klocfix/klocfix/internal/report"
)

// Params describes one remediation run
type Params struct {
	// Target is a C source file or a directory scanned recursively
	Target  string
	Mode    models.Mode
	Confirm bool
	Jobs    int
	Verbose bool
}

// Run executes the full detect-and-remediate pipeline and returns the
// aggregated run report.
func Run(ctx context.Context, cfg *config.Config, p Params) (models.RunReport, error) {
	if !p.Mode.Valid() {
		return models.RunReport{}, fmt.Errorf("invalid mode %q", p.Mode)
	}

	store, filter, err := loadKnowledge(cfg)
	if err != nil {
		return models.RunReport{}, err
	}

	files, err := orchestrator.GatherSourceFiles(p.Target)
	if err != nil {
		return models.RunReport{}, fmt.Errorf("error gathering source files: %w", err)
	}
	if len(files) == 0 {
		fmt.Printf("[warn] no C sources found under %s\n", p.Target)
		return models.RunReport{GeneratedAt: time.Now().UTC().Format(time.RFC3339)}, nil
	}

	baseDir, err := resolveBaseDir(p.Target)
	if err != nil {
		return models.RunReport{}, err
	}

	// Advisor runs and tool-less fixes both need the oracle; with a tool
	// configured the oracle is still used for detection when a key is set.
	var client *oracle.Client
	if cfg.HasOracle() {
		client, err = oracle.NewClient(cfg)
		if err != nil {
			return models.RunReport{}, err
		}
	} else if p.Mode == models.ModeAdvisor || cfg.FixTool == "" {
		return models.RunReport{}, fmt.Errorf("this operation requires an API key (set API_KEY or OPENAI_API_KEY)")
	}

	det := newDetector(client, store, filter, cfg, p.Verbose)

	var tracker *gitx.Tracker
	var tool engine.ToolRunner
	if p.Mode != models.ModeAdvisor {
		tracker = gitx.NewTracker(baseDir)
		if err := tracker.EnsureRepo(ctx); err != nil {
			return models.RunReport{}, fmt.Errorf("error preparing change tracking: %w", err)
		}
		if cfg.FixTool != "" {
			tool = engine.NewCLITool(cfg.FixTool, cfg.FixToolArgs, baseDir, p.Verbose)
		}
	}

	applier := newApplier(client, tracker, tool)

	agg := report.NewAggregator(cfg.OutputDir, baseDir, p.Mode)
	if err := agg.EnsureDirs(); err != nil {
		return models.RunReport{}, err
	}

	var confirm orchestrator.Confirmer
	if p.Confirm {
		confirm = promptConfirm
	}

	orch := orchestrator.New(det, store, applier, agg, confirm, models.RunOptions{
		Mode:           p.Mode,
		Confirm:        p.Confirm,
		Jobs:           p.Jobs,
		VerboseLogging: p.Verbose,
	})

	if err := orch.Run(ctx, files); err != nil {
		return models.RunReport{}, err
	}

	return agg.Finalize(), nil
}

// Scan runs detection only and returns per-file rule sets without touching
// the working tree or writing artifacts.
func Scan(ctx context.Context, cfg *config.Config, target string, verbose bool) ([]orchestrator.ScanResult, error) {
	store, filter, err := loadKnowledge(cfg)
	if err != nil {
		return nil, err
	}

	files, err := orchestrator.GatherSourceFiles(target)
	if err != nil {
		return nil, fmt.Errorf("error gathering source files: %w", err)
	}

	var client *oracle.Client
	if cfg.HasOracle() {
		client, err = oracle.NewClient(cfg)
		if err != nil {
			return nil, err
		}
	}

	det := newDetector(client, store, filter, cfg, verbose)
	orch := orchestrator.New(det, store, nil, nil, nil, models.RunOptions{VerboseLogging: verbose})
	return orch.Scan(ctx, files), nil
}

func loadKnowledge(cfg *config.Config) (*knowledge.Store, *rulefilter.Filter, error) {
	if err := cfg.RequireKnowledgeDir(); err != nil {
		return nil, nil, err
	}
	store, err := knowledge.Load(cfg.KnowledgeDir)
	if err != nil {
		return nil, nil, err
	}
	if store.Len() == 0 {
		fmt.Printf("[warn] knowledge base %s contains no rule files\n", cfg.KnowledgeDir)
	}

	filter, err := rulefilter.New(cfg.RuleFilter)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid rule filter: %w", err)
	}
	return store, filter, nil
}

// newDetector keeps the oracle interface nil when no client exists so the
// detector falls back to the local heuristic alone
func newDetector(client *oracle.Client, store *knowledge.Store, filter *rulefilter.Filter, cfg *config.Config, verbose bool) *detector.Detector {
	if client == nil {
		return detector.New(nil, store, filter, cfg.RuleLimit, verbose)
	}
	return detector.New(client, store, filter, cfg.RuleLimit, verbose)
}

// newApplier mirrors newDetector's nil handling for the tracker and oracle
func newApplier(client *oracle.Client, tracker *gitx.Tracker, tool engine.ToolRunner) *engine.Applier {
	var o engine.FixOracle
	if client != nil {
		o = client
	}
	var t engine.ChangeTracker
	if tracker != nil {
		t = tracker
	}
	return engine.NewApplier(o, t, tool)
}

// resolveBaseDir maps the target to the directory artifacts are mirrored
// against: the directory itself, or the parent for a single-file target
func resolveBaseDir(target string) (string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("target %q not found: %w", target, err)
	}
	if info.IsDir() {
		return abs, nil
	}
	return filepath.Dir(abs), nil
}

// promptConfirm asks the operator before one (file, rule) apply. Anything
// other than an explicit yes declines.
func promptConfirm(file, rule string) bool {
	fmt.Printf("Apply rule %s to %s? [y/N]: ", rule, file)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
