// SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klocfix/klocfix/internal/core/format"
	"github.com/klocfix/klocfix/internal/core/models"
)

// Artifact layout under the output directory
const (
	ModifiedDirName = "modified"
	PatchesDirName  = "patches"
	ReportsDirName  = "reports"
	AdvisoryDirName = "advisory"
	FullPatchName   = "full_repo.patch"
	FullReportName  = "full_report.json"
)

// Aggregator accumulates per-file outcome records and persists artifacts
// under a stable, deterministic layout. Per-file artifacts are written as
// soon as a file finishes so a crashed run still leaves valid partial
// output. Safe for concurrent RecordFile calls.
type Aggregator struct {
	outputDir string
	baseDir   string
	mode      models.Mode

	mu      sync.Mutex
	results []models.FileResult
	patches []string
}

// NewAggregator creates an aggregator writing under outputDir. Relative
// artifact paths mirror each source file's path below baseDir.
func NewAggregator(outputDir, baseDir string, mode models.Mode) *Aggregator {
	return &Aggregator{
		outputDir: outputDir,
		baseDir:   baseDir,
		mode:      mode,
	}
}

// EnsureDirs creates the output directory tree if absent
func (a *Aggregator) EnsureDirs() error {
	dirs := []string{
		a.outputDir,
		filepath.Join(a.outputDir, PatchesDirName),
		filepath.Join(a.outputDir, ReportsDirName),
	}
	if a.mode == models.ModeAdvisor {
		dirs = append(dirs, filepath.Join(a.outputDir, AdvisoryDirName))
	} else {
		dirs = append(dirs, filepath.Join(a.outputDir, ModifiedDirName))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory '%s': %w", dir, err)
		}
	}
	return nil
}

// RecordFile persists the per-file artifacts and folds the result into the
// run aggregate. Persistence problems are warnings; the run continues.
func (a *Aggregator) RecordFile(result models.FileResult, finalContent string) {
	rel := a.relPath(result.File)
	combined := result.CombinedPatch()
	result.FilePatch = combined

	if a.mode == models.ModeAdvisor {
		a.writeAdvisory(rel, result)
	} else {
		a.writeModified(rel, finalContent)
		a.writePatch(rel, combined, &result)
	}
	a.writeReport(rel, result)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
	if combined != "" {
		a.patches = append(a.patches, combined)
	}
}

// Finalize writes the run-level artifacts exactly once and returns the
// aggregated report
func (a *Aggregator) Finalize() models.RunReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := models.RunReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		TotalFiles:  len(a.results),
		Results:     a.results,
	}

	combined := ""
	for _, patch := range a.patches {
		if combined != "" {
			combined += "\n"
		}
		combined += patch
	}

	patchPath := filepath.Join(a.outputDir, FullPatchName)
	if err := os.WriteFile(patchPath, []byte(combined), 0644); err != nil {
		fmt.Printf("[warn] could not write %s: %v\n", patchPath, err)
	}

	reportPath := filepath.Join(a.outputDir, FullReportName)
	if err := format.WriteJSON(reportPath, report); err != nil {
		fmt.Printf("[warn] could not write %s: %v\n", reportPath, err)
	}

	return report
}

// relPath mirrors the source path below the base directory, falling back
// to the bare filename for paths outside it
func (a *Aggregator) relPath(file string) string {
	rel, err := filepath.Rel(a.baseDir, file)
	if err != nil || rel == "." || filepath.IsAbs(rel) || len(rel) >= 2 && rel[:2] == ".." {
		return filepath.Base(file)
	}
	return rel
}

func (a *Aggregator) writeModified(rel, content string) {
	dest := filepath.Join(a.outputDir, ModifiedDirName, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		fmt.Printf("[warn] could not create directory for %s: %v\n", dest, err)
		return
	}
	if err := os.WriteFile(dest, []byte(content), 0644); err != nil {
		fmt.Printf("[warn] could not write modified snapshot %s: %v\n", dest, err)
	}
}

func (a *Aggregator) writePatch(rel, patch string, result *models.FileResult) {
	dest := filepath.Join(a.outputDir, PatchesDirName, rel+".patch")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		fmt.Printf("[warn] could not create directory for %s: %v\n", dest, err)
		return
	}
	if err := os.WriteFile(dest, []byte(patch), 0644); err != nil {
		fmt.Printf("[warn] could not write patch %s: %v\n", dest, err)
		return
	}
	result.PatchPath = dest
}

func (a *Aggregator) writeReport(rel string, result models.FileResult) {
	dest := filepath.Join(a.outputDir, ReportsDirName, rel+".json")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		fmt.Printf("[warn] could not create directory for %s: %v\n", dest, err)
		return
	}
	if err := format.WriteJSON(dest, result); err != nil {
		fmt.Printf("[warn] could not write report %s: %v\n", dest, err)
	}
}

func (a *Aggregator) writeAdvisory(rel string, result models.FileResult) {
	dest := filepath.Join(a.outputDir, AdvisoryDirName, rel+".advice.txt")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		fmt.Printf("[warn] could not create directory for %s: %v\n", dest, err)
		return
	}

	body := ""
	for _, attempt := range result.Rules {
		if attempt.Patch == "" {
			continue
		}
		body += fmt.Sprintf("=== %s ===\n%s\n\n", attempt.Rule, attempt.Patch)
	}
	if err := os.WriteFile(dest, []byte(body), 0644); err != nil {
		fmt.Printf("[warn] could not write advisory %s: %v\n", dest, err)
	}
}
