// SPDX-License-Identifier: Apache-2.0

package models

// Mode selects the remediation policy for a run
type Mode string

const (
	// ModeStrict applies only the minimal edit required to resolve a violation
	ModeStrict Mode = "s"
	// ModeImprovement allows minor non-functional cleanup on top of the strict fix
	ModeImprovement Mode = "i"
	// ModeAdvisor produces diff-shaped suggestions without touching any file
	ModeAdvisor Mode = "a"
)

// Valid reports whether the mode is one of the known policies
func (m Mode) Valid() bool {
	switch m {
	case ModeStrict, ModeImprovement, ModeAdvisor:
		return true
	}
	return false
}

// Outcome is the terminal state of one (file, rule) remediation attempt
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeNoChange    Outcome = "no_change"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeMissingRule Outcome = "missing_rule"
	OutcomeFailed      Outcome = "failed"
)

// RemediationAttempt records a single rule application against one file.
// Immutable once appended to a FileResult.
type RemediationAttempt struct {
	Rule          string   `json:"rule"`
	Status        Outcome  `json:"status"`
	Summary       string   `json:"summary,omitempty"`
	Patch         string   `json:"patch,omitempty"`
	Error         string   `json:"error,omitempty"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
}

// FileResult aggregates all attempts for one source file
type FileResult struct {
	File      string               `json:"file"`
	Rules     []RemediationAttempt `json:"rules"`
	FilePatch string               `json:"file_patch,omitempty"`
	PatchPath string               `json:"patch_path,omitempty"`
}

// CombinedPatch joins all non-empty per-rule patches in attempt order.
// Best-effort human-readable artifact; not guaranteed to re-apply as one
// transaction.
func (r *FileResult) CombinedPatch() string {
	combined := ""
	for _, attempt := range r.Rules {
		if attempt.Patch == "" {
			continue
		}
		if combined != "" {
			combined += "\n"
		}
		combined += attempt.Patch
	}
	return combined
}

// RunReport is the terminal artifact of one invocation
type RunReport struct {
	GeneratedAt string       `json:"generated_at"`
	TotalFiles  int          `json:"total_files"`
	Results     []FileResult `json:"results"`
}

// RunOptions contains options for a remediation run
type RunOptions struct {
	Mode           Mode
	Confirm        bool
	Jobs           int
	VerboseLogging bool
}
