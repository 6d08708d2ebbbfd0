// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/klocfix/klocfix/internal/core/config"
	"github.com/klocfix/klocfix/internal/core/models"
	"github.com/klocfix/klocfix/internal/pipeline"
	"github.com/spf13/cobra"
)

func getFixCmd() *cobra.Command {
	fixCmd := &cobra.Command{
		Use:   "fix [target]",
		Short: "Detect and remediate rule violations in C sources",
		Long: `Fix scans the target file or directory for MISRA/Klocwork rule violations
and applies remediations rule by rule. Modified files, per-file patches, and
JSON reports are written under the output directory; the working tree changes
are also captured in a combined run patch.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			target := args[0]
			modeFlag, _ := cmd.Flags().GetString("mode")
			confirm, _ := cmd.Flags().GetBool("confirm")
			jobs, _ := cmd.Flags().GetInt("jobs")
			verbose, _ := cmd.Flags().GetBool("verbose")

			mode := models.Mode(modeFlag)
			if mode != models.ModeStrict && mode != models.ModeImprovement {
				fmt.Printf("Error: invalid mode '%s' (use 's' for strict or 'i' for improvement)\n", modeFlag)
				os.Exit(1)
			}

			applyFlagOverrides(cmd, cfg)

			report, err := pipeline.Run(cmd.Context(), cfg, pipeline.Params{
				Target:  target,
				Mode:    mode,
				Confirm: confirm,
				Jobs:    jobs,
				Verbose: verbose,
			})
			if err != nil {
				fmt.Printf("Error running remediation: %v\n", err)
				os.Exit(1)
			}

			printSummary(report, cfg.OutputDir)
		},
	}

	// Configure flags
	fixCmd.Flags().StringP("mode", "m", "s", "Remediation mode: 's' strict, 'i' improvement")
	fixCmd.Flags().BoolP("confirm", "c", false, "Ask before applying each rule fix")
	fixCmd.Flags().IntP("jobs", "j", 1, "Number of files processed in parallel")
	fixCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")
	fixCmd.Flags().String("kb-dir", "", "Knowledge base directory (overrides config)")
	fixCmd.Flags().String("output-dir", "", "Output directory for artifacts (overrides config)")
	fixCmd.Flags().String("model", "", "Oracle model name (overrides config)")
	fixCmd.Flags().Int("rule-limit", 0, "Maximum rules applied per file (overrides config)")

	return fixCmd
}

// applyFlagOverrides applies command-line overrides on top of the loaded
// configuration: flags > environment > config file > defaults
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("kb-dir"); v != "" {
		cfg.KnowledgeDir = v
	}
	if v, _ := cmd.Flags().GetString("output-dir"); v != "" {
		cfg.OutputDir = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Model = v
	}
	if v, _ := cmd.Flags().GetInt("rule-limit"); v > 0 {
		cfg.RuleLimit = v
	}
}

// printSummary prints the per-outcome attempt counts and artifact locations
func printSummary(report models.RunReport, outputDir string) {
	counts := map[models.Outcome]int{}
	for _, result := range report.Results {
		for _, attempt := range result.Rules {
			counts[attempt.Status]++
		}
	}

	fmt.Printf("\nProcessed %d file(s) with findings\n", report.TotalFiles)
	fmt.Printf("  applied:      %d\n", counts[models.OutcomeApplied])
	fmt.Printf("  no_change:    %d\n", counts[models.OutcomeNoChange])
	fmt.Printf("  skipped:      %d\n", counts[models.OutcomeSkipped])
	fmt.Printf("  missing_rule: %d\n", counts[models.OutcomeMissingRule])
	fmt.Printf("  failed:       %d\n", counts[models.OutcomeFailed])
	fmt.Printf("Artifacts written under %s\n", outputDir)
}
