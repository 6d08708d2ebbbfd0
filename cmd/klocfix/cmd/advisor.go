// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klocfix/klocfix/internal/core/models"
	"github.com/klocfix/klocfix/internal/pipeline"
	"github.com/klocfix/klocfix/internal/report"
	"github.com/spf13/cobra"
)

func getAdvisorCmd() *cobra.Command {
	advisorCmd := &cobra.Command{
		Use:   "advisor [target]",
		Short: "Suggest fixes without modifying any source file",
		Long: `Advisor runs the same detection pipeline as fix but never writes to the
source tree. For each violated rule it collects a diff-shaped suggestion from
the oracle and stores it under the output directory's advisory folder.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			target := args[0]
			jobs, _ := cmd.Flags().GetInt("jobs")
			verbose, _ := cmd.Flags().GetBool("verbose")

			applyFlagOverrides(cmd, cfg)

			runReport, err := pipeline.Run(cmd.Context(), cfg, pipeline.Params{
				Target:  target,
				Mode:    models.ModeAdvisor,
				Jobs:    jobs,
				Verbose: verbose,
			})
			if err != nil {
				fmt.Printf("Error running advisor: %v\n", err)
				os.Exit(1)
			}

			suggestions := 0
			for _, result := range runReport.Results {
				for _, attempt := range result.Rules {
					if attempt.Status == models.OutcomeApplied {
						suggestions++
					}
				}
			}
			fmt.Printf("\nCollected %d suggestion(s) across %d file(s)\n", suggestions, runReport.TotalFiles)
			fmt.Printf("Advisory output under %s\n", filepath.Join(cfg.OutputDir, report.AdvisoryDirName))
		},
	}

	// Configure flags
	advisorCmd.Flags().IntP("jobs", "j", 1, "Number of files processed in parallel")
	advisorCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")
	advisorCmd.Flags().String("kb-dir", "", "Knowledge base directory (overrides config)")
	advisorCmd.Flags().String("output-dir", "", "Output directory for artifacts (overrides config)")
	advisorCmd.Flags().String("model", "", "Oracle model name (overrides config)")
	advisorCmd.Flags().Int("rule-limit", 0, "Maximum rules applied per file (overrides config)")

	return advisorCmd
}
