// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/klocfix/klocfix/internal/pipeline"
	"github.com/spf13/cobra"
)

func getScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan [target]",
		Short: "Detect rule violations without remediating",
		Long: `Scan runs detection only and prints one JSON object per file with the
rule ids found. Nothing is written to the source tree or output directory.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			target := args[0]
			verbose, _ := cmd.Flags().GetBool("verbose")

			applyFlagOverrides(cmd, cfg)

			results, err := pipeline.Scan(cmd.Context(), cfg, target, verbose)
			if err != nil {
				fmt.Printf("Error scanning: %v\n", err)
				os.Exit(1)
			}

			for _, result := range results {
				line, err := json.Marshal(result)
				if err != nil {
					fmt.Printf("Error encoding result for %s: %v\n", result.File, err)
					continue
				}
				fmt.Println(string(line))
			}
		},
	}

	// Configure flags
	scanCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")
	scanCmd.Flags().String("kb-dir", "", "Knowledge base directory (overrides config)")
	scanCmd.Flags().String("output-dir", "", "Unused for scan; accepted for symmetry")
	scanCmd.Flags().String("model", "", "Oracle model name (overrides config)")
	scanCmd.Flags().Int("rule-limit", 0, "Maximum rules reported per file (overrides config)")

	return scanCmd
}
