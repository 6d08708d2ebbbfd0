// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klocfix/klocfix/internal/core/config"
	"github.com/klocfix/klocfix/internal/version"

	"github.com/spf13/cobra"
)

var (
	// Configuration path
	configFile string

	// Project directory
	projectDir string

	// Loaded configuration
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "klocfix",
	Short: "MISRA/Klocwork Rule Remediation Tool",
	Long: `Klocfix analyzes C source files for MISRA C:2012 and Klocwork rule
violations and applies per-rule remediations guided by a local knowledge base,
producing patches and machine-readable reports for every run.`,
	Version: fmt.Sprintf("%s (commit: %s)", version.Version, version.Commit),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Determine project directory
		var err error
		if projectDir == "" {
			projectDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("error getting current directory: %w", err)
			}
		} else {
			projectDir, err = filepath.Abs(projectDir)
			if err != nil {
				return fmt.Errorf("error resolving project directory: %w", err)
			}
		}

		cfg, err = config.LoadConfigAt(projectDir, configFile)
		if err != nil {
			fmt.Printf("Warning: Error loading configuration: %v\n", err)
			fmt.Println("Using default configuration instead.")
			cfg = config.NewDefaultConfig()
		}

		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(getFixCmd())
	rootCmd.AddCommand(getScanCmd())
	rootCmd.AddCommand(getAdvisorCmd())
	rootCmd.AddCommand(getInitCmd())

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .klocfix/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", "", "project directory (default is current directory)")
}
