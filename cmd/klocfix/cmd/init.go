// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klocfix/klocfix/internal/core/config"
	"github.com/spf13/cobra"
)

func getInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a project configuration",
		Long: `Init writes a default .klocfix/config.yaml into the project directory and
creates an empty knowledge base directory ready for rule guidance files.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetString("kb-dir"); v != "" {
				cfg.KnowledgeDir = v
			}
			if v, _ := cmd.Flags().GetString("model"); v != "" {
				cfg.Model = v
			}

			if err := config.SaveConfig(cfg, projectDir); err != nil {
				fmt.Printf("Error writing configuration: %v\n", err)
				os.Exit(1)
			}

			kbDir := cfg.KnowledgeDir
			if !filepath.IsAbs(kbDir) {
				kbDir = filepath.Join(projectDir, kbDir)
			}
			if err := os.MkdirAll(kbDir, 0755); err != nil {
				fmt.Printf("Error creating knowledge base directory: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Initialized %s\n", filepath.Join(projectDir, config.DefaultConfigDir, config.DefaultConfigFileName))
			fmt.Printf("Knowledge base directory: %s\n", kbDir)
			fmt.Println("Add one <RULE.ID>.md guidance file per rule, then run 'klocfix scan'.")
		},
	}

	// Configure flags
	initCmd.Flags().String("kb-dir", "", "Knowledge base directory to record in the config")
	initCmd.Flags().String("model", "", "Oracle model name to record in the config")

	return initCmd
}
