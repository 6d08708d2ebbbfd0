// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
)

// defaultToolArgs is the aider-style invocation used when no argument
// template is configured
var defaultToolArgs = []string{"--message", "{{.Message}}", "{{.File}}"}

// CLITool runs a configured external editing tool. The command arguments
// are templates over {{.Message}} and {{.File}}.
type CLITool struct {
	command    string
	args       []string
	workingDir string
	verbose    bool
}

// NewCLITool creates a tool runner for the given command and argument
// templates
func NewCLITool(command string, args []string, workingDir string, verbose bool) *CLITool {
	if len(args) == 0 {
		args = defaultToolArgs
	}
	return &CLITool{
		command:    command,
		args:       args,
		workingDir: workingDir,
		verbose:    verbose,
	}
}

// Run invokes the tool against one file with an instruction message
func (t *CLITool) Run(ctx context.Context, file, message string) error {
	executor := NewCommandExecutor(t.command, append([]string{}, t.args...)).
		WithWorkingDir(t.workingDir).
		WithVerbose(t.verbose)

	params := map[string]interface{}{
		"Message": message,
		"File":    file,
	}
	if err := executor.ProcessParameters(params); err != nil {
		return err
	}

	result, err := executor.Execute(ctx)
	if err != nil {
		if result != nil && result.Error != nil {
			return fmt.Errorf("tool execution failed: %w", result.Error)
		}
		return fmt.Errorf("tool execution failed: %w", err)
	}

	return nil
}
