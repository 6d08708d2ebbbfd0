// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/klocfix/klocfix/internal/core/template"
)

// CommandExecutor handles running an external cli command
type CommandExecutor struct {
	command     string
	args        []string
	workingDir  string
	environment []string
	verbose     bool
}

// CommandResult holds the result of command execution
type CommandResult struct {
	Output     []byte
	Error      error
	ExitStatus int
}

// NewCommandExecutor creates a new command executor
func NewCommandExecutor(command string, args []string) *CommandExecutor {
	return &CommandExecutor{
		command: command,
		args:    args,
	}
}

// WithWorkingDir sets the working directory
func (e *CommandExecutor) WithWorkingDir(dir string) *CommandExecutor {
	e.workingDir = dir
	return e
}

// WithEnvironment sets environment variables
func (e *CommandExecutor) WithEnvironment(env []string) *CommandExecutor {
	e.environment = env
	return e
}

// WithVerbose enables verbose output
func (e *CommandExecutor) WithVerbose(verbose bool) *CommandExecutor {
	e.verbose = verbose
	return e
}

// ProcessParameters processes command and arguments with template parameters
func (e *CommandExecutor) ProcessParameters(params map[string]interface{}) error {
	processedCommand, err := template.ProcessString(e.command, params)
	if err != nil {
		return fmt.Errorf("error processing command: %w", err)
	}
	e.command = string(processedCommand)

	processedArgs := make([]string, 0, len(e.args))
	for _, arg := range e.args {
		processedArg, err := template.ProcessString(arg, params)
		if err != nil {
			return fmt.Errorf("error processing argument: %w", err)
		}
		processedArgs = append(processedArgs, string(processedArg))
	}
	e.args = processedArgs

	return nil
}

// Execute runs the command and returns its output
func (e *CommandExecutor) Execute(ctx context.Context) (*CommandResult, error) {
	cmd := exec.CommandContext(ctx, e.command, e.args...)

	var stdout, stderr bytes.Buffer

	if e.verbose {
		cmd.Stdout = io.MultiWriter(&stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if e.workingDir != "" {
		cmd.Dir = e.workingDir
	}

	if len(e.environment) > 0 {
		cmd.Env = e.environment
	}

	if e.verbose {
		fmt.Printf("Executing: %s %s\n", e.command, strings.Join(e.args, " "))
	}

	err := cmd.Run()

	result := &CommandResult{
		Output: stdout.Bytes(),
		Error:  err,
	}

	if exitError, ok := err.(*exec.ExitError); ok {
		result.ExitStatus = exitError.ExitCode()
		// surface stderr in the error text for the attempt record
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			result.Error = fmt.Errorf("exit status %d: %s", result.ExitStatus, msg)
		}
	}

	return result, err
}
