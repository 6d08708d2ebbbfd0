// SPDX-License-Identifier: Apache-2.0

package rulefilter

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// Filter evaluates a CEL expression deciding whether a detected rule id is
// carried forward for a given file. The expression is compiled once at
// construction and evaluated per (rule, file) pair.
type Filter struct {
	program cel.Program
}

// New compiles a filter from a CEL expression over the variables `rule` and
// `file`. An empty expression yields a nil filter, which allows everything.
func New(expression string) (*Filter, error) {
	if expression == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("rule", cel.StringType),
		cel.Variable("file", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %w", err)
	}

	ast, issues := env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error parsing filter expression: %w", issues.Err())
	}

	checked, issues := env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error type-checking filter expression: %w", issues.Err())
	}

	program, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("error compiling filter expression: %w", err)
	}

	return &Filter{program: program}, nil
}

// Allow reports whether the rule passes the filter for the given file
func (f *Filter) Allow(rule, file string) (bool, error) {
	if f == nil {
		return true, nil
	}

	result, _, err := f.program.Eval(map[string]interface{}{
		"rule": rule,
		"file": file,
	})
	if err != nil {
		return false, fmt.Errorf("error evaluating filter expression: %w", err)
	}

	if result.Type() != types.BoolType {
		return false, fmt.Errorf("filter expression did not evaluate to a boolean")
	}

	return result.Value().(bool), nil
}
