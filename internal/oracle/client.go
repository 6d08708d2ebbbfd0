// SPDX-License-Identifier: Apache-2.0

package oracle

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/klocfix/klocfix/internal/core/config"
	"github.com/klocfix/klocfix/internal/core/models"
)

// Client wraps the chat-completions API behind the two operations the rest
// of the system needs: rule detection and fix proposals. The oracle is
// untrusted and fallible; callers treat every response as a suggestion.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewClient creates an oracle client from the application configuration
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle requires an API key (set API_KEY or OPENAI_API_KEY)")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBaseURL != "" {
		clientConfig.BaseURL = cfg.APIBaseURL
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.CallTimeout(),
	}, nil
}

// DetectRules asks the oracle which rule ids the code violates and returns
// the tagged parse of its response
func (c *Client) DetectRules(ctx context.Context, code string) (DetectionResult, error) {
	prompt := fmt.Sprintf(`You are an expert in MISRA C:2012 and Klocwork static analysis rules.

Analyze the following C code and identify which MISRA/Klocwork rule IDs are violated.
Return ONLY a JSON array of rule names. No explanation, no text outside JSON.

Example output:
["FNH.MIGHT", "MISRA.DEFINE.WRONGNAME.UNDERSCORE"]

C Code to analyze:
--------------------
%s
--------------------

Respond only with a JSON list of rule names.`, code)

	raw, err := c.complete(ctx, "", prompt)
	if err != nil {
		return DetectionResult{}, err
	}

	return ParseDetection(raw), nil
}

// ProposeFix asks the oracle for a remediation of one rule in one file.
// For strict and improvement modes the response is expected to carry a
// fenced code block with the complete replacement source; for advisor mode
// a unified-diff suggestion in the reply body.
func (c *Client) ProposeFix(ctx context.Context, mode models.Mode, ruleID, ruleText, filename, code string) (string, error) {
	system := "You are an assistant that fixes C source code to comply with MISRA/Klocwork rules. " +
		"Given the rule text and the original source file, return a single fenced code block with the entire fixed source. " +
		"If you cannot confidently fix, return the original file unchanged inside the fence."

	var instruction string
	switch mode {
	case models.ModeAdvisor:
		system = "You are an assistant that reviews C source code for MISRA/Klocwork compliance. " +
			"You never rewrite files; you produce unified-diff suggestions only."
		instruction = fmt.Sprintf(`Advisor mode: inspect the file and produce a unified-diff patch (text in your reply) that would fix %s occurrences.
Do NOT return the full file. Provide a short explanation for each hunk.

Rule and guidance:
%s

File: %s

Original source:
`+"```c\n%s\n```", ruleID, ruleText, filename, code)
	case models.ModeImprovement:
		instruction = strictInstruction(ruleID, ruleText, filename, code) +
			"\nIn addition to the rule fix, you may apply small improvements (formatting, small refactors) only if they help clarity."
	default:
		instruction = strictInstruction(ruleID, ruleText, filename, code)
	}

	return c.complete(ctx, system, instruction)
}

func strictInstruction(ruleID, ruleText, filename, code string) string {
	return fmt.Sprintf(`Strict fix request for rule: %s

Apply only the minimal code changes required to resolve the violation described below.
- Do not change unrelated logic.
- Preserve function and variable names unless strictly necessary to fix the violation.
- Keep changes minimal and safe for compilation.

Rule and guidance:
%s

File: %s

Original source:
`+"```c\n%s\n```", ruleID, ruleText, filename, code)
}

// complete performs one bounded chat-completion call
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("oracle call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("oracle returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
