// SPDX-License-Identifier: Apache-2.0

package oracle

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/klocfix/klocfix/internal/core/schema"
)

// ruleIDPattern matches rule-id shaped tokens: uppercase segments joined by
// dots, e.g. FNH.MIGHT or MISRA.DEFINE.WRONGNAME.UNDERSCORE
var ruleIDPattern = regexp.MustCompile(`[A-Z0-9]+(?:\.[A-Z0-9_]+)+`)

// fencePattern captures the body of the first fenced code block, with an
// optional language tag on the opening fence
var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\n(.*?)\n?```")

// DetectionResult is the tagged parse of a detection response: either a
// strictly parsed rule list, or the raw text for fallback extraction.
type DetectionResult struct {
	Parsed bool
	Rules  []string
	Raw    string
}

// ParseDetection parses a detection response. The strict path requires a
// JSON string array that also passes the rule-list schema; anything else is
// kept raw for the fallback token scan.
func ParseDetection(raw string) DetectionResult {
	payload := strings.TrimSpace(raw)
	if body, ok := ExtractFencedBlock(payload); ok {
		payload = strings.TrimSpace(body)
	}

	var rules []string
	if err := json.Unmarshal([]byte(payload), &rules); err == nil {
		if err := schema.ValidateRuleList([]byte(payload)); err == nil {
			return DetectionResult{Parsed: true, Rules: dedupeSorted(rules)}
		}
	}

	return DetectionResult{Raw: raw}
}

// RuleIDs returns the detected rule ids, unique and sorted. Unparsed
// responses fall back to scanning the raw text for rule-id shaped tokens.
func (r DetectionResult) RuleIDs() []string {
	if r.Parsed {
		return r.Rules
	}
	return ExtractRuleIDs(r.Raw)
}

// ExtractRuleIDs scans free text for rule-id shaped tokens
func ExtractRuleIDs(text string) []string {
	return dedupeSorted(ruleIDPattern.FindAllString(text, -1))
}

// ExtractFencedBlock returns the body of the first fenced code block in the
// text, if any
func ExtractFencedBlock(text string) (string, bool) {
	match := fencePattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1], true
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
