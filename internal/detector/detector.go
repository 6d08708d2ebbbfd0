// SPDX-License-Identifier: Apache-2.0

package detector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/klocfix/klocfix/internal/core/knowledge"
	"github.com/klocfix/klocfix/internal/core/rulefilter"
	"github.com/klocfix/klocfix/internal/oracle"
)

// Oracle is the classification backend. Implementations must tolerate
// arbitrary source text; failures are recovered by the detector.
type Oracle interface {
	DetectRules(ctx context.Context, code string) (oracle.DetectionResult, error)
}

// keywordPattern matches lowercase alphabetic runs of length >= 3
var keywordPattern = regexp.MustCompile(`[a-z]{3,}`)

// keywordCount bounds how many leading guidance tokens feed the heuristic
const keywordCount = 6

// Detector maps source code to a candidate set of rule ids. It unions an
// oracle strategy with a local heuristic against the knowledge store, then
// filters and truncates the sorted result.
type Detector struct {
	oracle  Oracle
	store   *knowledge.Store
	filter  *rulefilter.Filter
	limit   int
	verbose bool
}

// New creates a detector. The oracle may be nil, in which case only the
// local heuristic runs.
func New(o Oracle, store *knowledge.Store, filter *rulefilter.Filter, limit int, verbose bool) *Detector {
	return &Detector{
		oracle:  o,
		store:   store,
		filter:  filter,
		limit:   limit,
		verbose: verbose,
	}
}

// Detect returns the sorted, deduplicated, filtered rule id set for one
// source file, truncated to the configured ceiling. Oracle failure is
// recovered: it contributes nothing and processing continues.
func (d *Detector) Detect(ctx context.Context, file, code string) []string {
	seen := make(map[string]bool)

	if d.oracle != nil {
		result, err := d.oracle.DetectRules(ctx, code)
		if err != nil {
			fmt.Printf("[warn] rule detection oracle failed for %s: %v\n", file, err)
		} else {
			if d.verbose && !result.Parsed {
				fmt.Printf("[scan] oracle response for %s was not a strict rule list; using token scan\n", file)
			}
			for _, id := range result.RuleIDs() {
				seen[id] = true
			}
		}
	}

	for _, id := range d.heuristicMatches(code) {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		if d.allow(id, file) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if d.limit > 0 && len(ids) > d.limit {
		ids = ids[:d.limit]
	}
	return ids
}

// heuristicMatches finds candidate rules without the oracle: exact id
// substring hits plus keyword overlap with the first line of each rule's
// guidance text.
func (d *Detector) heuristicMatches(code string) []string {
	codeLower := strings.ToLower(code)
	var matches []string

	for _, id := range d.store.IDs() {
		if strings.Contains(codeLower, strings.ToLower(id)) {
			matches = append(matches, id)
			continue
		}

		text, _ := d.store.Get(id)
		if keywordHit(codeLower, text) {
			matches = append(matches, id)
		}
	}

	return matches
}

// keywordHit reports whether any of the first keywords of the guidance
// text's first line appears in the code
func keywordHit(codeLower, guidance string) bool {
	firstLine := guidance
	if idx := strings.IndexByte(guidance, '\n'); idx >= 0 {
		firstLine = guidance[:idx]
	}

	tokens := keywordPattern.FindAllString(strings.ToLower(firstLine), -1)
	if len(tokens) > keywordCount {
		tokens = tokens[:keywordCount]
	}

	for _, token := range tokens {
		if strings.Contains(codeLower, token) {
			return true
		}
	}
	return false
}

// allow applies the configured rule filter. Evaluation errors are logged
// and fail open so a broken expression cannot silently hide findings.
func (d *Detector) allow(rule, file string) bool {
	ok, err := d.filter.Allow(rule, file)
	if err != nil {
		fmt.Printf("[warn] rule filter failed for %s on %s: %v\n", rule, file, err)
		return true
	}
	return ok
}
