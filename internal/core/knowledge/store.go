// SPDX-License-Identifier: Apache-2.0

package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// Store maps rule identifiers to their guidance text. The mapping is
// immutable after Load for the lifetime of one run.
type Store struct {
	rules map[string]string
}

// Load reads every markdown guidance document in dir. The rule id is the
// filename stem with interior dots preserved (FNH.MIGHT.md -> FNH.MIGHT).
// A document that cannot be read is skipped with a warning; it does not
// abort loading the rest.
func Load(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading knowledge base directory: %w", err)
	}

	rules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		text, err := readGuidance(path)
		if err != nil {
			fmt.Printf("Warning: skipping rule document '%s': %v\n", path, err)
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".md")
		rules[id] = text
	}

	return &Store{rules: rules}, nil
}

// readGuidance reads a guidance document, failing over from strict UTF-8 to
// Latin-1 when the bytes do not form valid UTF-8.
func readGuidance(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	// Latin-1 failover: every byte maps to the code point of the same value
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), nil
}

// Get returns the guidance text for a rule id
func (s *Store) Get(id string) (string, bool) {
	text, ok := s.rules[id]
	return text, ok
}

// IDs returns all known rule ids in sorted order
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.rules))
	for id := range s.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of loaded rules
func (s *Store) Len() int {
	return len(s.rules)
}
