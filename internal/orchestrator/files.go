// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// C source and header extensions eligible for remediation
var sourceExtensions = map[string]bool{
	".c": true,
	".h": true,
}

// GatherSourceFiles collects the C files under path, recursively, in
// sorted order. A single eligible file is returned as-is.
func GatherSourceFiles(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if sourceExtensions[strings.ToLower(filepath.Ext(p))] {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
