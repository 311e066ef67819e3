// Package deps finds the third-party packages a generated script imports and
// installs them with pip.
//
// The import scan is a line heuristic, not a parser: each line is trimmed and
// matched on its own. Imports inside string literals are picked up, while a
// commented-out "# import x" is not, because the comment marker is kept.
package deps

import (
	"regexp"
	"sort"
	"strings"
)

var (
	importRe     = regexp.MustCompile(`^import\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	fromImportRe = regexp.MustCompile(`^from\s+([a-zA-Z_][a-zA-Z0-9_]*)(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*\s+import`)
)

// Imports returns the sorted, deduplicated top-level package names imported
// by code.
func Imports(code string) []string {
	seen := map[string]struct{}{}
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := importRe.FindStringSubmatch(trimmed); m != nil {
			seen[m[1]] = struct{}{}
		}
		if m := fromImportRe.FindStringSubmatch(trimmed); m != nil {
			seen[m[1]] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Classify returns the imported packages that are not in the standard
// library table. The result is sorted and empty when every import is standard.
func Classify(code string) []string {
	out := []string{}
	for _, name := range Imports(code) {
		if !IsStdlib(name) {
			out = append(out, name)
		}
	}
	return out
}

// Partition splits the imports of code into standard and external names.
func Partition(code string) (std, external []string) {
	for _, name := range Imports(code) {
		if IsStdlib(name) {
			std = append(std, name)
			continue
		}
		external = append(external, name)
	}
	return std, external
}
