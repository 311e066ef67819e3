package src

import (
	"crypto/sha1"
	"fmt"
	"strings"
)

// edit represents a single line change in a diff.
type edit struct {
	tag string // " " same, "+" add, "-" del
	txt string
}

type palette struct {
	reset, red, green, cyan, gray, bold string
}

var (
	plainPalette = palette{}
	ansiPalette  = palette{
		reset: "\033[0m",
		red:   "\033[31m",
		green: "\033[32m",
		cyan:  "\033[36m",
		gray:  "\033[90m",
		bold:  "\033[1m",
	}
)

// Diff returns a git-style unified diff between two versions of a script,
// or "" when they are equal.
func Diff(name, oldCode, newCode string) string {
	return renderDiff(name, oldCode, newCode, plainPalette)
}

// DiffPretty is Diff with ANSI colors.
func DiffPretty(name, oldCode, newCode string) string {
	return renderDiff(name, oldCode, newCode, ansiPalette)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func lineEdits(oldLines, newLines []string) []edit {
	n, m := len(oldLines), len(newLines)

	// Build LCS table.
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var seq []edit
	i, j := 0, 0
	for i < n && j < m {
		if oldLines[i] == newLines[j] {
			seq = append(seq, edit{" ", oldLines[i]})
			i++
			j++
		} else if lcs[i+1][j] >= lcs[i][j+1] {
			seq = append(seq, edit{"-", oldLines[i]})
			i++
		} else {
			seq = append(seq, edit{"+", newLines[j]})
			j++
		}
	}
	for ; i < n; i++ {
		seq = append(seq, edit{"-", oldLines[i]})
	}
	for ; j < m; j++ {
		seq = append(seq, edit{"+", newLines[j]})
	}
	return seq
}

func renderDiff(name, oldCode, newCode string, c palette) string {
	if oldCode == newCode {
		return ""
	}
	seq := lineEdits(splitLines(oldCode), splitLines(newCode))

	var out strings.Builder
	fmt.Fprintf(&out, "%sdiff --git a/%s b/%s%s\n", c.bold+c.cyan, name, name, c.reset)
	fmt.Fprintf(&out, "index %s..%s 100644\n", shortSHA(oldCode), shortSHA(newCode))
	fmt.Fprintf(&out, "%s--- a/%s%s\n", c.cyan, name, c.reset)
	fmt.Fprintf(&out, "%s+++ b/%s%s\n", c.cyan, name, c.reset)

	const ctxLines = 3
	// oldPos/newPos hold the 0-based line numbers reached before seq[i].
	oldPos := make([]int, len(seq)+1)
	newPos := make([]int, len(seq)+1)
	for i, e := range seq {
		oldPos[i+1], newPos[i+1] = oldPos[i], newPos[i]
		if e.tag != "+" {
			oldPos[i+1]++
		}
		if e.tag != "-" {
			newPos[i+1]++
		}
	}

	idx := 0
	for idx < len(seq) {
		if seq[idx].tag == " " {
			idx++
			continue
		}
		start := max(0, idx-ctxLines)
		end := idx
		// Changes separated by at most two context windows share a hunk.
		for {
			for end < len(seq) && seq[end].tag != " " {
				end++
			}
			gap := end
			for gap < len(seq) && seq[gap].tag == " " {
				gap++
			}
			if gap < len(seq) && gap-end <= 2*ctxLines {
				end = gap
				continue
			}
			break
		}
		stop := min(len(seq), end+ctxLines)

		fmt.Fprintf(&out, "%s@@ -%s +%s @@%s\n", c.cyan,
			hunkRange(oldPos[start], oldPos[stop]), hunkRange(newPos[start], newPos[stop]), c.reset)
		for _, e := range seq[start:stop] {
			switch e.tag {
			case "+":
				fmt.Fprintf(&out, "%s+%s%s\n", c.green, e.txt, c.reset)
			case "-":
				fmt.Fprintf(&out, "%s-%s%s\n", c.red, e.txt, c.reset)
			default:
				fmt.Fprintf(&out, "%s %s%s\n", c.gray, e.txt, c.reset)
			}
		}
		idx = stop
	}
	return out.String()
}

// hunkRange formats a unified-diff range. An empty range points at the
// line before it, as diff(1) does.
func hunkRange(from, to int) string {
	if to == from {
		return fmt.Sprintf("%d,0", from)
	}
	return fmt.Sprintf("%d,%d", from+1, to-from)
}

// shortSHA returns a short SHA1-like index label for diff headers.
func shortSHA(s string) string {
	h := sha1.Sum([]byte(s))
	return fmt.Sprintf("%x", h[:3])
}
