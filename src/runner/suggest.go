package runner

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

type indicator struct {
	label string
	re    *regexp.Regexp
}

// interactivity lists what makes a script want the real terminal: GUI
// toolkits, blocking prompts and plot windows.
var interactivity = []indicator{
	{"tkinter", regexp.MustCompile(`(?m)^\s*(import|from)\s+tkinter\b`)},
	{"turtle", regexp.MustCompile(`(?m)^\s*(import|from)\s+turtle\b`)},
	{"pygame", regexp.MustCompile(`(?m)^\s*(import|from)\s+pygame\b`)},
	{"pyglet", regexp.MustCompile(`(?m)^\s*(import|from)\s+pyglet\b`)},
	{"arcade", regexp.MustCompile(`(?m)^\s*(import|from)\s+arcade\b`)},
	{"kivy", regexp.MustCompile(`(?m)^\s*(import|from)\s+kivy\b`)},
	{"qt", regexp.MustCompile(`(?m)^\s*(import|from)\s+(PyQt[56]?|PySide[26]?)\b`)},
	{"wx", regexp.MustCompile(`(?m)^\s*(import|from)\s+wx\b`)},
	{"curses", regexp.MustCompile(`(?m)^\s*(import|from)\s+curses\b`)},
	{"input()", regexp.MustCompile(`\binput\s*\(`)},
	{"getpass()", regexp.MustCompile(`\bgetpass\s*\(`)},
	{"plt.show()", regexp.MustCompile(`\b(plt|pyplot)\.show\s*\(`)},
	{"cv2.imshow()", regexp.MustCompile(`\bcv2\.(imshow|waitKey)\s*\(`)},
}

// Indicators returns the labels of every interactivity marker found in code.
func Indicators(code string) []string {
	var found []string
	for _, ind := range interactivity {
		if ind.re.MatchString(code) {
			found = append(found, ind.label)
		}
	}
	return found
}

// SuggestMode recommends Interactive when code looks like it needs the
// terminal or a window. It is advice only; callers choose the mode.
func SuggestMode(code string) Mode {
	if len(Indicators(code)) > 0 {
		return Interactive
	}
	return Captured
}

// TailBytes returns the last n bytes of s, cut on a rune boundary.
func TailBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	for len(s) > 0 && !utf8.RuneStart(s[0]) {
		s = s[1:]
	}
	return s
}

func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
