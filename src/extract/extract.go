// Package extract pulls runnable code out of a raw model reply.
package extract

import (
	"regexp"
	"strings"
)

// Block is one fenced code block found in a reply.
type Block struct {
	Lang string
	Body string
}

var fenceRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_+\\.-]*)\\s*\\n(.*?)\\n```")

// Extract returns the body of the first fenced block in raw, trimmed.
// When raw holds no fenced block the whole reply is treated as code.
// An empty result means there is nothing to run.
func Extract(raw string) string {
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[2])
	}
	return strings.TrimSpace(raw)
}

// Blocks lists every fenced block in raw, in order of appearance.
func Blocks(raw string) []Block {
	var out []Block
	for _, m := range fenceRe.FindAllStringSubmatch(raw, -1) {
		out = append(out, Block{Lang: strings.ToLower(m[1]), Body: m[2]})
	}
	return out
}
