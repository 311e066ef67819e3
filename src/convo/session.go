// Package convo holds the multi-turn conversation sent to the generation
// endpoint, plus the most recently generated code.
package convo

import (
	"github.com/Protocol-Lattice/lattice-pymaker/src/extract"
)

// DefaultSystemPrompt instructs the model to answer with bare Python.
const DefaultSystemPrompt = "You are a Python code generator. Respond only with valid, executable Python code. No explanations, markdown, or extra text."

const refinePrefix = "Please refine the previous code: "

// Role of a conversation turn.
type Role string

const (
	System    Role = "system"
	User      Role = "user"
	Assistant Role = "assistant"
)

// Turn is one message of the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Artifact is a model reply and the code extracted from it.
type Artifact struct {
	Raw  string
	Code string
}

// Session is an ordered turn log. It is not safe for concurrent use; one
// generation cycle runs at a time.
type Session struct {
	system   string
	turns    []Turn
	lastCode string
	hasCode  bool
}

// New returns an empty session. An empty systemPrompt selects
// DefaultSystemPrompt.
func New(systemPrompt string) *Session {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Session{system: systemPrompt}
}

// Append adds a turn to the end of the history.
func (s *Session) Append(t Turn) {
	s.turns = append(s.turns, t)
}

// SnapshotForSend returns the system turn followed by the full history.
func (s *Session) SnapshotForSend() []Turn {
	out := make([]Turn, 0, len(s.turns)+1)
	out = append(out, Turn{Role: System, Content: s.system})
	return append(out, s.turns...)
}

// RollbackLast drops the most recent turn. It reports false on an empty
// history.
func (s *Session) RollbackLast() bool {
	if len(s.turns) == 0 {
		return false
	}
	s.turns = s.turns[:len(s.turns)-1]
	return true
}

// Clear empties the history and forgets the last generated code.
func (s *Session) Clear() {
	s.turns = nil
	s.lastCode = ""
	s.hasCode = false
}

// SetArtifact extracts code from raw and caches it as the last generated
// code.
func (s *Session) SetArtifact(raw string) Artifact {
	a := Artifact{Raw: raw, Code: extract.Extract(raw)}
	s.lastCode = a.Code
	s.hasCode = true
	return a
}

// LastCode returns the code from the latest successful generation.
func (s *Session) LastCode() (string, bool) {
	return s.lastCode, s.hasCode
}

// Turns returns a copy of the history without the system turn.
func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len is the number of turns, not counting the system turn.
func (s *Session) Len() int { return len(s.turns) }

// RefinePrompt builds the user message asking the model to change the code
// it produced last. The code itself is not attached; the model sees it in
// the history.
func RefinePrompt(delta string) string {
	return refinePrefix + delta
}
