// Package guidance implements C1 of the tuning engine: the bounded,
// versioned guidance block that is the sole artifact the hill-climbing
// tuner edits. A Guidance is immutable once constructed — every mutating
// operation (Copy, TruncateToBudget) returns a new value.
package guidance

import (
	"strings"
)

// DefaultCharBudget is the default hard cap on the rendered guidance text.
const DefaultCharBudget = 3200

// MinLines and MaxLines bound the number of lines a valid guidance may
// hold (spec §3: MIN_LINES/MAX_LINES, defaults 3 and 120).
const (
	MinLines = 3
	MaxLines = 120
)

// Guidance is an immutable, bounded textual artifact prepended to a coding
// agent's task. See spec §3 "Guidance".
type Guidance struct {
	Repo       string   `json:"repo"`
	Commit     string   `json:"commit"`
	Lines      []string `json:"lines"`
	Version    int      `json:"version"`
	CharBudget int      `json:"char_budget"`
}

// New constructs a Guidance at version 0 with the given char budget, or
// DefaultCharBudget when charBudget is not positive.
// Lines are taken as-is (not validated); callers that build a Guidance
// from an untrusted source (e.g. the LLM proposer) should call
// TruncateToBudget and Validate afterward.
func New(repo, commit string, lines []string, charBudget int) Guidance {
	if charBudget <= 0 {
		charBudget = DefaultCharBudget
	}
	return Guidance{
		Repo:       repo,
		Commit:     commit,
		Lines:      append([]string(nil), lines...),
		Version:    0,
		CharBudget: charBudget,
	}
}

// Render joins Lines with newlines into the text that gets prepended to a
// task's problem statement.
func (g Guidance) Render() string {
	return strings.Join(g.Lines, "\n")
}

// CharCount returns len(Render()).
func (g Guidance) CharCount() int {
	return len(g.Render())
}

// WithinBudget reports whether the rendered guidance fits CharBudget.
func (g Guidance) WithinBudget() bool {
	return g.CharCount() <= g.CharBudget
}

// Copy returns a shallow copy of g, optionally replacing Version and/or
// Lines. Repo, Commit, and CharBudget are always carried over — only the
// tuner's proposer and truncation logic are allowed to change Lines/Version.
func (g Guidance) Copy(opts ...CopyOption) Guidance {
	out := Guidance{
		Repo:       g.Repo,
		Commit:     g.Commit,
		Lines:      append([]string(nil), g.Lines...),
		Version:    g.Version,
		CharBudget: g.CharBudget,
	}
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

// CopyOption customizes Copy.
type CopyOption func(*Guidance)

// WithVersion overrides the version of the copy.
func WithVersion(v int) CopyOption {
	return func(g *Guidance) { g.Version = v }
}

// WithLines overrides the lines of the copy.
func WithLines(lines []string) CopyOption {
	return func(g *Guidance) { g.Lines = append([]string(nil), lines...) }
}
