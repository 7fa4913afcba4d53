package guidance

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// pathRefPattern matches plausible relative path references in guidance
// text, e.g. "src/foo/bar.py" or "tests/". Grounded on the Python
// original's extract_path_references regex.
var pathRefPattern = regexp.MustCompile(`[a-zA-Z0-9_.][a-zA-Z0-9_./\-]*(?:\.\w+|/)`)

// ExtractPathReferences scans text for substrings that look like
// repo-relative file or directory paths. Matches starting with "http" or
// "//" are dropped; the host-and-path part of a URL (e.g.
// "example.com/readme.md" from "https://example.com/readme.md") is still
// returned.
func ExtractPathReferences(text string) []string {
	candidates := pathRefPattern.FindAllString(text, -1)
	var paths []string
	for _, c := range candidates {
		if strings.HasPrefix(c, "http") || strings.HasPrefix(c, "//") {
			continue
		}
		if !strings.Contains(c, "/") {
			continue
		}
		c = strings.TrimRight(c, ".")
		if len(c) > 2 {
			paths = append(paths, c)
		}
	}
	return paths
}

// ValidateOptions configures Validate.
type ValidateOptions struct {
	// RepoDir, when set together with StrictPaths, enables checking path
	// references in the guidance against the actual worktree.
	RepoDir     string
	StrictPaths bool
}

// Validate returns a list of human-readable warnings for a Guidance.
// An empty slice means the guidance is valid. Validate never returns an
// error — warnings are advisory (spec §4.1): the tuner scores invalid
// candidates too, since the proposer may emit lines that violate the
// budget it was asked to respect.
func Validate(g Guidance, opts ValidateOptions) []string {
	var warnings []string

	if !g.WithinBudget() {
		warnings = append(warnings, fmt.Sprintf(
			"guidance exceeds char budget: %d > %d", g.CharCount(), g.CharBudget))
	}

	n := len(g.Lines)
	if n < MinLines {
		warnings = append(warnings, fmt.Sprintf("too few lines (%d < %d)", n, MinLines))
	}
	if n > MaxLines {
		warnings = append(warnings, fmt.Sprintf("too many lines (%d > %d)", n, MaxLines))
	}

	empty := 0
	for _, l := range g.Lines {
		if strings.TrimSpace(l) == "" {
			empty++
		}
	}
	if n > 6 && empty > n/3 {
		warnings = append(warnings, fmt.Sprintf("%d/%d lines are blank", empty, n))
	}

	if opts.StrictPaths && opts.RepoDir != "" {
		for _, ref := range ExtractPathReferences(g.Render()) {
			target := filepath.Join(opts.RepoDir, strings.TrimSuffix(ref, "/"))
			if _, err := os.Stat(target); err != nil {
				warnings = append(warnings, fmt.Sprintf("path reference not found in repo: %s", ref))
			}
		}
	}

	return warnings
}

// TruncateToBudget returns a copy of g with trailing lines dropped until
// the rendered text fits CharBudget. No line is ever split or edited —
// only whole trailing lines are removed (spec §4.1, testable property 5).
// A Guidance with zero lines is a legal (if invalid-per-MinLines) result.
func TruncateToBudget(g Guidance) Guidance {
	if g.WithinBudget() {
		return g
	}
	lines := append([]string(nil), g.Lines...)
	for len(lines) > 0 && len(strings.Join(lines, "\n")) > g.CharBudget {
		lines = lines[:len(lines)-1]
	}
	return g.Copy(WithLines(lines))
}
