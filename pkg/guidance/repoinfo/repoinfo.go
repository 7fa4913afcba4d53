// Package repoinfo builds the bounded repo-introspection block used to
// seed G0 (spec §4.4 "Initialization"; supplemented from the Python
// original's context_policy/guidance/repo_info.py). This is glue per
// spec.md §1 — directory walks and ignore-list handling are treated as an
// external collaborator whose interface (Build) is all the tuning engine
// depends on.
package repoinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MaxTreeEntries caps how many tree lines are rendered, keeping the seed
// prompt itself bounded regardless of repo size.
const MaxTreeEntries = 400

var ignoredDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true,
	".venv": true, "venv": true, "vendor": true, "dist": true, "build": true,
	".tox": true, ".mypy_cache": true, ".pytest_cache": true,
}

var testDirNames = map[string]bool{
	"test": true, "tests": true, "testing": true, "spec": true, "specs": true,
}

// Block is the rendered repo-info text handed to the init prompt.
type Block struct {
	Tree         []string
	TestDirs     []string
	GuessedTestCmd string
}

// Render formats the block as the plain text the init prompt embeds.
func (b Block) Render() string {
	var sb strings.Builder
	sb.WriteString("Directory tree:\n")
	for _, line := range b.Tree {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if len(b.TestDirs) > 0 {
		sb.WriteString("\nDetected test directories: ")
		sb.WriteString(strings.Join(b.TestDirs, ", "))
		sb.WriteString("\n")
	}
	if b.GuessedTestCmd != "" {
		sb.WriteString("\nGuessed test command: ")
		sb.WriteString(b.GuessedTestCmd)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Build walks repoDir and produces a bounded Block: a truncated directory
// tree, any directories that look like test suites, and a best-effort
// guess at the test command based on marker files present at the root.
func Build(repoDir string) (Block, error) {
	var entries []string
	err := filepath.WalkDir(repoDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort walk, skip unreadable entries
		}
		rel, relErr := filepath.Rel(repoDir, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() && ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		entries = append(entries, rel)
		if len(entries) > MaxTreeEntries*4 {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return Block{}, fmt.Errorf("walk %s: %w", repoDir, err)
	}

	sort.Strings(entries)
	if len(entries) > MaxTreeEntries {
		entries = entries[:MaxTreeEntries]
	}

	var testDirs []string
	for _, e := range entries {
		base := filepath.Base(e)
		if testDirNames[strings.ToLower(base)] {
			testDirs = append(testDirs, e)
		}
	}

	return Block{
		Tree:           entries,
		TestDirs:       testDirs,
		GuessedTestCmd: guessTestCommand(repoDir),
	}, nil
}

// guessTestCommand inspects well-known marker files to guess how tests
// are run. This is a heuristic, not a build-system integration.
func guessTestCommand(repoDir string) string {
	markers := []struct {
		file string
		cmd  string
	}{
		{"pytest.ini", "pytest"},
		{"pyproject.toml", "pytest"},
		{"setup.py", "pytest"},
		{"go.mod", "go test ./..."},
		{"package.json", "npm test"},
		{"Makefile", "make test"},
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(repoDir, m.file)); err == nil {
			return m.cmd
		}
	}
	return ""
}
