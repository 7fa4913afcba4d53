package guidance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPathReferences_FindsRelativePaths(t *testing.T) {
	text := "See src/foo/bar.py and also tests/ for coverage, but not https://example.com/readme.md"
	paths := ExtractPathReferences(text)
	assert.Contains(t, paths, "src/foo/bar.py")
	assert.Contains(t, paths, "tests/")
	for _, p := range paths {
		assert.NotContains(t, p, "http")
	}
}

func TestExtractPathReferences_IgnoresBareWords(t *testing.T) {
	text := "Keep functions small and tested."
	paths := ExtractPathReferences(text)
	assert.Empty(t, paths)
}

func TestValidate_FlagsOverBudget(t *testing.T) {
	g := New("org/repo", "deadbeef", []string{"0123456789", "0123456789"}, 10)
	warnings := Validate(g, ValidateOptions{})
	assert.Contains(t, joinAny(warnings), "exceeds char budget")
}

func TestValidate_FlagsTooFewLines(t *testing.T) {
	g := New("org/repo", "deadbeef", []string{"one"}, 1000)
	warnings := Validate(g, ValidateOptions{})
	assert.Contains(t, joinAny(warnings), "too few lines")
}

func TestValidate_FlagsTooManyLines(t *testing.T) {
	lines := make([]string, MaxLines+1)
	for i := range lines {
		lines[i] = "line"
	}
	g := New("org/repo", "deadbeef", lines, 1_000_000)
	warnings := Validate(g, ValidateOptions{})
	assert.Contains(t, joinAny(warnings), "too many lines")
}

func TestValidate_FlagsExcessiveBlankLines(t *testing.T) {
	lines := []string{"a", "", "", "", "b", "c", "d"}
	g := New("org/repo", "deadbeef", lines, 1000)
	warnings := Validate(g, ValidateOptions{})
	assert.Contains(t, joinAny(warnings), "blank")
}

func TestValidate_ValidGuidanceHasNoWarnings(t *testing.T) {
	g := New("org/repo", "deadbeef", []string{"first line", "second line", "third line"}, 1000)
	assert.Empty(t, Validate(g, ValidateOptions{}))
}

func TestValidate_StrictPathsFlagsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "real.py"), []byte("x"), 0o644))

	g := New("org/repo", "deadbeef", []string{"edit src/real.py", "and src/missing.py", "done"}, 1000)
	warnings := Validate(g, ValidateOptions{RepoDir: dir, StrictPaths: true})
	assert.Contains(t, joinAny(warnings), "src/missing.py")
	assert.NotContains(t, joinAny(warnings), "src/real.py not found")
}

func TestValidate_StrictPathsOffByDefault(t *testing.T) {
	dir := t.TempDir()
	g := New("org/repo", "deadbeef", []string{"edit src/missing.py", "second line", "third line"}, 1000)
	assert.Empty(t, Validate(g, ValidateOptions{RepoDir: dir}))
}

func TestTruncateToBudget_DropsTrailingLinesOnly(t *testing.T) {
	g := New("org/repo", "deadbeef", []string{"aaaa", "bbbb", "cccc"}, 9)
	truncated := TruncateToBudget(g)
	assert.True(t, truncated.WithinBudget())
	assert.Equal(t, []string{"aaaa", "bbbb"}, truncated.Lines)
}

func TestTruncateToBudget_NoOpWhenAlreadyWithinBudget(t *testing.T) {
	g := New("org/repo", "deadbeef", []string{"aaaa", "bbbb"}, 1000)
	assert.Equal(t, g, TruncateToBudget(g))
}

func TestTruncateToBudget_CanEmptyAllLines(t *testing.T) {
	g := New("org/repo", "deadbeef", []string{"this line alone exceeds the budget"}, 5)
	truncated := TruncateToBudget(g)
	assert.Empty(t, truncated.Lines)
}

func joinAny(warnings []string) string {
	out := ""
	for _, w := range warnings {
		out += w + "\n"
	}
	return out
}
