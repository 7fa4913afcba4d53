package runner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDiff_FencedBlock(t *testing.T) {
	text := "Here is my fix:\n```diff\ndiff --git a/x.py b/x.py\n--- a/x.py\n+++ b/x.py\n@@ -1 +1 @@\n-old\n+new\n```\nDone."
	got := ExtractDiff(text)
	assert.Contains(t, got, "diff --git a/x.py b/x.py")
	assert.Contains(t, got, "+new")
}

func TestExtractDiff_BareDiffGitLine(t *testing.T) {
	text := "some preamble\ndiff --git a/x.py b/x.py\n--- a/x.py\n+++ b/x.py\n"
	got := ExtractDiff(text)
	assert.Equal(t, "diff --git a/x.py b/x.py\n--- a/x.py\n+++ b/x.py", got)
}

func TestExtractDiff_BareHyphenLine(t *testing.T) {
	text := "no diff marker here\n--- a/x.py\n+++ b/x.py\n"
	got := ExtractDiff(text)
	assert.Contains(t, got, "--- a/x.py")
}

func TestExtractDiff_NoDiffFound(t *testing.T) {
	got := ExtractDiff("I could not find a fix.")
	assert.Equal(t, "", got)
}

func TestExtractDiffFromTrajectory_TopLevelPatchField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traj.json")
	data, err := json.Marshal(map[string]string{"patch": "diff --git a/x.py b/x.py\n--- a/x.py\n"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got := ExtractDiffFromTrajectory(path)
	assert.Contains(t, got, "diff --git a/x.py b/x.py")
}

func TestExtractDiffFromTrajectory_ScansStepsFromEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traj.json")
	doc := map[string]any{
		"steps": []map[string]string{
			{"output": "nothing useful here"},
			{"output": "final answer:\ndiff --git a/x.py b/x.py\n--- a/x.py\n"},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got := ExtractDiffFromTrajectory(path)
	assert.Contains(t, got, "diff --git a/x.py b/x.py")
}

func TestExtractDiffFromTrajectory_MissingFile(t *testing.T) {
	got := ExtractDiffFromTrajectory("/nonexistent/path.json")
	assert.Equal(t, "", got)
}
