package tuner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asashepard/contexttune/pkg/guidance"
)

func baseGuidance() guidance.Guidance {
	return guidance.New("org/repo", "deadbeef", []string{"- old tip"}, 100)
}

func TestParseCandidates_BareArrayShape(t *testing.T) {
	raw := `[["- tip one", "- tip two"], ["- tip three"]]`
	got := parseCandidates(raw, baseGuidance(), 5)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"- tip one", "- tip two"}, got[0].Lines)
	assert.Equal(t, []string{"- tip three"}, got[1].Lines)
}

func TestParseCandidates_ObjectWithLinesShape(t *testing.T) {
	raw := `[{"lines": ["- tip one", "- tip two"]}, {"lines": ["- tip three"]}]`
	got := parseCandidates(raw, baseGuidance(), 5)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"- tip one", "- tip two"}, got[0].Lines)
}

func TestParseCandidates_MixedShapesInSameArray(t *testing.T) {
	raw := `[["- bare"], {"lines": ["- object"]}]`
	got := parseCandidates(raw, baseGuidance(), 5)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"- bare"}, got[0].Lines)
	assert.Equal(t, []string{"- object"}, got[1].Lines)
}

func TestParseCandidates_StripsMarkdownFence(t *testing.T) {
	raw := "```json\n[[\"- tip one\"]]\n```"
	got := parseCandidates(raw, baseGuidance(), 5)
	assert.Len(t, got, 1)
}

func TestParseCandidates_FindsArrayInSurroundingCommentary(t *testing.T) {
	raw := "Sure, here you go:\n[[\"- tip one\"]]\nHope that helps!"
	got := parseCandidates(raw, baseGuidance(), 5)
	assert.Len(t, got, 1)
}

func TestParseCandidates_DropsMalformedEntries(t *testing.T) {
	raw := `[["- good one"], 42, {"not_lines": true}]`
	got := parseCandidates(raw, baseGuidance(), 5)
	assert.Len(t, got, 1)
	assert.Equal(t, []string{"- good one"}, got[0].Lines)
}

func TestParseCandidates_NonArrayTopLevelReturnsEmpty(t *testing.T) {
	raw := `{"lines": ["- tip"]}`
	got := parseCandidates(raw, baseGuidance(), 5)
	assert.Empty(t, got)
}

func TestParseCandidates_UnparsableReturnsEmpty(t *testing.T) {
	got := parseCandidates("not json at all", baseGuidance(), 5)
	assert.Empty(t, got)
}

func TestParseCandidates_TruncatesToK(t *testing.T) {
	raw := `[["- a"], ["- b"], ["- c"]]`
	got := parseCandidates(raw, baseGuidance(), 2)
	assert.Len(t, got, 2)
}

func TestParseCandidates_CandidatesCarryBaseRepoAndCommit(t *testing.T) {
	raw := `[["- a"]]`
	got := parseCandidates(raw, baseGuidance(), 5)
	assert.Equal(t, "org/repo", got[0].Repo)
	assert.Equal(t, "deadbeef", got[0].Commit)
}
