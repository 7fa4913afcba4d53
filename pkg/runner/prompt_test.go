package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildTask_NoGuidance(t *testing.T) {
	got := BuildTask("fix the bug", "")
	assert.Equal(t, "fix the bug", got)
}

func TestBuildTask_BlankGuidanceIsTreatedAsAbsent(t *testing.T) {
	got := BuildTask("fix the bug", "   \n  ")
	assert.Equal(t, "fix the bug", got)
}

func TestBuildTask_WithGuidance(t *testing.T) {
	got := BuildTask("fix the bug", "- look in pkg/foo\n- run go test ./...")
	assert.True(t, strings.HasPrefix(got, GuidanceBlockStart))
	assert.Contains(t, got, GuidanceBlockEnd)
	assert.True(t, strings.HasSuffix(got, "fix the bug"))

	startIdx := strings.Index(got, GuidanceBlockStart)
	endIdx := strings.Index(got, GuidanceBlockEnd)
	assert.Greater(t, endIdx, startIdx)
}
