package runner

import "strings"

// GuidanceBlockStart and GuidanceBlockEnd are the fixed sentinel lines
// bracketing a prepended guidance block (spec §4.2, §6.5).
const (
	GuidanceBlockStart = "# REPO GUIDANCE (AUTO-TUNED)"
	GuidanceBlockEnd   = "# END REPO GUIDANCE"
)

// BuildTask composes the final task text handed to the agent: when
// guidance is non-empty it is bracketed by the sentinel lines with a
// blank line separating it from the problem statement; otherwise the
// problem statement passes through unchanged (spec §4.2, §6.5).
func BuildTask(problemStatement, guidanceText string) string {
	if strings.TrimSpace(guidanceText) == "" {
		return problemStatement
	}
	var sb strings.Builder
	sb.WriteString(GuidanceBlockStart)
	sb.WriteString("\n")
	sb.WriteString(guidanceText)
	sb.WriteString("\n")
	sb.WriteString(GuidanceBlockEnd)
	sb.WriteString("\n\n")
	sb.WriteString(problemStatement)
	return sb.String()
}
