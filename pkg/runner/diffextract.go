package runner

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
)

// fencedDiffPattern matches a fenced ```diff ... ``` or bare ``` ... ```
// block; ExtractDiff keeps the first fenced block that looks like a diff.
var fencedDiffPattern = regexp.MustCompile("(?s)```(?:diff)?\\s*\\n(.*?)```")

// ExtractDiff pulls a unified diff out of free-form agent output. It tries,
// in order: a fenced diff block, the first "diff --git " line onward, the
// first "--- " line onward (spec §4.2 point 2, grounded on the Python
// original's extract_diff).
func ExtractDiff(text string) string {
	for _, m := range fencedDiffPattern.FindAllStringSubmatch(text, -1) {
		block := m[1]
		if strings.Contains(block, "---") || strings.Contains(block, "diff --git") {
			return strings.TrimSpace(block)
		}
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
	}
	for i, line := range lines {
		if strings.HasPrefix(line, "--- ") {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
	}
	return ""
}

// trajectoryDoc is the subset of a trajectory JSON file's shape that
// ExtractDiffFromTrajectory understands: either a top-level patch field or
// a list of steps to scan from the end (spec §4.2 point 4, grounded on
// extract_patch_from_trajectory).
type trajectoryDoc map[string]json.RawMessage

var trajectoryPatchKeys = []string{"patch", "model_patch", "diff"}
var trajectoryListKeys = []string{"actions", "steps", "messages", "history"}
var trajectoryStepTextKeys = []string{"output", "content", "result", "patch"}

// ExtractDiffFromTrajectory reads a trajectory JSON artifact on disk and
// looks for a salvageable diff: first a top-level patch-shaped field, then
// the most recent step whose text contains one.
func ExtractDiffFromTrajectory(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	var doc trajectoryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}

	for _, key := range trajectoryPatchKeys {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}

	for _, key := range trajectoryListKeys {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		for i := len(items) - 1; i >= 0; i-- {
			if diff := extractFromTrajectoryItem(items[i]); diff != "" {
				return diff
			}
		}
	}

	return ""
}

func extractFromTrajectoryItem(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ExtractDiff(s)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, field := range trajectoryStepTextKeys {
		raw, ok := obj[field]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			continue
		}
		if diff := ExtractDiff(text); diff != "" {
			return diff
		}
	}
	return ""
}
