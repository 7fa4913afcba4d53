// Package evaluator implements the predicate that turns a generated patch
// into a pass/fail verdict, and the external test-harness client it
// delegates to for anything beyond the empty-patch short circuit (spec
// §4.3 "Evaluator", §6.7 "Harness interface").
package evaluator

import (
	"context"
	"strings"
)

// Task is the subset of task.Task the evaluator needs; kept local so this
// package does not depend on pkg/task's file-format concerns.
type Task struct {
	InstanceID  string
	DatasetName string
}

// Evaluate is the predicate signature used throughout the scorer and
// tuner: evaluate(task, patch) -> bool (spec §4.3).
type Evaluate func(ctx context.Context, t Task, patch string) bool

// Default returns false for an empty or whitespace-only patch without
// ever invoking the harness; otherwise it delegates to client. Harness
// failures are counted as failures, not errors, so the hill-climbing
// signal stays monotone (spec §4.3).
func Default(client *HarnessClient) Evaluate {
	return func(ctx context.Context, t Task, patch string) bool {
		if strings.TrimSpace(patch) == "" {
			return false
		}
		passed, err := client.Check(ctx, t.InstanceID, t.DatasetName, patch)
		if err != nil {
			return false
		}
		return passed
	}
}
