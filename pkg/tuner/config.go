// Package tuner implements C4: the hill-climbing state machine that
// proposes, scores, and adopts guidance candidates over a bounded number
// of iterations, resuming cleanly from a persisted TuningState (spec §4.4).
package tuner

import (
	"fmt"
	"time"

	"dario.cat/mergo"

	"github.com/asashepard/contexttune/pkg/guidance"
)

// MaxIterations is the hard cap on TuningConfig.Iterations (spec §4.4:
// "T ∈ [0, T_MAX=20]").
const MaxIterations = 20

// Config holds every knob for one repository's tuning run (spec §4.4
// "Inputs").
type Config struct {
	Repo      string
	Commit    string
	TasksFile string
	Model     string

	// Iterations is T ∈ [0, MaxIterations]. A plain int can't tell an
	// explicit T=0 (S1, init-only tuning) apart from "field left unset,
	// use the default" — both are the zero value — so this is a pointer:
	// nil means unset, a pointer to 0 means the caller asked for T=0.
	Iterations        *int // T
	CandidatesPerIter int  // K
	TasksPerScore     int  // N

	CharBudget int

	Timeout   time.Duration
	OutputDir string

	// DryRun skips every LLM and agent invocation and synthesizes a
	// placeholder G0 for pipeline smoke-testing (spec.md's Non-goals don't
	// name this; supplemented from the Python original's
	// loop/orchestrator.py dry_run branch).
	DryRun bool
}

// Validate enforces the invariants spec §4.4 states as fatal misconfigurations.
func (c Config) Validate() error {
	if c.Iterations == nil {
		return fmt.Errorf("iterations is required (WithDefaults fills it when unset)")
	}
	if *c.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0, got %d", *c.Iterations)
	}
	if *c.Iterations > MaxIterations {
		return fmt.Errorf("iterations=%d exceeds cap %d", *c.Iterations, MaxIterations)
	}
	if c.CandidatesPerIter <= 0 {
		return fmt.Errorf("candidates_per_iter must be > 0, got %d", c.CandidatesPerIter)
	}
	if c.TasksPerScore <= 0 {
		return fmt.Errorf("tasks_per_score must be > 0, got %d", c.TasksPerScore)
	}
	if c.TasksFile == "" {
		return fmt.Errorf("tasks_file is required")
	}
	if c.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	return nil
}

// intPtr returns a pointer to a copy of n, for building *int config fields
// from literals.
func intPtr(n int) *int {
	return &n
}

// defaultIterations is the spec's documented default for Iterations.
var defaultIterations = 10

// defaultConfig holds the spec's documented default values, merged onto a
// caller's Config wherever it left a field at its zero value. Iterations
// is a pointer, so mergo only fills it in when the caller's Config left it
// nil — an explicit *int pointing at 0 is a real T=0 and survives the merge.
var defaultConfig = Config{
	Iterations:        &defaultIterations,
	CandidatesPerIter: 6,
	TasksPerScore:     20,
	CharBudget:        guidance.DefaultCharBudget,
	Timeout:           10 * time.Minute,
}

// WithDefaults fills in zero-valued optional fields with the spec's
// documented defaults, the way tarsy's config loader merges built-in
// defaults under a user-supplied config (pkg/config/loader.go).
func (c Config) WithDefaults() Config {
	merged := c
	_ = mergo.Merge(&merged, defaultConfig)
	return merged
}
