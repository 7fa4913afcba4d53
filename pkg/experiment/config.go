// Package experiment implements C5: a two-phase orchestrator that tunes
// guidance for every repo in an experiment (Phase 1, via pkg/tuner) and
// then evaluates the tuned best against a held-out task set under the
// no-guidance and tuned-guidance conditions (Phase 2), spec §4.5.
package experiment

import (
	"fmt"
	"time"

	"dario.cat/mergo"
)

// Conditions the Phase 2 evaluation runs, spec §4.5.
const (
	ConditionNoGuidance    = "no-guidance"
	ConditionTunedGuidance = "tuned-guidance"
)

// RepoSpec is one repo's tuning inputs within an experiment (spec §4.5
// "for every repo in the experiment config").
type RepoSpec struct {
	Repo      string `yaml:"repo" json:"repo"`
	Commit    string `yaml:"commit" json:"commit"`
	TasksFile string `yaml:"tasks_file" json:"tasks_file"`
}

// Config is the top-level experiment configuration, loaded from
// experiment.yaml (supplemented from the Python original's ExperimentConfig).
type Config struct {
	ExperimentID string     `yaml:"experiment_id" json:"experiment_id"`
	Model        string     `yaml:"model" json:"model"`
	Repos        []RepoSpec `yaml:"repos" json:"repos"`

	// Tuning hyperparameters, threaded into a tuner.Config per repo.
	//
	// Iterations is a pointer for the same reason as tuner.Config.Iterations:
	// an omitted YAML key and an explicit "iterations: 0" both unmarshal to
	// the int zero value, but only the latter means "run init-only tuning"
	// (spec §4.4 T=0). A *int lets yaml.v3 tell them apart.
	Iterations        *int `yaml:"iterations" json:"iterations"`
	CandidatesPerIter int  `yaml:"candidates_per_iter" json:"candidates_per_iter"`
	TasksPerScore     int  `yaml:"tasks_per_score" json:"tasks_per_score"`
	CharBudget        int  `yaml:"char_budget" json:"char_budget"`

	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Phase 2 evaluation settings. EvalTasksFile holds the held-out task
	// set across all repos (spec §6 dataset loading is external glue; this
	// system reads it the same way pkg/task reads a tuning tasks file).
	EvalTasksFile       string `yaml:"eval_tasks_file" json:"eval_tasks_file"`
	EvalInstanceIDsFile string `yaml:"eval_instance_ids_file,omitempty" json:"eval_instance_ids_file,omitempty"`
	MaxWorkersEval      int    `yaml:"max_workers_eval" json:"max_workers_eval"`

	OutputDir string `yaml:"output_dir" json:"output_dir"`
	DryRun    bool   `yaml:"dry_run" json:"dry_run"`
}

// intPtr returns a pointer to a copy of n, for building the *int
// Iterations field from a literal.
func intPtr(n int) *int {
	return &n
}

// defaultIterations is the spec's documented default for Iterations.
var defaultIterations = 10

// defaultConfig mirrors tuner.defaultConfig plus experiment-specific
// defaults, merged onto a caller's Config wherever it left a zero value.
// Iterations is a pointer so mergo only fills it in when nil, never when it
// explicitly points at 0.
var defaultConfig = Config{
	Iterations:        &defaultIterations,
	CandidatesPerIter: 6,
	TasksPerScore:     20,
	CharBudget:        3200,
	Timeout:           10 * time.Minute,
	MaxWorkersEval:    4,
}

// WithDefaults fills zero-valued fields with the same defaults
// tuner.Config.WithDefaults applies, plus experiment-specific ones.
func (c Config) WithDefaults() Config {
	merged := c
	_ = mergo.Merge(&merged, defaultConfig)
	return merged
}

// Validate reports a descriptive error for any malformed field.
func (c Config) Validate() error {
	if c.ExperimentID == "" {
		return fmt.Errorf("experiment_id is required")
	}
	if len(c.Repos) == 0 {
		return fmt.Errorf("at least one repo is required")
	}
	for i, r := range c.Repos {
		if r.Repo == "" {
			return fmt.Errorf("repos[%d]: repo is required", i)
		}
		if r.TasksFile == "" {
			return fmt.Errorf("repos[%d]: tasks_file is required", i)
		}
	}
	if c.EvalTasksFile == "" {
		return fmt.Errorf("eval_tasks_file is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	return nil
}
