package experiment

import (
	"encoding/json"
	"os"

	"github.com/asashepard/contexttune/pkg/atomicfile"
)

// State is the persistent state of C5: which repos have finished tuning and
// which (repo, condition) pairs have finished evaluation (spec §3
// "ExperimentState"). It monotonically grows.
type State struct {
	ExperimentID    string   `json:"experiment_id"`
	CreatedAt       string   `json:"created_at"`
	TuningCompleted []string `json:"tuning_completed"`
	EvalCompleted   []string `json:"eval_completed"` // "<repo>__<condition>"
}

func evalKey(repo, condition string) string {
	return repo + "__" + condition
}

// HasTuned reports whether repo's Phase 1 tuning has already completed.
func (s State) HasTuned(repo string) bool {
	for _, r := range s.TuningCompleted {
		if r == repo {
			return true
		}
	}
	return false
}

// MarkTuned records repo as tuned. Idempotent.
func (s *State) MarkTuned(repo string) {
	if s.HasTuned(repo) {
		return
	}
	s.TuningCompleted = append(s.TuningCompleted, repo)
}

// HasEvaluated reports whether (repo, condition) has already completed
// Phase 2 evaluation.
func (s State) HasEvaluated(repo, condition string) bool {
	key := evalKey(repo, condition)
	for _, k := range s.EvalCompleted {
		if k == key {
			return true
		}
	}
	return false
}

// MarkEvaluated records (repo, condition) as evaluated. Idempotent.
func (s *State) MarkEvaluated(repo, condition string) {
	if s.HasEvaluated(repo, condition) {
		return
	}
	s.EvalCompleted = append(s.EvalCompleted, evalKey(repo, condition))
}

// Save persists the state via write-temp-fsync-rename (spec §3
// "append-then-replace").
func (s State) Save(path string) error {
	return atomicfile.WriteJSON(path, s)
}

// LoadState reads a previously saved State.
func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, err
	}
	return s, nil
}

// StateExists reports whether a state file is present at path.
func StateExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
