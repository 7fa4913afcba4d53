package tuner

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/asashepard/contexttune/pkg/atomicfile"
)

// HistoryEntry is one append-only record in TuningState.History: either
// the init event (type "init", version 0) or a scored candidate (type
// "candidate"), mirroring the Python original's history dict shape.
type HistoryEntry struct {
	Version             int     `json:"version"`
	Score               float64 `json:"score"`
	Type                string  `json:"type"`
	Iteration           int     `json:"iteration,omitempty"`
	CandidateIndex      int     `json:"candidate_index,omitempty"`
	Resolved            int     `json:"resolved"`
	Total               int     `json:"total"`
	NonEmptyPatches     int     `json:"non_empty_patches,omitempty"`
	ElapsedS            float64 `json:"elapsed_s,omitempty"`
	InstanceMetricsPath string  `json:"instance_metrics_path,omitempty"`
	ImprovedBest        bool    `json:"improved_best,omitempty"`
}

// State is the persistent record of one repo's tuning progress, read back
// on the next invocation to resume at the right iteration (spec §4.4
// "Resume").
type State struct {
	Repo                string         `json:"repo"`
	BestVersion         int            `json:"best_version"`
	BestScore           float64        `json:"best_score"`
	History             []HistoryEntry `json:"history"`
	CompletedIterations int            `json:"completed_iterations"`
}

// ScoreHistory returns the (version, score) pairs History carries, the
// shape the proposer's prompt is built from.
func (s State) ScoreHistory() []VersionScore {
	out := make([]VersionScore, 0, len(s.History))
	for _, h := range s.History {
		out = append(out, VersionScore{Version: h.Version, Score: h.Score})
	}
	return out
}

// VersionScore is one (version, score) pair for the proposer's history context.
type VersionScore struct {
	Version int
	Score   float64
}

// Save persists State via atomicfile's write-temp-fsync-rename.
func (s State) Save(path string) error {
	if err := atomicfile.WriteJSON(path, s); err != nil {
		return fmt.Errorf("save tuning state to %s: %w", path, err)
	}
	return nil
}

// LoadState reads a State from path.
func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, fmt.Errorf("load tuning state from %s: %w", path, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decode tuning state from %s: %w", path, err)
	}
	return s, nil
}

// StateExists reports whether a TuningState file is present at path.
func StateExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
