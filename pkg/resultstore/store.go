package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/asashepard/contexttune/pkg/experiment"
	"github.com/asashepard/contexttune/pkg/tuner"
)

// RecordCheckpoint mirrors one repo's tuning progress into the store: the
// latest (best_version, best_score, completed_iterations) snapshot plus any
// history entries not yet recorded. pkg/tuner and pkg/experiment do not call
// it; the store only changes when a caller invokes it. The JSON state file
// remains authoritative.
func (s *Store) RecordCheckpoint(ctx context.Context, repo, commit string, state tuner.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tuning_checkpoints (repo, commit_sha, best_version, best_score, completed_iterations)
		VALUES ($1, $2, $3, $4, $5)`,
		repo, commit, state.BestVersion, state.BestScore, state.CompletedIterations)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	for _, h := range state.History {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tuning_history_entries
				(repo, version, score, entry_type, iteration, candidate_index, resolved, total, improved_best)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (repo, version) DO NOTHING`,
			repo, h.Version, h.Score, h.Type, h.Iteration, h.CandidateIndex, h.Resolved, h.Total, h.ImprovedBest)
		if err != nil {
			return fmt.Errorf("insert history entry v%d: %w", h.Version, err)
		}
	}

	return tx.Commit()
}

// RecordEvalResult mirrors one experiment condition's Phase 2 outcome,
// upserted by (experiment_id, repo, condition) so re-running a completed
// evaluation just refreshes the row.
func (s *Store) RecordEvalResult(ctx context.Context, experimentID, repo string, result experiment.ConditionResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment_eval_results
			(experiment_id, repo, condition, resolved, total, rate, non_empty_patches)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (experiment_id, repo, condition) DO UPDATE SET
			resolved = EXCLUDED.resolved,
			total = EXCLUDED.total,
			rate = EXCLUDED.rate,
			non_empty_patches = EXCLUDED.non_empty_patches,
			recorded_at = now()`,
		experimentID, repo, result.Condition, result.Resolved, result.Total, result.Rate, result.NonEmptyPatches)
	if err != nil {
		return fmt.Errorf("upsert eval result for %s/%s/%s: %w", experimentID, repo, result.Condition, err)
	}
	return nil
}

// RepoState is the latest tuning snapshot for one repo, served by
// pkg/statusapi's GET /repos/{repo}/state.
type RepoState struct {
	Repo                string  `json:"repo"`
	CommitSHA           string  `json:"commit_sha"`
	BestVersion         int     `json:"best_version"`
	BestScore           float64 `json:"best_score"`
	CompletedIterations int     `json:"completed_iterations"`
}

// ErrNotFound is returned when a query finds no matching row.
var ErrNotFound = errors.New("resultstore: not found")

// RepoState returns the most recently recorded checkpoint for repo.
func (s *Store) RepoState(ctx context.Context, repo string) (RepoState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT repo, commit_sha, best_version, best_score, completed_iterations
		FROM tuning_checkpoints
		WHERE repo = $1
		ORDER BY recorded_at DESC
		LIMIT 1`, repo)

	var out RepoState
	if err := row.Scan(&out.Repo, &out.CommitSHA, &out.BestVersion, &out.BestScore, &out.CompletedIterations); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RepoState{}, ErrNotFound
		}
		return RepoState{}, fmt.Errorf("query repo state for %s: %w", repo, err)
	}
	return out, nil
}

// ExperimentSummary is every condition recorded for one experiment, served
// by pkg/statusapi's GET /experiments/{id}/summary.
type ExperimentSummary struct {
	ExperimentID string                       `json:"experiment_id"`
	Conditions   []experiment.ConditionResult `json:"conditions"`
}

// ExperimentSummary returns all recorded condition results for experimentID,
// across every repo that contributed to it.
func (s *Store) ExperimentSummary(ctx context.Context, experimentID string) (ExperimentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition, resolved, total, rate, non_empty_patches
		FROM experiment_eval_results
		WHERE experiment_id = $1
		ORDER BY condition`, experimentID)
	if err != nil {
		return ExperimentSummary{}, fmt.Errorf("query experiment summary for %s: %w", experimentID, err)
	}
	defer rows.Close()

	out := ExperimentSummary{ExperimentID: experimentID}
	for rows.Next() {
		var cr experiment.ConditionResult
		if err := rows.Scan(&cr.Condition, &cr.Resolved, &cr.Total, &cr.Rate, &cr.NonEmptyPatches); err != nil {
			return ExperimentSummary{}, fmt.Errorf("scan experiment summary row: %w", err)
		}
		out.Conditions = append(out.Conditions, cr)
	}
	if err := rows.Err(); err != nil {
		return ExperimentSummary{}, fmt.Errorf("iterate experiment summary rows: %w", err)
	}
	if len(out.Conditions) == 0 {
		return ExperimentSummary{}, ErrNotFound
	}
	return out, nil
}
