package tuner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/asashepard/contexttune/pkg/guidance"
	"github.com/asashepard/contexttune/pkg/scorer"
)

// Initializer builds G0 for a fresh repo (spec §4.4 "Initialization").
// Implemented by guidance.InitializeGuidance in production; an interface
// here so tests can substitute a fake without real repo checkouts or LLM
// calls.
type Initializer func(ctx context.Context, repo, commit, repoDir string, charBudget int) (guidance.Guidance, error)

// TaskLoader loads the task set a Config's TasksFile names. Substitutable
// for the same reason as Initializer.
type TaskLoader func(tasksFile string, limit int) ([]scorer.Task, error)

// CandidateProposer is the narrow surface of *Proposer the tuner depends
// on, so tests can substitute a fake without real LLM calls.
type CandidateProposer interface {
	ProposeCandidates(ctx context.Context, best guidance.Guidance, bestScore float64, k int, history []VersionScore, timeout time.Duration) ([]guidance.Guidance, error)
}

// Tuner runs the hill-climbing state machine for one repository.
type Tuner struct {
	Proposer CandidateProposer
	Scorer   *scorer.Scorer
	Init     Initializer
	LoadTask TaskLoader
	Logger   *slog.Logger
}

// New builds a Tuner. A nil logger falls back to slog.Default().
func New(proposer CandidateProposer, sc *scorer.Scorer, init Initializer, loadTasks TaskLoader, logger *slog.Logger) *Tuner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tuner{Proposer: proposer, Scorer: sc, Init: init, LoadTask: loadTasks, Logger: logger}
}

// layout is the fixed set of paths a tuning run's output directory holds.
type layout struct {
	statePath   string
	guidanceDir string
	predsDir    string
	repoDir     string
}

func newLayout(outputDir string) layout {
	return layout{
		statePath:   filepath.Join(outputDir, "tuning_state.json"),
		guidanceDir: outputDir,
		predsDir:    filepath.Join(outputDir, "preds"),
		repoDir:     filepath.Join(outputDir, "repo"),
	}
}

// Run executes the full state machine for cfg: resume-or-init, then the
// propose-score-adopt loop for iterations completed_iterations+1..T, then
// persist the final best guidance (spec §4.4 "State machine").
func (tu *Tuner) Run(ctx context.Context, cfg Config) (guidance.Guidance, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return guidance.Guidance{}, fmt.Errorf("invalid tuning config: %w", err)
	}

	l := newLayout(cfg.OutputDir)
	store := guidance.NewStore(l.guidanceDir)

	if cfg.DryRun {
		g0 := guidance.New(cfg.Repo, cfg.Commit, []string{"- (dry run)"}, cfg.CharBudget)
		if err := store.Save(g0); err != nil {
			return guidance.Guidance{}, fmt.Errorf("save dry-run g0: %w", err)
		}
		if err := store.SaveBest(g0); err != nil {
			return guidance.Guidance{}, fmt.Errorf("save dry-run best: %w", err)
		}
		tu.Logger.Info("dry run, skipping tuning loop", "repo", cfg.Repo)
		return g0, nil
	}

	tasks, err := tu.LoadTask(cfg.TasksFile, 0)
	if err != nil {
		return guidance.Guidance{}, fmt.Errorf("load tasks: %w", err)
	}

	state, best, bestScore, err := tu.resumeOrInit(ctx, cfg, l, store, tasks)
	if err != nil {
		return guidance.Guidance{}, err
	}

	startIter := state.CompletedIterations + 1
	for t := startIter; t <= *cfg.Iterations; t++ {
		tu.Logger.Info("tuning iteration starting", "repo", cfg.Repo, "iteration", t, "of", *cfg.Iterations, "best_version", best.Version, "best_score", bestScore)

		candidates, err := tu.Proposer.ProposeCandidates(ctx, best, bestScore, cfg.CandidatesPerIter, state.ScoreHistory(), cfg.Timeout)
		if err != nil {
			tu.Logger.Warn("proposer call failed, treating as zero candidates", "repo", cfg.Repo, "iteration", t, "error", err)
			candidates = nil
		}

		if len(candidates) == 0 {
			tu.Logger.Info("no usable candidates, iteration recorded as completed with no change", "repo", cfg.Repo, "iteration", t)
			state.CompletedIterations = t
			if err := state.Save(l.statePath); err != nil {
				return guidance.Guidance{}, fmt.Errorf("persist state after empty iteration %d: %w", t, err)
			}
			continue
		}

		// Candidate versions continue from the highest version recorded so
		// far, so an iteration that adopts nothing does not reuse numbers.
		baseVersion := best.Version
		for _, h := range state.History {
			if h.Version > baseVersion {
				baseVersion = h.Version
			}
		}

		for ci, candidate := range candidates {
			version := baseVersion + ci + 1
			candidate = candidate.Copy(guidance.WithVersion(version))

			predsDir := filepath.Join(l.predsDir, fmt.Sprintf("iter%02d", t), fmt.Sprintf("c%d", ci))
			result, err := tu.Scorer.ScoreDetailed(ctx, candidate, tasks, cfg.TasksPerScore, predsDir)
			if err != nil {
				tu.Logger.Warn("scoring candidate failed, recording score 0", "repo", cfg.Repo, "iteration", t, "candidate_index", ci, "error", err)
				state.History = append(state.History, HistoryEntry{
					Version:        version,
					Score:          0,
					Type:           "candidate",
					Iteration:      t,
					CandidateIndex: ci,
				})
				if err := state.Save(l.statePath); err != nil {
					return guidance.Guidance{}, fmt.Errorf("persist state after failed candidate v%d: %w", version, err)
				}
				continue
			}

			if err := store.Save(candidate); err != nil {
				return guidance.Guidance{}, fmt.Errorf("save candidate v%d: %w", version, err)
			}

			improved := result.Rate > bestScore
			entry := HistoryEntry{
				Version:             version,
				Score:               result.Rate,
				Type:                "candidate",
				Iteration:           t,
				CandidateIndex:      ci,
				Resolved:            result.Resolved,
				Total:               result.Total,
				NonEmptyPatches:     result.NonEmptyPatches,
				ElapsedS:            result.TotalElapsedS,
				InstanceMetricsPath: result.InstanceMetricsPath,
				ImprovedBest:        improved,
			}
			state.History = append(state.History, entry)

			if improved {
				tu.Logger.Info("candidate improves best", "repo", cfg.Repo, "version", version, "from_score", bestScore, "to_score", result.Rate)
				best = candidate
				bestScore = result.Rate
				state.BestVersion = version
				state.BestScore = bestScore
			} else {
				tu.Logger.Info("candidate did not improve best", "repo", cfg.Repo, "version", version, "score", result.Rate, "best_score", bestScore)
			}
		}

		state.CompletedIterations = t
		if err := state.Save(l.statePath); err != nil {
			return guidance.Guidance{}, fmt.Errorf("persist state after iteration %d: %w", t, err)
		}
	}

	if err := store.SaveBest(best); err != nil {
		return guidance.Guidance{}, fmt.Errorf("save best guidance: %w", err)
	}
	tu.Logger.Info("tuning complete", "repo", cfg.Repo, "best_version", best.Version, "best_score", bestScore)
	return best, nil
}

// resumeOrInit loads an existing TuningState and its best guidance if
// present; otherwise it builds and scores G0 fresh (spec §4.4 "Resume",
// "Initialization").
func (tu *Tuner) resumeOrInit(ctx context.Context, cfg Config, l layout, store *guidance.Store, tasks []scorer.Task) (State, guidance.Guidance, float64, error) {
	if StateExists(l.statePath) {
		state, err := LoadState(l.statePath)
		if err != nil {
			return State{}, guidance.Guidance{}, 0, fmt.Errorf("load tuning state: %w", err)
		}
		if store.Exists(state.BestVersion) {
			best, err := store.Load(state.BestVersion)
			if err != nil {
				return State{}, guidance.Guidance{}, 0, fmt.Errorf("load best guidance v%d: %w", state.BestVersion, err)
			}
			tu.Logger.Info("resuming tuning run", "repo", cfg.Repo, "best_version", state.BestVersion, "best_score", state.BestScore, "completed_iterations", state.CompletedIterations)
			return state, best, state.BestScore, nil
		}
		tu.Logger.Warn("tuning state present but best guidance missing, re-initializing", "repo", cfg.Repo, "best_version", state.BestVersion)
	}

	return tu.initAndScore(ctx, cfg, l, store, tasks)
}

func (tu *Tuner) initAndScore(ctx context.Context, cfg Config, l layout, store *guidance.Store, tasks []scorer.Task) (State, guidance.Guidance, float64, error) {
	tu.Logger.Info("initializing guidance", "repo", cfg.Repo)

	g0, err := tu.Init(ctx, cfg.Repo, cfg.Commit, l.repoDir, cfg.CharBudget)
	if err != nil {
		return State{}, guidance.Guidance{}, 0, fmt.Errorf("initialize guidance: %w", err)
	}
	if err := store.Save(g0); err != nil {
		return State{}, guidance.Guidance{}, 0, fmt.Errorf("save g0: %w", err)
	}

	result, err := tu.Scorer.ScoreDetailed(ctx, g0, tasks, cfg.TasksPerScore, filepath.Join(l.predsDir, "init"))
	if err != nil {
		return State{}, guidance.Guidance{}, 0, fmt.Errorf("score g0: %w", err)
	}

	state := State{Repo: cfg.Repo, BestVersion: g0.Version, BestScore: result.Rate}
	state.History = append(state.History, HistoryEntry{
		Version:             0,
		Score:               result.Rate,
		Type:                "init",
		Resolved:            result.Resolved,
		Total:               result.Total,
		InstanceMetricsPath: result.InstanceMetricsPath,
	})
	if err := state.Save(l.statePath); err != nil {
		return State{}, guidance.Guidance{}, 0, fmt.Errorf("persist initial state: %w", err)
	}

	tu.Logger.Info("g0 scored", "repo", cfg.Repo, "score", result.Rate)
	return state, g0, result.Rate, nil
}
