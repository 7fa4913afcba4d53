package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/asashepard/contexttune/pkg/atomicfile"
	"github.com/asashepard/contexttune/pkg/evaluator"
	"github.com/asashepard/contexttune/pkg/guidance"
	"github.com/asashepard/contexttune/pkg/jsonl"
	"github.com/asashepard/contexttune/pkg/runner"
	"github.com/asashepard/contexttune/pkg/scorer"
	"github.com/asashepard/contexttune/pkg/task"
	"github.com/asashepard/contexttune/pkg/tuner"
)

// TuningRunner is the narrow surface of *tuner.Tuner the orchestrator
// depends on for Phase 1, so tests can substitute a fake without real LLM
// or container calls.
type TuningRunner interface {
	Run(ctx context.Context, cfg tuner.Config) (guidance.Guidance, error)
}

// BatchHarness is the narrow surface of *evaluator.HarnessClient the
// orchestrator depends on for Phase 2's once-per-condition harness call.
type BatchHarness interface {
	EvaluateBatch(ctx context.Context, datasetName, predsPath, runID string, workers int) (evaluator.BatchResult, error)
}

// TaskLoader loads the held-out evaluation task set, shaped like
// tuner.TaskLoader so the same concrete loader (pkg/task.Load adapted to
// scorer.Task) can serve both.
type TaskLoader func(path string, limit int) ([]scorer.Task, error)

// Orchestrator runs C5's two phases for one experiment.
type Orchestrator struct {
	Tuner       TuningRunner
	AgentRunner scorer.AgentRunner
	Harness     BatchHarness
	LoadTasks   TaskLoader
	Model       string
	Logger      *slog.Logger
}

// New builds an Orchestrator. A nil logger falls back to slog.Default().
func New(tuningRunner TuningRunner, agentRunner scorer.AgentRunner, harness BatchHarness, loadTasks TaskLoader, model string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{Tuner: tuningRunner, AgentRunner: agentRunner, Harness: harness, LoadTasks: loadTasks, Model: model, Logger: logger}
}

type layout struct {
	statePath   string
	configPath  string
	summaryPath string
	guidanceDir string
	predsDir    string
	metricsDir  string
}

func newLayout(outputDir string) layout {
	return layout{
		statePath:   filepath.Join(outputDir, "experiment_state.json"),
		configPath:  filepath.Join(outputDir, "experiment_config.json"),
		summaryPath: filepath.Join(outputDir, "experiment_summary.json"),
		guidanceDir: filepath.Join(outputDir, "guidance"),
		predsDir:    filepath.Join(outputDir, "preds"),
		metricsDir:  filepath.Join(outputDir, "metrics"),
	}
}

func repoSlug(repo string) string {
	return strings.ReplaceAll(repo, "/", "__")
}

// ConditionResult is one condition's Phase 2 outcome (spec §4.5 "per-
// condition results").
type ConditionResult struct {
	Condition           string  `json:"condition"`
	Resolved            int     `json:"resolved"`
	Total               int     `json:"total"`
	Rate                float64 `json:"rate"`
	NonEmptyPatches     int     `json:"non_empty_patches"`
	PredictionsPath     string  `json:"predictions_path"`
	InstanceMetricsPath string  `json:"instance_metrics_path"`
}

// Summary is the final experiment output (spec §4.5 "Produce a summary
// object containing per-condition results and, when both conditions are
// present, the absolute delta tuned − no-guidance").
type Summary struct {
	ExperimentID  string                     `json:"experiment_id"`
	Model         string                     `json:"model"`
	Repos         []string                   `json:"repos"`
	Results       map[string]ConditionResult `json:"eval_results"`
	DeltaAbsolute *float64                   `json:"delta_absolute,omitempty"`
}

// Run executes Phase 1 (tuning) then Phase 2 (two-condition evaluation)
// for cfg, resuming from any persisted State (spec §4.5).
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (Summary, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Summary{}, fmt.Errorf("invalid experiment config: %w", err)
	}

	l := newLayout(cfg.OutputDir)

	var state State
	if StateExists(l.statePath) {
		var err error
		state, err = LoadState(l.statePath)
		if err != nil {
			return Summary{}, fmt.Errorf("load experiment state: %w", err)
		}
	} else {
		state = State{ExperimentID: cfg.ExperimentID}
		if err := state.Save(l.statePath); err != nil {
			return Summary{}, fmt.Errorf("persist initial experiment state: %w", err)
		}
	}

	if err := atomicfile.WriteJSON(l.configPath, cfg); err != nil {
		return Summary{}, fmt.Errorf("persist experiment config: %w", err)
	}

	guidanceMap, err := o.runTuningPhase(ctx, cfg, l, &state)
	if err != nil {
		return Summary{}, err
	}

	results, err := o.runEvalPhase(ctx, cfg, l, &state, guidanceMap)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		ExperimentID: cfg.ExperimentID,
		Model:        cfg.Model,
		Results:      results,
	}
	for _, r := range cfg.Repos {
		summary.Repos = append(summary.Repos, r.Repo)
	}
	if no, ok := results[ConditionNoGuidance]; ok {
		if tunedRes, ok := results[ConditionTunedGuidance]; ok {
			delta := tunedRes.Rate - no.Rate
			summary.DeltaAbsolute = &delta
		}
	}

	if err := atomicfile.WriteJSON(l.summaryPath, summary); err != nil {
		return Summary{}, fmt.Errorf("persist experiment summary: %w", err)
	}
	return summary, nil
}

// runTuningPhase runs Phase 1: C4 for every repo not already in
// state.TuningCompleted (spec §4.5 "Phase 1 — Tuning").
func (o *Orchestrator) runTuningPhase(ctx context.Context, cfg Config, l layout, state *State) (map[string]guidance.Guidance, error) {
	guidanceMap := make(map[string]guidance.Guidance, len(cfg.Repos))

	for _, rs := range cfg.Repos {
		repoDir := filepath.Join(l.guidanceDir, repoSlug(rs.Repo))
		// Same store root as tuner.Tuner uses for its OutputDir (repoDir), so
		// a best guidance the real tuner persisted is found here on resume.
		store := guidance.NewStore(repoDir)

		if state.HasTuned(rs.Repo) {
			if best, err := store.LoadBest(); err == nil {
				guidanceMap[rs.Repo] = best
				o.Logger.Info("skipping tuning, already completed", "repo", rs.Repo)
				continue
			}
			o.Logger.Warn("repo marked tuned but best guidance missing, re-tuning", "repo", rs.Repo)
		}

		o.Logger.Info("tuning guidance", "repo", rs.Repo)
		tc := tuner.Config{
			Repo:              rs.Repo,
			Commit:            rs.Commit,
			TasksFile:         rs.TasksFile,
			Model:             cfg.Model,
			Iterations:        cfg.Iterations,
			CandidatesPerIter: cfg.CandidatesPerIter,
			TasksPerScore:     cfg.TasksPerScore,
			CharBudget:        cfg.CharBudget,
			Timeout:           cfg.Timeout,
			OutputDir:         repoDir,
			DryRun:            cfg.DryRun,
		}

		best, err := o.Tuner.Run(ctx, tc)
		if err != nil {
			return nil, fmt.Errorf("tune %s: %w", rs.Repo, err)
		}
		// Persisted here too (not just by the tuner itself) so resume works
		// against any TuningRunner implementation, not only the real tuner.
		if err := store.SaveBest(best); err != nil {
			return nil, fmt.Errorf("save best guidance for %s: %w", rs.Repo, err)
		}
		guidanceMap[rs.Repo] = best

		state.MarkTuned(rs.Repo)
		if err := state.Save(l.statePath); err != nil {
			return nil, fmt.Errorf("persist state after tuning %s: %w", rs.Repo, err)
		}
	}

	return guidanceMap, nil
}

// runEvalPhase runs Phase 2: every held-out instance under both conditions
// (spec §4.5 "Phase 2 — Evaluation").
func (o *Orchestrator) runEvalPhase(ctx context.Context, cfg Config, l layout, state *State, guidanceMap map[string]guidance.Guidance) (map[string]ConditionResult, error) {
	tasks, err := o.LoadTasks(cfg.EvalTasksFile, 0)
	if err != nil {
		return nil, fmt.Errorf("load eval tasks: %w", err)
	}

	if cfg.EvalInstanceIDsFile != "" {
		allow, err := task.LoadIDs(cfg.EvalInstanceIDsFile)
		if err != nil {
			return nil, fmt.Errorf("load eval instance allow-list: %w", err)
		}
		filtered := tasks[:0:0]
		for _, t := range tasks {
			if allow[t.InstanceID] {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	byRepo := make(map[string][]scorer.Task)
	for _, t := range tasks {
		byRepo[t.Repo] = append(byRepo[t.Repo], t)
	}

	results := make(map[string]ConditionResult, 2)
	for _, condition := range []string{ConditionNoGuidance, ConditionTunedGuidance} {
		result, err := o.runCondition(ctx, cfg, l, state, condition, byRepo, guidanceMap)
		if err != nil {
			return nil, fmt.Errorf("evaluate condition %s: %w", condition, err)
		}
		results[condition] = result
	}
	return results, nil
}

func (o *Orchestrator) runCondition(ctx context.Context, cfg Config, l layout, state *State, condition string, byRepo map[string][]scorer.Task, guidanceMap map[string]guidance.Guidance) (ConditionResult, error) {
	predsPath := filepath.Join(l.predsDir, condition, "preds.jsonl")
	metricsPath := filepath.Join(l.metricsDir, condition+"_instances.jsonl")

	completed, err := jsonl.ReadAll[evalPrediction](predsPath)
	if err != nil {
		return ConditionResult{}, fmt.Errorf("read predictions log: %w", err)
	}
	completedIDs := make(map[string]bool, len(completed))
	for _, p := range completed {
		completedIDs[p.InstanceID] = true
	}

	for repo, repoTasks := range byRepo {
		if state.HasEvaluated(repo, condition) {
			continue
		}

		guidanceText := ""
		if condition == ConditionTunedGuidance {
			if g, ok := guidanceMap[repo]; ok {
				guidanceText = g.Render()
			}
		}

		for _, et := range repoTasks {
			if completedIDs[et.InstanceID] {
				continue
			}

			var result runner.AgentRunResult
			if cfg.DryRun {
				result = runner.AgentRunResult{Status: runner.StatusDryRun}
			} else {
				result = o.AgentRunner.Run(ctx, runner.TaskLike{
					InstanceID: et.InstanceID,
					Repo:       et.Repo,
					ImageTag:   et.ImageTag,
				}, et.ProblemStatement, guidanceText)
			}

			if err := atomicfile.AppendLine(predsPath, mustMarshal(evalPrediction{
				InstanceID:      et.InstanceID,
				ModelNameOrPath: cfg.Model,
				ModelPatch:      result.Patch,
			})); err != nil {
				return ConditionResult{}, fmt.Errorf("append prediction for %s: %w", et.InstanceID, err)
			}
			if err := atomicfile.AppendLine(metricsPath, mustMarshal(evalMetrics{
				InstanceID:    et.InstanceID,
				Repo:          repo,
				Condition:     condition,
				ElapsedS:      result.ElapsedS,
				PatchNonEmpty: result.PatchNonEmpty(),
				Status:        result.Status,
				Error:         result.Error,
				TokenUsage:    result.TokenUsage,
			})); err != nil {
				return ConditionResult{}, fmt.Errorf("append metrics for %s: %w", et.InstanceID, err)
			}

			o.Logger.Info("evaluated instance", "repo", repo, "condition", condition, "instance_id", et.InstanceID, "status", result.Status)
		}

		state.MarkEvaluated(repo, condition)
		if err := state.Save(l.statePath); err != nil {
			return ConditionResult{}, fmt.Errorf("persist state after evaluating %s/%s: %w", repo, condition, err)
		}
	}

	runID := fmt.Sprintf("%s__%s__%s", cfg.ExperimentID, condition, uuid.NewString())
	datasetName := cfg.ExperimentID
	batch, err := o.Harness.EvaluateBatch(ctx, datasetName, predsPath, runID, cfg.MaxWorkersEval)
	if err != nil {
		return ConditionResult{}, fmt.Errorf("harness invocation: %w", err)
	}

	nonEmpty, err := countNonEmptyPatches(metricsPath)
	if err != nil {
		return ConditionResult{}, fmt.Errorf("count non-empty patches: %w", err)
	}

	result := ConditionResult{
		Condition:           condition,
		Resolved:            len(batch.Resolved),
		Total:               batch.Total,
		NonEmptyPatches:     nonEmpty,
		PredictionsPath:     predsPath,
		InstanceMetricsPath: metricsPath,
	}
	if result.Total > 0 {
		result.Rate = float64(result.Resolved) / float64(result.Total)
	}
	return result, nil
}

type evalPrediction struct {
	InstanceID      string `json:"instance_id"`
	ModelNameOrPath string `json:"model_name_or_path"`
	ModelPatch      string `json:"model_patch"`
}

type evalMetrics struct {
	InstanceID    string            `json:"instance_id"`
	Repo          string            `json:"repo"`
	Condition     string            `json:"condition"`
	ElapsedS      float64           `json:"elapsed_s"`
	PatchNonEmpty bool              `json:"patch_non_empty"`
	Status        runner.Status     `json:"status"`
	Error         string            `json:"error,omitempty"`
	TokenUsage    runner.TokenUsage `json:"token_usage"`
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Every type passed here is a local struct with no unmarshalable
		// fields, so Marshal can only fail if that invariant is broken.
		panic(fmt.Sprintf("experiment: marshal record: %v", err))
	}
	return data
}

func countNonEmptyPatches(metricsPath string) (int, error) {
	records, err := jsonl.ReadAll[evalMetrics](metricsPath)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range records {
		if r.PatchNonEmpty {
			n++
		}
	}
	return n, nil
}
