// Package scorer implements C3: scoring one guidance candidate over up to
// N tasks via the agent-run driver and an evaluator predicate, with
// per-(repo,version) resumable JSONL logs (spec §4.3).
package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/asashepard/contexttune/pkg/atomicfile"
	"github.com/asashepard/contexttune/pkg/evaluator"
	"github.com/asashepard/contexttune/pkg/guidance"
	"github.com/asashepard/contexttune/pkg/jsonl"
	"github.com/asashepard/contexttune/pkg/runner"
)

// Task is the unit of work the scorer drives through the runner and
// evaluator; defined locally to keep this package's dependency surface
// narrow (mirrors evaluator.Task and runner.TaskLike).
type Task struct {
	InstanceID       string
	Repo             string
	BaseCommit       string
	ProblemStatement string
	ImageTag         string
	DatasetName      string
}

// prediction is one line of preds.jsonl, matching spec §6.3's canonical
// schema ("instance_id, model_name_or_path, model_patch") — the same wire
// shape pkg/experiment's evalPrediction uses, so any harness or tooling
// built against §6.3 parses both C3's and C5's predictions logs alike.
type prediction struct {
	InstanceID      string `json:"instance_id"`
	ModelNameOrPath string `json:"model_name_or_path"`
	ModelPatch      string `json:"model_patch"`
}

// metricsRecord is one line of instance_metrics.jsonl, matching spec §6.4's
// schema ("instance_id, patch_non_empty, status, error, elapsed_s").
type metricsRecord struct {
	InstanceID    string            `json:"instance_id"`
	ElapsedS      float64           `json:"elapsed_s"`
	Status        runner.Status     `json:"status"`
	Error         string            `json:"error,omitempty"`
	TokenUsage    runner.TokenUsage `json:"token_usage"`
	PatchNonEmpty bool              `json:"patch_non_empty"`
	Passed        bool              `json:"passed"`
}

// Result is the detailed outcome of scoring one guidance candidate (spec
// §4.3, grounded on the Python original's ScoreResult).
type Result struct {
	Rate                float64
	Resolved            int
	Total               int
	NonEmptyPatches     int
	TotalElapsedS       float64
	TokenUsage          runner.TokenUsage
	PredictionsPath     string
	InstanceMetricsPath string
}

// AgentRunner is the narrow surface of runner.Driver the scorer depends
// on, so tests can substitute a fake without spinning up real containers.
type AgentRunner interface {
	Run(ctx context.Context, t runner.TaskLike, problemStatement, guidanceText string) runner.AgentRunResult
}

// Scorer ties an AgentRunner and an Evaluate predicate together and
// persists its resumable logs under a directory keyed by (repo, version).
type Scorer struct {
	Driver AgentRunner
	Eval   evaluator.Evaluate
	Model  string
	Logger *slog.Logger
}

// New builds a Scorer. A nil logger falls back to slog.Default().
func New(driver AgentRunner, eval evaluator.Evaluate, model string, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{Driver: driver, Eval: eval, Model: model, Logger: logger}
}

// Score scores g against tasks (truncated to n if n > 0) and returns only
// the resolve rate, matching the Python original's compatibility wrapper.
func (s *Scorer) Score(ctx context.Context, g guidance.Guidance, tasks []Task, n int, predsDir string) (float64, error) {
	detailed, err := s.ScoreDetailed(ctx, g, tasks, n, predsDir)
	if err != nil {
		return 0, err
	}
	return detailed.Rate, nil
}

// ScoreDetailed runs up to n tasks through the driver with g's rendered
// text prepended, evaluates each patch, and returns full metrics. Tasks
// already present in the predictions log at predsDir are not re-run; their
// recorded metrics are reused as-is (spec §4.3 "Resume semantics").
func (s *Scorer) ScoreDetailed(ctx context.Context, g guidance.Guidance, tasks []Task, n int, predsDir string) (Result, error) {
	if n > 0 && len(tasks) > n {
		tasks = tasks[:n]
	}
	if len(tasks) == 0 {
		return Result{}, nil
	}

	predsPath := filepath.Join(predsDir, "preds.jsonl")
	metricsPath := filepath.Join(predsDir, "instance_metrics.jsonl")

	completed, err := jsonl.ReadAll[prediction](predsPath)
	if err != nil {
		return Result{}, fmt.Errorf("read predictions log: %w", err)
	}
	completedPatches := make(map[string]string, len(completed))
	for _, p := range completed {
		completedPatches[p.InstanceID] = p.ModelPatch
	}

	completedMetrics, err := jsonl.ReadAll[metricsRecord](metricsPath)
	if err != nil {
		return Result{}, fmt.Errorf("read metrics log: %w", err)
	}
	metricsByID := make(map[string]metricsRecord, len(completedMetrics))
	for _, m := range completedMetrics {
		metricsByID[m.InstanceID] = m
	}

	guidanceText := g.Render()

	var res Result
	res.PredictionsPath = predsPath
	res.InstanceMetricsPath = metricsPath

	for _, task := range tasks {
		res.Total++

		var rec metricsRecord
		var patch string

		if p, ok := completedPatches[task.InstanceID]; ok {
			patch = p
			rec = metricsByID[task.InstanceID]
		} else {
			result := s.Driver.Run(ctx, runner.TaskLike{
				InstanceID: task.InstanceID,
				Repo:       task.Repo,
				ImageTag:   task.ImageTag,
			}, task.ProblemStatement, guidanceText)

			patch = result.Patch
			passed := s.Eval(ctx, evaluator.Task{InstanceID: task.InstanceID, DatasetName: task.DatasetName}, patch)

			rec = metricsRecord{
				InstanceID:    task.InstanceID,
				ElapsedS:      result.ElapsedS,
				Status:        result.Status,
				Error:         result.Error,
				TokenUsage:    result.TokenUsage,
				PatchNonEmpty: result.PatchNonEmpty(),
				Passed:        passed,
			}

			if err := atomicfile.AppendLine(predsPath, mustMarshal(prediction{
				InstanceID:      task.InstanceID,
				ModelNameOrPath: s.Model,
				ModelPatch:      patch,
			})); err != nil {
				return res, fmt.Errorf("append prediction for %s: %w", task.InstanceID, err)
			}
			if err := atomicfile.AppendLine(metricsPath, mustMarshal(rec)); err != nil {
				return res, fmt.Errorf("append metrics for %s: %w", task.InstanceID, err)
			}

			s.Logger.Info("scored task", "instance_id", task.InstanceID, "passed", passed, "status", result.Status)
		}

		if rec.PatchNonEmpty {
			res.NonEmptyPatches++
		}
		res.TotalElapsedS += rec.ElapsedS
		res.TokenUsage.PromptTokens += rec.TokenUsage.PromptTokens
		res.TokenUsage.CompletionTokens += rec.TokenUsage.CompletionTokens
		res.TokenUsage.TotalTokens += rec.TokenUsage.TotalTokens

		if rec.Passed {
			res.Resolved++
		}
	}

	if res.Total > 0 {
		res.Rate = float64(res.Resolved) / float64(res.Total)
	}
	return res, nil
}

// VersionTag formats the (repo, version) directory name the scorer's logs
// are keyed by, mirroring the Python original's "{repo}_v{version}" tag.
func VersionTag(repo string, version int) string {
	safe := strings.ReplaceAll(repo, "/", "__")
	return fmt.Sprintf("%s_v%d", safe, version)
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Every type passed here is a local struct with no unmarshalable
		// fields (no channels, funcs, or cyclic pointers), so Marshal can
		// only fail if that invariant is broken.
		panic(fmt.Sprintf("scorer: marshal record: %v", err))
	}
	return data
}
