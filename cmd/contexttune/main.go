// Command contexttune runs the guidance-block tuning engine: "tune" hill-
// climbs one repository's guidance, "experiment" runs the two-condition
// evaluation across a whole experiment config, and "serve-status" exposes
// a read-only view of either while they run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/asashepard/contexttune/pkg/config"
	"github.com/asashepard/contexttune/pkg/evaluator"
	"github.com/asashepard/contexttune/pkg/experiment"
	"github.com/asashepard/contexttune/pkg/guidance"
	"github.com/asashepard/contexttune/pkg/llmclient"
	"github.com/asashepard/contexttune/pkg/resultstore"
	"github.com/asashepard/contexttune/pkg/runner"
	"github.com/asashepard/contexttune/pkg/scorer"
	"github.com/asashepard/contexttune/pkg/statusapi"
	"github.com/asashepard/contexttune/pkg/task"
	"github.com/asashepard/contexttune/pkg/tuner"
	"github.com/asashepard/contexttune/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: contexttune <tune|experiment|serve-status> [flags]")
	}

	envPath := getEnv("CONTEXTTUNE_ENV_FILE", ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("no .env file loaded from %s: %v", envPath, err)
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	if getEnv("LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	logger := slog.New(handler)
	logger.Info("starting", "version", version.Full(), "subcommand", os.Args[1])

	var err error
	switch os.Args[1] {
	case "tune":
		err = runTune(os.Args[2:], logger)
	case "experiment":
		err = runExperiment(os.Args[2:], logger)
	case "serve-status":
		err = runServeStatus(os.Args[2:], logger)
	default:
		log.Fatalf("unknown subcommand %q: usage: contexttune <tune|experiment|serve-status> [flags]", os.Args[1])
	}
	if err != nil {
		log.Fatal(err)
	}
}

// buildLLMClient reads the API credentials shared by every subcommand that
// calls the LLM (init + propose).
func buildLLMClient() *llmclient.Client {
	baseURL := getEnv("CONTEXTTUNE_LLM_BASE_URL", "https://api.openai.com/v1")
	apiKey := os.Getenv("CONTEXTTUNE_LLM_API_KEY")
	return llmclient.NewClient(baseURL, apiKey)
}

// buildAgentRunner wires runner.Driver from environment-configured agent
// process and container settings. DryRun callers never reach this runner.
func buildAgentRunner(logger *slog.Logger) *runner.Driver {
	cfg := runner.DefaultConfig()
	cfg.Process = runner.AgentProcess{
		Command: getEnv("CONTEXTTUNE_AGENT_COMMAND", "contexttune-agent"),
		Dir:     getEnv("CONTEXTTUNE_AGENT_DIR", "."),
	}
	return runner.New(cfg, logger)
}

// buildHarness wires evaluator.HarnessClient from environment-configured
// harness settings, shared by tune's per-task scoring and experiment's
// per-condition batch evaluation.
func buildHarness() *evaluator.HarnessClient {
	command := getEnv("CONTEXTTUNE_HARNESS_COMMAND", "run_harness_eval.sh")
	return evaluator.NewHarnessClient(command, nil, getEnv("CONTEXTTUNE_HARNESS_WORKDIR", ""))
}

// loadScorerTasks adapts task.Load's []task.Task into the []scorer.Task
// shape the tuner and experiment orchestrator depend on.
func loadScorerTasks(path string, limit int) ([]scorer.Task, error) {
	tasks, err := task.Load(path, limit)
	if err != nil {
		return nil, err
	}
	out := make([]scorer.Task, len(tasks))
	for i, t := range tasks {
		out[i] = scorer.Task{
			InstanceID:       t.InstanceID,
			Repo:             t.Repo,
			BaseCommit:       t.BaseCommit,
			ProblemStatement: t.ProblemStatement,
			ImageTag:         t.ImageTag,
			DatasetName:      t.DatasetName,
		}
	}
	return out, nil
}

// initializerAdapter closes over an llmclient.Client/model pair to satisfy
// tuner.Initializer's narrower signature around guidance.InitializeGuidance.
func initializerAdapter(client *llmclient.Client, model string) tuner.Initializer {
	return func(ctx context.Context, repo, commit, repoDir string, charBudget int) (guidance.Guidance, error) {
		return guidance.InitializeGuidance(ctx, client, model, repo, commit, repoDir, guidance.InitOptions{CharBudget: charBudget})
	}
}

func runTune(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("tune", flag.ExitOnError)
	repo := fs.String("repo", "", "repository identifier, e.g. org/name")
	commit := fs.String("commit", "", "base commit SHA to check out")
	tasksFile := fs.String("tasks", "", "path to the JSONL task file")
	model := fs.String("model", getEnv("CONTEXTTUNE_MODEL", "gpt-4o"), "model name passed to the LLM and agent")
	outputDir := fs.String("output-dir", "", "directory to persist tuning state and guidance versions")
	iterations := fs.Int("iterations", 10, "number of hill-climbing iterations")
	candidates := fs.Int("candidates", 6, "candidates proposed per iteration")
	tasksPerScore := fs.Int("tasks-per-score", 20, "tasks sampled per candidate score")
	charBudget := fs.Int("char-budget", guidance.DefaultCharBudget, "guidance block character budget")
	timeout := fs.Duration("timeout", 10*time.Minute, "per-call timeout for the proposer's LLM calls")
	dryRun := fs.Bool("dry-run", false, "skip every LLM/agent call and synthesize a placeholder guidance block")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *repo == "" || *tasksFile == "" || *outputDir == "" {
		return fmt.Errorf("tune requires -repo, -tasks, and -output-dir")
	}

	client := buildLLMClient()
	driver := buildAgentRunner(logger)
	harness := buildHarness()
	sc := scorer.New(driver, evaluator.Default(harness), *model, logger)
	proposer := &tuner.Proposer{Client: client, Model: *model}

	tu := tuner.New(proposer, sc, initializerAdapter(client, *model), loadScorerTasks, logger)

	cfg := tuner.Config{
		Repo:              *repo,
		Commit:            *commit,
		TasksFile:         *tasksFile,
		Model:             *model,
		Iterations:        iterations,
		CandidatesPerIter: *candidates,
		TasksPerScore:     *tasksPerScore,
		CharBudget:        *charBudget,
		Timeout:           *timeout,
		OutputDir:         *outputDir,
		DryRun:            *dryRun,
	}

	best, err := tu.Run(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("tune %s: %w", *repo, err)
	}
	logger.Info("tuning finished", "repo", *repo, "best_version", best.Version)
	return nil
}

func runExperiment(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("experiment", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML experiment config")
	dryRun := fs.Bool("dry-run", false, "skip every LLM/agent/harness call for a pipeline smoke test")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("experiment requires -config")
	}

	cfg, err := config.Load[experiment.Config](*configPath)
	if err != nil {
		return fmt.Errorf("load experiment config: %w", err)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	client := buildLLMClient()
	driver := buildAgentRunner(logger)
	harness := buildHarness()
	model := cfg.Model
	if model == "" {
		model = getEnv("CONTEXTTUNE_MODEL", "gpt-4o")
	}
	sc := scorer.New(driver, evaluator.Default(harness), model, logger)
	proposer := &tuner.Proposer{Client: client, Model: model}
	tu := tuner.New(proposer, sc, initializerAdapter(client, model), loadScorerTasks, logger)

	orch := experiment.New(tu, driver, harness, loadScorerTasks, model, logger)
	summary, err := orch.Run(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("run experiment %s: %w", cfg.ExperimentID, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func runServeStatus(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("serve-status", flag.ExitOnError)
	addr := fs.String("addr", getEnv("CONTEXTTUNE_STATUS_ADDR", ":8090"), "address to listen on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dbCfg, err := resultstore.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load result store config: %w", err)
	}
	store, err := resultstore.Open(context.Background(), dbCfg)
	if err != nil {
		return fmt.Errorf("connect to result store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("error closing result store", "error", err)
		}
	}()

	srv := statusapi.NewServer(store, logger)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", *addr, err)
	}
	logger.Info("serving status API", "addr", *addr)
	return srv.StartWithListener(ln)
}
