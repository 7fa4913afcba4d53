// Package runner implements the agent-run driver: it composes a task
// prompt from a problem statement and optional guidance text, launches the
// coding agent against a resolved container image, enforces a wall-clock
// timeout, and recovers a patch through a precedence chain of extraction
// strategies before guaranteeing container cleanup (spec §4.2).
package runner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Config holds the knobs for one Run invocation that do not vary per task
// (spec §4.2, §6.1 "Driver configuration").
type Config struct {
	Timeout       time.Duration
	MaxPatchSize  int
	WorkDir       string
	Process       AgentProcess
	ExternalImage ImageResolver
	TestSpecImage ImageResolver
	UseContainer  bool
	DryRun        bool
}

// DefaultConfig returns a Config with the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Minute,
		MaxPatchSize: MaxPatchSize,
		WorkDir:      os.TempDir(),
	}
}

// Driver runs one agent invocation per call to Run, each independently
// scoped: its own temp output file and, when UseContainer is set, its own
// container, torn down before Run returns (spec §4.2 "scoped acquisition").
type Driver struct {
	cfg    Config
	logger *slog.Logger
}

// New builds a Driver. A nil logger falls back to slog.Default(), matching
// the teacher's convention of never requiring callers to thread a logger
// through construction.
func New(cfg Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{cfg: cfg, logger: logger}
}

// Run executes one scoped agent invocation for t against the optionally
// bracketed guidanceText. Cleanup (container probe, then Terminate, then
// temp-file removal) happens on every exit path, including timeout,
// process error, and panic recovery.
func (d *Driver) Run(ctx context.Context, t TaskLike, problemStatement, guidanceText string) (result AgentRunResult) {
	if d.cfg.DryRun {
		return AgentRunResult{Status: StatusDryRun}
	}

	taskText := BuildTask(problemStatement, guidanceText)

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	outputPath := filepath.Join(d.cfg.WorkDir, "contexttune-run-"+uuid.NewString()+".json")
	defer os.Remove(outputPath)

	var container *AgentContainer
	if d.cfg.UseContainer {
		image, err := ResolveImage(runCtx, t, d.cfg.ExternalImage, d.cfg.TestSpecImage)
		if err != nil {
			return AgentRunResult{Status: StatusError, Error: err.Error()}
		}
		c, err := StartContainer(runCtx, image)
		if err != nil {
			return AgentRunResult{Status: StatusError, Error: err.Error()}
		}
		container = c
	}

	// Deferred calls unwind LIFO: recover (registered second) runs first so
	// a panicked result is in place before this closure reads it; this
	// closure then applies the extraction precedence chain's remaining
	// sources in order — container probe (3), after which the container is
	// terminated, then trajectory scan (4) — each only consulted if the
	// prior source left Patch empty, and finally the max-size check, which
	// discards an oversized patch and records ErrPatchTooLarge (spec §4.2
	// point 3, Design Notes "scoped acquisition").
	defer func() {
		if container != nil {
			termCtx, termCancel := context.WithTimeout(context.Background(), 2*time.Minute)

			if !result.PatchNonEmpty() {
				if probed := container.ProbeGitDiff(termCtx); probed != "" {
					result.Patch = probed
				}
			}
			if err := container.Terminate(termCtx); err != nil {
				d.logger.Warn("container terminate failed", "instance_id", t.InstanceID, "error", err)
			}
			termCancel()
		}

		if !result.PatchNonEmpty() && result.Trajectory != "" {
			if diff := ExtractDiffFromTrajectory(result.Trajectory); diff != "" {
				result.Patch = diff
			}
		}

		maxSize := d.cfg.MaxPatchSize
		if maxSize <= 0 {
			maxSize = MaxPatchSize
		}
		if len(result.Patch) > maxSize {
			d.logger.Warn("patch exceeds max size, discarding", "instance_id", t.InstanceID, "size", len(result.Patch))
			result.Patch = ""
			if result.Error == "" {
				result.Error = ErrPatchTooLarge.Error()
			}
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("agent run panicked", "instance_id", t.InstanceID, "recover", r)
			result = AgentRunResult{Status: StatusError, Error: "agent run panicked"}
		}
	}()

	result = d.cfg.Process.Run(runCtx, outputPath, taskText)
	return result
}
