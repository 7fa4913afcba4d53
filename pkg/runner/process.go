package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// AgentProcess launches the coding-agent entry point as an isolated child
// process and waits for it to either finish or be killed on timeout. The
// Python original runs the agent inside a multiprocessing.Process so a
// runaway agent cannot wedge the driver; os/exec gives the same isolation
// guarantee in Go without needing a process-internal goroutine to model a
// "child" that still shares memory with the parent.
type AgentProcess struct {
	// Command and Args build the child process invocation. Args receives
	// two extra elements appended at Run time: the composed task text and
	// the output path the child must write its AgentRunResult JSON to.
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// childResult is the on-disk shape an agent entry point writes describing
// what it did; AgentRunResult.TokenUsage and Trajectory round-trip through
// it unchanged. RawOutput is the agent's unstructured final message, kept
// around so the driver can fall back to regex diff extraction when the
// agent never populated Patch directly (spec §4.2 point 2).
type childResult struct {
	Patch      string     `json:"patch"`
	RawOutput  string     `json:"raw_output,omitempty"`
	Error      string     `json:"error,omitempty"`
	TokenUsage TokenUsage `json:"token_usage"`
	Trajectory string     `json:"trajectory,omitempty"`
}

// Run executes the child process with a wall-clock timeout. On timeout the
// child process is killed and the result carries StatusTimeout; processes
// the child started itself are not signalled. The caller
// is still responsible for attempting the container-diff probe before
// declaring the patch empty, since the child may have made edits before
// being killed.
func (p AgentProcess) Run(ctx context.Context, outputPath string, taskText string) AgentRunResult {
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := append(append([]string{}, p.Args...), taskText, outputPath)
	cmd := exec.CommandContext(runCtx, p.Command, args...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = p.Env
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return AgentRunResult{
			Status:   StatusTimeout,
			Elapsed:  elapsed,
			ElapsedS: elapsed.Seconds(),
			Error:    "agent process exceeded its wall-clock budget",
		}
	}

	if err != nil {
		return AgentRunResult{
			Status:   StatusError,
			Elapsed:  elapsed,
			ElapsedS: elapsed.Seconds(),
			Error:    fmt.Sprintf("agent process failed: %v: %s", err, stderr.String()),
		}
	}

	res, readErr := readChildResult(outputPath)
	if readErr != nil {
		return AgentRunResult{
			Status:   StatusError,
			Elapsed:  elapsed,
			ElapsedS: elapsed.Seconds(),
			Error:    fmt.Sprintf("read agent output: %v", readErr),
		}
	}

	patch := res.Patch
	if patch == "" && res.RawOutput != "" {
		patch = ExtractDiff(res.RawOutput)
	}

	status := StatusOK
	if res.Error != "" {
		status = StatusError
	}
	return AgentRunResult{
		Patch:      patch,
		Status:     status,
		Error:      res.Error,
		Elapsed:    elapsed,
		ElapsedS:   elapsed.Seconds(),
		TokenUsage: res.TokenUsage,
		Trajectory: res.Trajectory,
	}
}

func readChildResult(path string) (childResult, error) {
	var res childResult
	data, err := os.ReadFile(path)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("decode %s: %w", path, err)
	}
	return res, nil
}
