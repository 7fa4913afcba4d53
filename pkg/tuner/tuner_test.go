package tuner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asashepard/contexttune/pkg/evaluator"
	"github.com/asashepard/contexttune/pkg/guidance"
	"github.com/asashepard/contexttune/pkg/runner"
	"github.com/asashepard/contexttune/pkg/scorer"
)

// fakeRunner scores a task as resolved iff its instance id is in passIDs.
type fakeRunner struct {
	passIDs map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, t runner.TaskLike, _, _ string) runner.AgentRunResult {
	return runner.AgentRunResult{Patch: "diff --git a/x.py b/x.py\n", Status: runner.StatusOK}
}

func evalFromRunner(f *fakeRunner) evaluator.Evaluate {
	return func(_ context.Context, t evaluator.Task, patch string) bool {
		return f.passIDs[t.InstanceID]
	}
}

// sequenceProposer returns one slice of candidates per call, in order,
// and nil once exhausted (modeling "no usable candidates" on later calls).
type sequenceProposer struct {
	calls      int
	responses  [][]guidance.Guidance
	beforeCall func()
}

func (p *sequenceProposer) ProposeCandidates(_ context.Context, best guidance.Guidance, _ float64, _ int, _ []VersionScore, _ time.Duration) ([]guidance.Guidance, error) {
	if p.beforeCall != nil {
		p.beforeCall()
	}
	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		return nil, nil
	}
	out := make([]guidance.Guidance, len(p.responses[idx]))
	for i, c := range p.responses[idx] {
		out[i] = c.Copy(guidance.WithLines(c.Lines))
	}
	return out, nil
}

func fixedInit(lines []string) Initializer {
	return func(_ context.Context, repo, commit, _ string, charBudget int) (guidance.Guidance, error) {
		return guidance.New(repo, commit, lines, charBudget), nil
	}
}

func fixedTasks(tasks []scorer.Task) TaskLoader {
	return func(_ string, _ int) ([]scorer.Task, error) {
		return tasks, nil
	}
}

func TestTuner_Run_InitializesAndAdoptsImprovingCandidate(t *testing.T) {
	tasks := []scorer.Task{
		{InstanceID: "t1"}, {InstanceID: "t2"}, {InstanceID: "t3"}, {InstanceID: "t4"},
	}

	// G0 resolves 1/4; the one candidate resolves 3/4, so it must be adopted.
	fr := &fakeRunner{passIDs: map[string]bool{"t1": true}}
	sc := scorer.New(fr, evalFromRunner(fr), "fake-model", nil)

	proposer := &sequenceProposer{
		responses: [][]guidance.Guidance{
			{guidance.New("org/repo", "deadbeef", []string{"- better tip"}, 0)},
		},
	}

	tu := New(proposer, sc, fixedInit([]string{"- initial tip"}), fixedTasks(tasks), nil)

	cfg := Config{
		Repo:              "org/repo",
		Commit:            "deadbeef",
		TasksFile:         "tasks.jsonl",
		Model:             "fake-model",
		Iterations:        intPtr(1),
		CandidatesPerIter: 1,
		TasksPerScore:     4,
		OutputDir:         t.TempDir(),
	}

	// The candidate needs to do better than G0: rewire the fake when the
	// proposer is called (after G0 has been scored) so three of the four
	// tasks pass from then on, simulating the candidate fixing the repo.
	proposer.beforeCall = func() {
		fr.passIDs = map[string]bool{"t1": true, "t2": true, "t3": true}
	}

	best, err := tu.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, best.Version)
	assert.Equal(t, []string{"- better tip"}, best.Lines)

	state, err := LoadState(newLayout(cfg.OutputDir).statePath)
	require.NoError(t, err)
	assert.Equal(t, 1, state.CompletedIterations)
	assert.Equal(t, 1, state.BestVersion)
	assert.Len(t, state.History, 2)
	assert.Equal(t, "init", state.History[0].Type)
	assert.Equal(t, "candidate", state.History[1].Type)
	assert.True(t, state.History[1].ImprovedBest)
}

func TestTuner_Run_TiesDoNotReplaceIncumbent(t *testing.T) {
	tasks := []scorer.Task{{InstanceID: "t1"}, {InstanceID: "t2"}}

	fr := &fakeRunner{passIDs: map[string]bool{"t1": true}}
	sc := scorer.New(fr, evalFromRunner(fr), "fake-model", nil)

	proposer := &sequenceProposer{
		responses: [][]guidance.Guidance{
			{guidance.New("org/repo", "deadbeef", []string{"- same rate tip"}, 0)},
		},
	}

	tu := New(proposer, sc, fixedInit([]string{"- initial tip"}), fixedTasks(tasks), nil)

	cfg := Config{
		Repo:              "org/repo",
		Commit:            "deadbeef",
		TasksFile:         "tasks.jsonl",
		Iterations:        intPtr(1),
		CandidatesPerIter: 1,
		TasksPerScore:     2,
		OutputDir:         t.TempDir(),
	}

	best, err := tu.Run(context.Background(), cfg)
	require.NoError(t, err)
	// Candidate scores identically (same fake evaluator, same task set), so
	// strict improvement never fires and G0 (version 0) remains best.
	assert.Equal(t, 0, best.Version)
}

func TestTuner_Run_NoCandidatesSkipsIterationButAdvances(t *testing.T) {
	tasks := []scorer.Task{{InstanceID: "t1"}}
	fr := &fakeRunner{passIDs: map[string]bool{}}
	sc := scorer.New(fr, evalFromRunner(fr), "fake-model", nil)

	proposer := &sequenceProposer{responses: nil}
	tu := New(proposer, sc, fixedInit([]string{"- initial tip"}), fixedTasks(tasks), nil)

	cfg := Config{
		Repo:              "org/repo",
		Commit:            "deadbeef",
		TasksFile:         "tasks.jsonl",
		Iterations:        intPtr(2),
		CandidatesPerIter: 1,
		TasksPerScore:     1,
		OutputDir:         t.TempDir(),
	}

	best, err := tu.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, best.Version)

	state, err := LoadState(newLayout(cfg.OutputDir).statePath)
	require.NoError(t, err)
	assert.Equal(t, 2, state.CompletedIterations)
}

func TestTuner_Run_ResumesFromPersistedState(t *testing.T) {
	tasks := []scorer.Task{{InstanceID: "t1"}, {InstanceID: "t2"}}
	outputDir := t.TempDir()

	fr := &fakeRunner{passIDs: map[string]bool{"t1": true}}
	sc := scorer.New(fr, evalFromRunner(fr), "fake-model", nil)
	proposer := &sequenceProposer{responses: nil}
	tu := New(proposer, sc, fixedInit([]string{"- initial tip"}), fixedTasks(tasks), nil)

	cfg := Config{
		Repo:              "org/repo",
		Commit:            "deadbeef",
		TasksFile:         "tasks.jsonl",
		Iterations:        intPtr(0),
		CandidatesPerIter: 1,
		TasksPerScore:     2,
		OutputDir:         outputDir,
	}

	_, err := tu.Run(context.Background(), cfg)
	require.NoError(t, err)

	// Run again with more iterations: resume should pick up the same G0
	// rather than re-initializing, so the history holds one init event.
	cfg.Iterations = intPtr(1)
	proposer.responses = [][]guidance.Guidance{
		{guidance.New("org/repo", "deadbeef", []string{"- better tip"}, 0)},
	}
	fr.passIDs = map[string]bool{"t1": true, "t2": true}

	_, err = tu.Run(context.Background(), cfg)
	require.NoError(t, err)

	state, err := LoadState(newLayout(outputDir).statePath)
	require.NoError(t, err)

	initCount := 0
	for _, h := range state.History {
		if h.Type == "init" {
			initCount++
		}
	}
	assert.Equal(t, 1, initCount)
	assert.Equal(t, 1, state.CompletedIterations)
}
