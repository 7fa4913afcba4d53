package tuner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_RejectsNilIterations(t *testing.T) {
	cfg := Config{Repo: "org/repo", TasksFile: "tasks.jsonl", CandidatesPerIter: 1, TasksPerScore: 1}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsNegativeIterations(t *testing.T) {
	cfg := Config{Repo: "org/repo", TasksFile: "tasks.jsonl", Iterations: intPtr(-1), CandidatesPerIter: 1, TasksPerScore: 1}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfig_Validate_RejectsIterationsAboveCap(t *testing.T) {
	cfg := Config{Repo: "org/repo", TasksFile: "tasks.jsonl", Iterations: intPtr(MaxIterations + 1), CandidatesPerIter: 1, TasksPerScore: 1}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfig_Validate_RejectsZeroCandidatesOrTasks(t *testing.T) {
	base := Config{Repo: "org/repo", TasksFile: "tasks.jsonl", Iterations: intPtr(1), CandidatesPerIter: 1, TasksPerScore: 1}

	withZeroK := base
	withZeroK.CandidatesPerIter = 0
	assert.Error(t, withZeroK.Validate())

	withZeroN := base
	withZeroN.TasksPerScore = 0
	assert.Error(t, withZeroN.Validate())
}

func TestConfig_Validate_AcceptsZeroIterations(t *testing.T) {
	cfg := Config{Repo: "org/repo", TasksFile: "tasks.jsonl", Iterations: intPtr(0), CandidatesPerIter: 1, TasksPerScore: 1}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_WithDefaults_FillsZeroValues(t *testing.T) {
	cfg := Config{Repo: "org/repo", TasksFile: "tasks.jsonl"}
	filled := cfg.WithDefaults()
	require.NotNil(t, filled.Iterations)
	assert.Equal(t, 10, *filled.Iterations)
	assert.Equal(t, 6, filled.CandidatesPerIter)
	assert.Equal(t, 20, filled.TasksPerScore)
	assert.Greater(t, filled.CharBudget, 0)
	assert.Greater(t, filled.Timeout.Seconds(), 0.0)
}

func TestConfig_WithDefaults_PreservesExplicitZeroIterations(t *testing.T) {
	cfg := Config{Repo: "org/repo", TasksFile: "tasks.jsonl", Iterations: intPtr(0)}
	filled := cfg.WithDefaults()
	require.NotNil(t, filled.Iterations)
	assert.Equal(t, 0, *filled.Iterations)
}
