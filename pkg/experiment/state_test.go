package experiment

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_MarkTunedIsIdempotent(t *testing.T) {
	var s State
	assert.False(t, s.HasTuned("org/repo"))

	s.MarkTuned("org/repo")
	s.MarkTuned("org/repo")
	assert.True(t, s.HasTuned("org/repo"))
	assert.Len(t, s.TuningCompleted, 1)
}

func TestState_MarkEvaluatedIsIdempotentAndScopedToCondition(t *testing.T) {
	var s State
	assert.False(t, s.HasEvaluated("org/repo", ConditionNoGuidance))

	s.MarkEvaluated("org/repo", ConditionNoGuidance)
	s.MarkEvaluated("org/repo", ConditionNoGuidance)
	assert.True(t, s.HasEvaluated("org/repo", ConditionNoGuidance))
	assert.False(t, s.HasEvaluated("org/repo", ConditionTunedGuidance))
	assert.Len(t, s.EvalCompleted, 1)
}

func TestState_SaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment_state.json")
	s := State{ExperimentID: "exp1", CreatedAt: "2026-01-01T00:00:00Z"}
	s.MarkTuned("org/repo-a")
	s.MarkEvaluated("org/repo-a", ConditionNoGuidance)

	require.NoError(t, s.Save(path))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestStateExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment_state.json")
	assert.False(t, StateExists(path))
	require.NoError(t, State{ExperimentID: "exp1"}.Save(path))
	assert.True(t, StateExists(path))
}
