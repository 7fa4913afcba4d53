package runner

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveImage_PrefersExternalHelper(t *testing.T) {
	external := func(_ context.Context, _ TaskLike) (string, error) { return "external:latest", nil }
	testSpec := func(_ context.Context, _ TaskLike) (string, error) { return "testspec:latest", nil }

	tag, err := ResolveImage(context.Background(), TaskLike{InstanceID: "org__repo-1", ImageTag: "task:latest"}, external, testSpec)
	require.NoError(t, err)
	assert.Equal(t, "external:latest", tag)
}

func TestResolveImage_FallsThroughToTaskImageTag(t *testing.T) {
	noOpinion := func(_ context.Context, _ TaskLike) (string, error) { return "", nil }

	tag, err := ResolveImage(context.Background(), TaskLike{InstanceID: "org__repo-1", ImageTag: "task:latest"}, noOpinion, noOpinion)
	require.NoError(t, err)
	assert.Equal(t, "task:latest", tag)
}

func TestResolveImage_FallsThroughToConvention(t *testing.T) {
	noOpinion := func(_ context.Context, _ TaskLike) (string, error) { return "", nil }

	tag, err := ResolveImage(context.Background(), TaskLike{InstanceID: "org__Repo-1"}, noOpinion, noOpinion)
	require.NoError(t, err)
	assert.Contains(t, tag, "contexttune.eval.")
}

func TestResolveImage_NoOpinionAnywhereReturnsErrNoImage(t *testing.T) {
	noOpinion := func(_ context.Context, _ TaskLike) (string, error) { return "", nil }

	_, err := ResolveImage(context.Background(), TaskLike{}, noOpinion, noOpinion)
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestAgentContainer_NilSafety(t *testing.T) {
	var c *AgentContainer
	assert.Equal(t, "", c.ProbeGitDiff(context.Background()))
	assert.NoError(t, c.Terminate(context.Background()))
}

// TestStartContainer_Lifecycle exercises the real testcontainers-go path.
// It needs a working Docker daemon, so it is gated behind an explicit env
// var rather than run by default in CI sandboxes without Docker access.
func TestStartContainer_Lifecycle(t *testing.T) {
	if os.Getenv("CONTEXTTUNE_DOCKER_TESTS") == "" {
		t.Skip("set CONTEXTTUNE_DOCKER_TESTS=1 to run container lifecycle tests against a real Docker daemon")
	}

	ctx := context.Background()
	c, err := StartContainer(ctx, "alpine:3.20")
	require.NoError(t, err)
	defer func() { _ = c.Terminate(ctx) }()

	out, code, err := c.Exec(ctx, []string{"echo", "hello"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "hello")
}
