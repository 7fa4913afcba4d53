package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault_EmptyPatchShortCircuitsWithoutHarness(t *testing.T) {
	client := &HarnessClient{Command: ""}
	eval := Default(client)

	got := eval(context.Background(), Task{InstanceID: "org__repo-1"}, "   \n  ")
	assert.False(t, got)
}

func TestDefault_HarnessFailureCountsAsFail(t *testing.T) {
	client := &HarnessClient{Command: ""}
	eval := Default(client)

	got := eval(context.Background(), Task{InstanceID: "org__repo-1"}, "diff --git a/x.py b/x.py\n")
	assert.False(t, got)
}
