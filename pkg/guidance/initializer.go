package guidance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asashepard/contexttune/pkg/guidance/repoinfo"
	"github.com/asashepard/contexttune/pkg/llmclient"
)

const initSystemPrompt = `You are an expert software-engineering assistant.
Your job is to produce a concise GUIDANCE BLOCK that will be prepended to
every issue a coding agent sees when working on a specific repository.
The guidance should help the agent produce correct patches more often.

Rules for the guidance block:
- Maximum %d characters (hard limit).
- Focus on ACTIONABLE tips: where key modules live, naming conventions,
  test patterns, common pitfalls, import style.
- Do NOT repeat information already visible in the directory tree (the
  agent always sees the tree separately).
- Do NOT include generic advice that applies to any repository. Be
  repo-specific.
- Write in terse bullet-point style. No headings, no markdown fences.
- Every line should start with "- ".
- Output ONLY the guidance lines. No preamble, no closing remarks.`

// InitOptions configures InitializeGuidance.
type InitOptions struct {
	CharBudget int
	Timeout    time.Duration
}

// InitializeGuidance builds G0 for a repository: it asks the LLM to
// produce a terse, repo-grounded guidance block seeded with a bounded
// directory-tree + detected test layout (spec §4.4 "Initialization"), then
// truncates the result to the char budget before returning it. Validate is
// not run on the result.
func InitializeGuidance(ctx context.Context, client *llmclient.Client, model, repo, commit, repoDir string, opts InitOptions) (Guidance, error) {
	if opts.CharBudget <= 0 {
		opts.CharBudget = DefaultCharBudget
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}

	info, err := repoinfo.Build(repoDir)
	if err != nil {
		return Guidance{}, fmt.Errorf("build repo info: %w", err)
	}

	userPrompt := fmt.Sprintf(
		"Repository: %s\nCommit: %s\n\n%s\nWrite the guidance block now (max %d chars).",
		repo, commit, info.Render(), opts.CharBudget,
	)

	req := llmclient.Request{
		Model: model,
		Messages: []llmclient.Message{
			{Role: "system", Content: fmt.Sprintf(initSystemPrompt, opts.CharBudget)},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.4,
		MaxTokens:   2048,
	}

	res, err := client.ChatCompletion(ctx, req, opts.Timeout)
	if err != nil {
		return Guidance{}, fmt.Errorf("init guidance llm call: %w", err)
	}

	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(res.Text), "\n") {
		l = strings.TrimRight(l, " \t")
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}

	g := New(repo, commit, lines, opts.CharBudget)
	g = TruncateToBudget(g)
	return g, nil
}
