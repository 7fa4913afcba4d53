package tuner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/asashepard/contexttune/pkg/guidance"
	"github.com/asashepard/contexttune/pkg/llmclient"
)

const proposeSystemPrompt = `You are an expert at tuning guidance blocks for a coding agent that fixes
open-source issues. You will be given the CURRENT best guidance for a
repository together with its recent score. Produce exactly %d VARIANT
guidance blocks, each a plausible improvement.

Rules:
- Each variant must be <= %d characters.
- Each variant is a list of lines starting with "- ".
- Make diverse edits: add tips, remove unhelpful ones, rephrase, reorder.
- Keep changes incremental. Do NOT rewrite from scratch.
- Output valid JSON: a list of %d objects, each with a "lines" key
  containing a list of strings.
- Output ONLY the JSON array. No commentary.`

// fencedJSONPattern strips a leading/trailing markdown code fence around
// the proposer's JSON array, matching the Python original's regex pass.
var fencedJSONPattern = regexp.MustCompile("(?s)^```(?:json)?\\s*|\\s*```$")

// bareJSONArrayPattern finds a JSON array substring when the proposer
// wraps its output in commentary the fence strip didn't catch.
var bareJSONArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// candidateEntry accepts both shapes the proposer may emit for one
// candidate: a bare array of strings, or an object with a "lines" key
// (spec §4.4 "Proposer contract" — the explicit Open Question this
// resolves by accepting either).
type candidateEntry struct {
	lines []string
	ok    bool
}

func (c *candidateEntry) UnmarshalJSON(data []byte) error {
	var asObject struct {
		Lines []string `json:"lines"`
	}
	if err := json.Unmarshal(data, &asObject); err == nil && asObject.Lines != nil {
		c.lines = asObject.Lines
		c.ok = true
		return nil
	}

	var asArray []string
	if err := json.Unmarshal(data, &asArray); err == nil {
		c.lines = asArray
		c.ok = true
		return nil
	}

	// Malformed entry: neither shape matched. Leave ok=false so the
	// caller drops it rather than erroring the whole batch (spec §7
	// "Recoverable: proposer malformed output (drop candidate)").
	c.ok = false
	return nil
}

// Proposer asks an LLM for K incremental edits of the current best
// guidance, truncates each to the char budget with C1's TruncateToBudget,
// and returns whatever survived parsing (spec §4.4 "Proposer contract").
// Validate is not run on the candidates.
type Proposer struct {
	Client *llmclient.Client
	Model  string
}

// ProposeCandidates requests k candidates derived from best. Every
// returned candidate has already been passed through TruncateToBudget;
// callers are still responsible for assigning final version numbers
// (Tuner.Run numbers them after the highest version already recorded).
func (p *Proposer) ProposeCandidates(ctx context.Context, best guidance.Guidance, bestScore float64, k int, history []VersionScore, timeout time.Duration) ([]guidance.Guidance, error) {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	histStr := "none"
	if len(history) > 0 {
		parts := make([]string, 0, len(history))
		for _, h := range history {
			parts = append(parts, fmt.Sprintf("v%d=%.1f%%", h.Version, h.Score*100))
		}
		histStr = strings.Join(parts, ", ")
	}

	userPrompt := fmt.Sprintf(
		"Repository: %s\n\nCurrent guidance (version %d, score %.1f%%):\n---\n%s\n---\n\nPrevious scores: %s\n\nProduce %d variant guidance blocks as JSON.",
		best.Repo, best.Version, bestScore*100, best.Render(), histStr, k,
	)

	req := llmclient.Request{
		Model: p.Model,
		Messages: []llmclient.Message{
			{Role: "system", Content: fmt.Sprintf(proposeSystemPrompt, k, best.CharBudget, k)},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	res, err := p.Client.ChatCompletion(ctx, req, timeout)
	if err != nil {
		return nil, fmt.Errorf("propose candidates llm call: %w", err)
	}

	return parseCandidates(res.Text, best, k), nil
}

// parseCandidates turns the proposer's raw text into budget-truncated
// Guidance values. Unparseable JSON, a non-array top level, or individual malformed
// entries are all dropped rather than erroring (spec §7).
func parseCandidates(raw string, base guidance.Guidance, k int) []guidance.Guidance {
	text := strings.TrimSpace(raw)
	text = fencedJSONPattern.ReplaceAllString(text, "")

	var entries []candidateEntry
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		match := bareJSONArrayPattern.FindString(text)
		if match == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(match), &entries); err != nil {
			return nil
		}
	}

	if len(entries) > k {
		entries = entries[:k]
	}

	results := make([]guidance.Guidance, 0, len(entries))
	for _, e := range entries {
		if !e.ok {
			continue
		}
		lines := make([]string, 0, len(e.lines))
		for _, l := range e.lines {
			l = strings.TrimRight(l, " \t")
			if strings.TrimSpace(l) != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) == 0 {
			continue
		}
		candidate := base.Copy(guidance.WithLines(lines))
		candidate = guidance.TruncateToBudget(candidate)
		results = append(results, candidate)
	}
	return results
}
