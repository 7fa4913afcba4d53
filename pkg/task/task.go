// Package task defines the read-only input to one agent run and a minimal
// JSONL loader. Dataset ingestion and benchmark-specific loaders are out of
// scope (spec §1); this loader is the narrow glue the core depends on.
package task

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/asashepard/contexttune/pkg/jsonl"
)

// Task is one unit of work for the agent-run driver (spec §3 "Task").
type Task struct {
	InstanceID       string `json:"instance_id"`
	Repo             string `json:"repo"`
	BaseCommit       string `json:"base_commit"`
	ProblemStatement string `json:"problem_statement"`
	ImageTag         string `json:"image_tag,omitempty"`
	DatasetName      string `json:"dataset_name,omitempty"`
}

// Load reads up to limit tasks from a JSONL tasks file. limit <= 0 means
// no limit.
func Load(path string, limit int) ([]Task, error) {
	tasks, err := jsonl.ReadAll[Task](path)
	if err != nil {
		return nil, fmt.Errorf("load tasks from %s: %w", path, err)
	}
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// LoadIDs reads a plain-text allow-list file of one instance_id per line
// (used by the experiment orchestrator's optional Phase 2 instance
// filter).
func LoadIDs(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ids := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			ids[line] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return ids, nil
}
