package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioOutcome is the result of one scenario file in a suite run.
type ScenarioOutcome struct {
	File   string   `json:"file"`
	Name   string   `json:"name,omitempty"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// SuiteResult aggregates a directory of scenarios.
type SuiteResult struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// RunDir runs every *.yaml and *.yml scenario in dir in file name order. A
// scenario that fails to load or set up counts as failed; the others still
// run.
func RunDir(ctx context.Context, dir string) (*SuiteResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(e.Name())); ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}

	suite := &SuiteResult{Scenarios: make([]ScenarioOutcome, 0, len(files))}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return suite, err
		}
		out := runFile(ctx, path)
		if out.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Scenarios = append(suite.Scenarios, out)
	}
	return suite, nil
}

func runFile(ctx context.Context, path string) ScenarioOutcome {
	out := ScenarioOutcome{File: path}
	s, err := LoadScenario(path)
	if err != nil {
		out.Errors = []string{err.Error()}
		return out
	}
	out.Name = s.Name
	result, err := RunContext(ctx, s)
	if err != nil {
		out.Errors = []string{err.Error()}
		return out
	}
	out.Pass = result.Pass
	if !result.Pass {
		out.Errors = result.Errors
	}
	return out
}
