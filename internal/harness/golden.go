package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/promote/internal/model"
)

// Snapshot is the canonical form of a scenario trace:
// {"scenario":name,"trace":[events...]}.
func Snapshot(name string, trace []TraceEvent) ([]byte, error) {
	events := make(model.List, len(trace))
	for i, ev := range trace {
		events[i] = ev.Value()
	}
	return model.MarshalCanonical(model.Object{
		"scenario": model.String(name),
		"trace":    events,
	})
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, s.Name, result)
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
