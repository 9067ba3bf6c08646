package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/flick/internal/trace"
)

// runSnapshot is the serialized form of one run for golden comparison.
// Maps marshal with sorted keys, so the output is deterministic as long as
// the monitors assign deterministic sequence numbers.
type runSnapshot struct {
	Repetition int                                `json:"repetition"`
	Traces     map[string]*trace.Trace            `json:"traces,omitempty"`
	Tags       map[string]map[string]*trace.Trace `json:"tags,omitempty"`
}

// resultSnapshot is the serialized form of a result for golden comparison.
// Artifact paths and errors are excluded: paths contain temp directories
// and errors are asserted separately.
type resultSnapshot struct {
	TestName string        `json:"test_name"`
	Runs     []runSnapshot `json:"runs"`
}

// AssertGolden compares the captured traces of a result against the golden
// file testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, res *Result) {
	t.Helper()

	snapshot := resultSnapshot{TestName: res.TestName}
	for _, run := range res.Runs {
		snapshot.Runs = append(snapshot.Runs, runSnapshot{
			Repetition: run.Repetition,
			Traces:     run.Traces,
			Tags:       run.Tags,
		})
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("marshal result snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
