package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the deterministic part of a scenario result. Numeric
// estimates are left out so snapshots survive numerical noise across
// platforms; assertions cover the numbers.
type Snapshot struct {
	ScenarioName string         `json:"scenario_name"`
	FitID        string         `json:"fit_id"`
	Sampler      string         `json:"sampler"`
	Parameters   []string       `json:"parameters"`
	Checks       []CheckOutcome `json:"checks"`
	Warnings     []string       `json:"warnings"`
}

// CheckOutcome is the snapshot view of a Check.
type CheckOutcome struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Pass   bool   `json:"pass"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{
		ScenarioName: name,
		FitID:        result.FitID,
		Parameters:   []string{},
		Checks:       make([]CheckOutcome, len(result.Checks)),
		Warnings:     []string{},
	}
	if result.Fit != nil {
		s.Sampler = result.Fit.Sampler
		s.Parameters = append(s.Parameters, result.Fit.Draws.Names...)
		for _, w := range result.Fit.Diagnostics {
			s.Warnings = append(s.Warnings, string(w.Code))
		}
	}
	for i, c := range result.Checks {
		s.Checks[i] = CheckOutcome{Type: c.Type, Target: c.Target, Pass: c.Pass}
	}
	return s
}

// MarshalSnapshot encodes a snapshot as indented JSON with a trailing
// newline.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, Options{})
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(NewSnapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
