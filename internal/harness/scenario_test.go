package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
network: data/net.yaml
model: /abs/model.cue
populations: pops.yaml
sampler: metropolis
draws: 400
seed: 3
assertions:
  - type: estimate_within
    parameter: "d[B]"
    value: 0.5
    tol: 0.1
  - type: rank_prob
    treatment: B
    rank: 1
    max: 0.2
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "data", "net.yaml"), scenario.Network)
	assert.Equal(t, "/abs/model.cue", scenario.Model)
	assert.Equal(t, filepath.Join(dir, "pops.yaml"), scenario.Populations)
	assert.Equal(t, "metropolis", scenario.Sampler)
	assert.Equal(t, 400, scenario.Draws)
	assert.Equal(t, uint64(3), scenario.Seed)
	require.Len(t, scenario.Assertions, 2)
	assert.Equal(t, "d[B]", scenario.Assertions[0].Parameter)
	assert.Nil(t, scenario.Assertions[1].Min)
	require.NotNil(t, scenario.Assertions[1].Max)
	assert.Equal(t, 0.2, *scenario.Assertions[1].Max)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "typo"
network: n.yaml
model: m.cue
assertion:
  - type: warning
    code: RHAT
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	base := "name: s\ndescription: d\nnetwork: n.yaml\nmodel: m.cue\n"
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing name", "description: d\nnetwork: n\nmodel: m\nassertions: [{type: warning, code: RHAT}]\n", "name is required"},
		{"missing description", "name: s\nnetwork: n\nmodel: m\nassertions: [{type: warning, code: RHAT}]\n", "description is required"},
		{"missing network", "name: s\ndescription: d\nmodel: m\nassertions: [{type: warning, code: RHAT}]\n", "network is required"},
		{"missing model", "name: s\ndescription: d\nnetwork: n\nassertions: [{type: warning, code: RHAT}]\n", "model is required"},
		{"no assertions", base, "assertions list is required"},
		{"bad sampler", base + "sampler: nuts\nassertions: [{type: warning, code: RHAT}]\n", `unknown sampler "nuts"`},
		{"negative draws", base + "draws: -1\nassertions: [{type: warning, code: RHAT}]\n", "draws must be non-negative"},
		{"unknown type", base + "assertions: [{type: final_state}]\n", `unknown assertion type "final_state"`},
		{"missing type", base + "assertions: [{code: RHAT}]\n", "type is required"},
		{"estimate without tol", base + "assertions: [{type: estimate_within, parameter: x}]\n", "positive tol"},
		{"estimate without parameter", base + "assertions: [{type: estimate_within, tol: 1}]\n", "requires parameter"},
		{"rank without bounds", base + "assertions: [{type: rank_prob, treatment: B, rank: 1}]\n", "requires min or max"},
		{"rank zero", base + "assertions: [{type: rank_prob, treatment: B, rank: 0, min: 0}]\n", "rank >= 1"},
		{"warning without code", base + "assertions: [{type: no_warning}]\n", "no_warning requires code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
