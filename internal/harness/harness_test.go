package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)
	return s
}

func TestRun_ThreeArmGolden(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "three_arm.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "fit-test-0001", result.FitID)
	require.NotNil(t, result.Fit)
	assert.Equal(t, 2000, result.Fit.Draws.Len())
}

func TestRun_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "three_arm.yaml")
	a, err := Run(context.Background(), s, Options{Workers: 1})
	require.NoError(t, err)
	b, err := Run(context.Background(), s, Options{Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, a.Checks, b.Checks)
	assert.Equal(t, a.Fit.Draws.Values, b.Fit.Draws.Values)
}

func TestRun_FailedAssertions(t *testing.T) {
	result, err := Run(context.Background(), loadTestScenario(t, "wrong_estimate.yaml"), Options{})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Checks, 2)
	assert.False(t, result.Checks[0].Pass)
	assert.False(t, result.Checks[1].Pass)
	assert.Len(t, result.Errors, 2)
}

func TestRun_MissingNetwork(t *testing.T) {
	s := loadTestScenario(t, "three_arm.yaml")
	s.Network = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Run(context.Background(), s, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load network")
}

func TestRun_BadModel(t *testing.T) {
	s := loadTestScenario(t, "three_arm.yaml")
	s.Model = filepath.Join("testdata", "networks", "three_arm.yaml")
	_, err := Run(context.Background(), s, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load model")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, loadTestScenario(t, "three_arm.yaml"), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSnapshot_NoFit(t *testing.T) {
	r := NewResult()
	r.AddCheck(Check{Type: AssertWarning, Target: "RHAT"})
	s := NewSnapshot("empty", r)
	data, err := MarshalSnapshot(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parameters": []`)
	assert.Contains(t, string(data), `"pass": false`)
}
