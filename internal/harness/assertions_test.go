package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jSoboil/multinma/internal/design"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/posterior"
	"github.com/jSoboil/multinma/internal/testutil"
)

func ptr(v float64) *float64 { return &v }

// dominantContext has d[B] in [0.5, 0.6] and d[C] in [1, 1.1] for every draw.
func dominantContext() *AssertionContext {
	meta := &design.Meta{
		Outcome:    nma.OutcomeContinuous,
		Model:      nma.ModelSpec{Link: nma.LinkIdentity, Family: nma.FamilyNormal},
		Treatments: []nma.Treatment{{Name: "A"}, {Name: "B"}, {Name: "C"}},
		Params:     []string{"d[B]", "d[C]"},
	}
	fit := &posterior.Fit{
		Meta:        meta,
		Draws:       testutil.DominantDraws(3, 200),
		Diagnostics: nma.Diagnostics{{Code: nma.WarnRhat, Message: "chains disagree", Value: 1.2}},
	}
	return &AssertionContext{Ctx: context.Background(), Fit: fit}
}

func TestEvaluateAssertions_EstimateWithin(t *testing.T) {
	checks := EvaluateAssertions([]Assertion{
		{Type: AssertEstimateWithin, Parameter: "d[B]", Value: 0.55, Tol: 0.1},
		{Type: AssertEstimateWithin, Parameter: "d[C]", Value: 2, Tol: 0.1},
		{Type: AssertEstimateWithin, Parameter: "d[Z]", Value: 0, Tol: 1},
	}, dominantContext())
	require.Len(t, checks, 3)

	assert.True(t, checks[0].Pass)
	assert.InDelta(t, 0.55, checks[0].Observed, 0.05)

	assert.False(t, checks[1].Pass)
	assert.Contains(t, checks[1].Message, "expected 2 ± 0.1")

	assert.False(t, checks[2].Pass)
	assert.Contains(t, checks[2].Message, "d[Z]")
}

func TestEvaluateAssertions_RankProb(t *testing.T) {
	checks := EvaluateAssertions([]Assertion{
		{Type: AssertRankProb, Treatment: "C", Rank: 1, Min: ptr(0.99)},
		{Type: AssertRankProb, Treatment: "C", Rank: 1, Max: ptr(0.01), LowerBetter: true},
		{Type: AssertRankProb, Treatment: "A", Rank: 1, Min: ptr(0.5), LowerBetter: true, Max: ptr(0.9)},
		{Type: AssertRankProb, Treatment: "Z", Rank: 1, Min: ptr(0)},
		{Type: AssertRankProb, Treatment: "B", Rank: 4, Min: ptr(0)},
	}, dominantContext())
	require.Len(t, checks, 5)

	assert.True(t, checks[0].Pass)
	assert.Equal(t, "C@1", checks[0].Target)
	assert.Equal(t, 1.0, checks[0].Observed)

	assert.True(t, checks[1].Pass)
	assert.Equal(t, 0.0, checks[1].Observed)

	assert.False(t, checks[2].Pass, "A is always first when lower is better")
	assert.Contains(t, checks[2].Message, "outside [0.5, 0.9]")

	assert.False(t, checks[3].Pass)
	assert.Contains(t, checks[3].Message, "no rank probabilities")

	assert.False(t, checks[4].Pass)
	assert.Contains(t, checks[4].Message, "exceeds 3 treatments")
}

func TestEvaluateAssertions_Warning(t *testing.T) {
	checks := EvaluateAssertions([]Assertion{
		{Type: AssertWarning, Code: "RHAT"},
		{Type: AssertNoWarning, Code: "RHAT"},
		{Type: AssertWarning, Code: "LOW_ACCEPTANCE"},
		{Type: AssertNoWarning, Code: "LOW_ACCEPTANCE"},
	}, dominantContext())
	require.Len(t, checks, 4)

	assert.True(t, checks[0].Pass)
	assert.Equal(t, 1.0, checks[0].Observed)
	assert.False(t, checks[1].Pass)
	assert.Contains(t, checks[1].Message, "raised 1 time(s)")
	assert.False(t, checks[2].Pass)
	assert.True(t, checks[3].Pass)
}

func TestResult_AddCheck(t *testing.T) {
	r := NewResult()
	r.AddCheck(Check{Type: AssertWarning, Target: "RHAT", Pass: true})
	assert.True(t, r.Pass)
	assert.Empty(t, r.Errors)

	r.AddCheck(Check{Type: AssertEstimateWithin, Target: "d[B]", Message: "too far"})
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"estimate_within d[B]: too far"}, r.Errors)
	assert.Len(t, r.Checks, 2)
}
