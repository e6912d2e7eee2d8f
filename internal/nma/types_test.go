package nma

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraws_Accessors(t *testing.T) {
	d, err := NewDraws([]string{"d[B]", "d[C]"}, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	assert.Equal(t, 3, d.Len())
	col, err := d.Column("d[C]")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6}, col)
	assert.Equal(t, []float64{3, 4}, d.Row(1))
	assert.Equal(t, 0.0, d.Get(0, "d[A]"), "absent parameters read as zero")

	_, err = d.Column("nope")
	assert.Error(t, err)
}

func TestNewDraws_ShapeErrors(t *testing.T) {
	_, err := NewDraws([]string{"a", "b"}, []float64{1, 2, 3})
	assert.Error(t, err)
	_, err = NewDraws([]string{"a", "a"}, []float64{1, 2})
	assert.Error(t, err)
}

func TestIntegrationPoints_Means(t *testing.T) {
	p := &IntegrationPoints{Covariates: []string{"x", "y"}, X: []float64{1, 10, 3, 20}}
	assert.Equal(t, 2, p.N())
	assert.Equal(t, []float64{2, 15}, p.Means())
	assert.Equal(t, []float64{3, 20}, p.Point(1))

	pop := Population{Name: "t", Means: map[string]float64{"z": 4}, Points: p}
	m, ok := pop.CovariateMean("y")
	assert.True(t, ok)
	assert.Equal(t, 15.0, m)
	m, ok = pop.CovariateMean("z")
	assert.True(t, ok)
	assert.Equal(t, 4.0, m)
}

func hashOf(t *testing.T, domain string, parts ...any) string {
	t.Helper()
	h, err := ContentHash(domain, parts...)
	require.NoError(t, err)
	return h
}

func TestContentHash_Deterministic(t *testing.T) {
	a := hashOf(t, DomainIntegration, []string{"age"}, []float64{1, 0.5}, 100, uint64(42))
	b := hashOf(t, DomainIntegration, []string{"age"}, []float64{1, 0.5}, 100, uint64(42))
	c := hashOf(t, DomainIntegration, []string{"age"}, []float64{1, 0.5}, 100, uint64(43))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)

	_, err := ContentHash(DomainModel, struct{}{})
	assert.Error(t, err)
}

func TestContentHash_DomainSeparation(t *testing.T) {
	assert.NotEqual(t,
		hashOf(t, DomainIntegration, "x"),
		hashOf(t, DomainModel, "x"))
}

func TestModelSpec_ValidateDefaults(t *testing.T) {
	m := ModelSpec{}
	require.NoError(t, m.Validate(OutcomeBinary))
	assert.Equal(t, FamilyBernoulli, m.Family)
	assert.Equal(t, LinkLogit, m.Link)
	assert.Equal(t, EffectsFixed, m.TreatmentEffects)
	assert.Equal(t, InteractionsIndependent, m.ClassInteractions)
}

func TestModelSpec_ValidateRejectsBadLink(t *testing.T) {
	m := ModelSpec{Family: FamilyPoisson, Link: LinkProbit}
	assert.True(t, IsSchemaError(m.Validate(OutcomeCount)))

	m = ModelSpec{Family: FamilyNormal}
	assert.True(t, IsSchemaError(m.Validate(OutcomeBinary)), "family must match outcome")
}

func TestRegression_Covariates(t *testing.T) {
	r := Regression{Prognostic: []string{"age"}, EffectModifiers: []string{"male", "age"}}
	assert.Equal(t, []string{"age", "male"}, r.Covariates())
}

func TestErrorPredicates(t *testing.T) {
	err := error(CorrelationErrorf("no ipd"))
	assert.True(t, IsCorrelationError(err))
	assert.False(t, IsSchemaError(err))
	assert.Equal(t, "CORRELATION: no ipd", err.Error())

	d := Diagnostics{{Code: WarnRhat}, {Code: WarnIntegrationError, Study: "S"}}
	assert.True(t, d.Has(WarnRhat))
	assert.Len(t, d.Filter(WarnIntegrationError), 1)
	assert.Equal(t, "INTEGRATION_ERROR:  (study=S)", d[1].String())
}

func TestWarning_MarshalJSONOmitsNonFinite(t *testing.T) {
	for _, v := range []float64{0, math.NaN(), math.Inf(1)} {
		b, err := json.Marshal(Warning{Code: WarnRhat, Message: "m", Value: v})
		require.NoError(t, err)
		assert.JSONEq(t, `{"code":"RHAT","message":"m"}`, string(b))
	}
	b, err := json.Marshal(Warning{Code: WarnRhat, Message: "m", Study: "S", Value: 1.2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"RHAT","message":"m","study":"S","value":1.2}`, string(b))
}
