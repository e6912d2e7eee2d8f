package modelspec

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jSoboil/multinma/internal/integration"
	"github.com/jSoboil/multinma/internal/nma"
)

func TestLoad_Binary(t *testing.T) {
	spec, err := Load(filepath.Join("testdata", "binary.cue"))
	require.NoError(t, err)

	m := spec.Model
	assert.Equal(t, nma.FamilyBernoulli, m.Family)
	assert.Equal(t, nma.LinkProbit, m.Link)
	assert.Equal(t, nma.EffectsFixed, m.TreatmentEffects)
	assert.Equal(t, nma.InteractionsCommon, m.ClassInteractions)
	assert.True(t, m.Center)
	assert.False(t, m.QR)
	assert.Equal(t, []string{"x1", "x2"}, m.Regression.Prognostic)
	assert.Equal(t, []string{"x2"}, m.Regression.EffectModifiers)

	defaults := nma.DefaultPriors()
	assert.Equal(t, nma.Prior{Family: nma.PriorNormal, Scale: 5}, m.Priors.Trt)
	assert.Equal(t, nma.Prior{Family: nma.PriorHalfStudentT, Scale: 2.5, DF: 3}, m.Priors.Het)
	assert.Equal(t, defaults.Intercept, m.Priors.Intercept)
	assert.Equal(t, defaults.Reg, m.Priors.Reg)

	require.NotNil(t, spec.Integration)
	io := spec.Integration
	assert.Equal(t, 500, io.N)
	assert.Equal(t, uint64(42), io.Seed)
	assert.Equal(t, integration.AdjustSpearman, io.Adjust)
	assert.Equal(t, integration.WeightDF, io.Pooling.Weighting)
	assert.Equal(t, 2, io.Pooling.MinStudySize)
	assert.Equal(t, []string{"x1", "x2"}, io.Names())
	assert.Equal(t, map[string]string{"mean": "x2_mean", "sd": "x2_sd"}, io.Covariates[1].Params)
	assert.Nil(t, io.Cor)
}

func TestCompile_Defaults(t *testing.T) {
	spec, err := CompileBytes([]byte(`model: {}`), "min.cue")
	require.NoError(t, err)

	m := spec.Model
	assert.Equal(t, nma.Family(""), m.Family)
	assert.Equal(t, nma.Link(""), m.Link)
	assert.Equal(t, nma.EffectsFixed, m.TreatmentEffects)
	assert.Equal(t, nma.InteractionsIndependent, m.ClassInteractions)
	assert.True(t, m.Center)
	assert.Empty(t, m.Regression.Prognostic)
	assert.Equal(t, nma.DefaultPriors(), m.Priors)
	assert.Nil(t, spec.Integration)
}

func TestCompile_IntegrationDefaults(t *testing.T) {
	spec, err := CompileBytes([]byte(`
model: integration: covariates: [{name: "age", dist: "gamma", params: {mean: "m", sd: "s"}}]
`), "int.cue")
	require.NoError(t, err)
	io := spec.Integration
	require.NotNil(t, io)
	assert.Equal(t, integration.DefaultPoints, io.N)
	assert.Equal(t, uint64(1), io.Seed)
	assert.Equal(t, integration.AdjustPearson, io.Adjust)
	assert.Equal(t, integration.WeightSize, io.Pooling.Weighting)
}

func TestCompile_CorrelationOverride(t *testing.T) {
	spec, err := CompileBytes([]byte(`
model: integration: {
	covariates: [
		{name: "a", dist: "normal", params: {mean: "a_m", sd: "a_s"}},
		{name: "b", dist: "normal", params: {mean: "b_m", sd: "b_s"}},
	]
	cor: [1, 0.3, 0.3, 1]
}
`), "cor.cue")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.3, 0.3, 1}, spec.Integration.Cor)

	_, err = CompileBytes([]byte(`
model: integration: {
	covariates: [{name: "a", dist: "normal", params: {mean: "a_m", sd: "a_s"}}]
	cor: [1, 0.3]
}
`), "cor.cue")
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "integration.cor", ce.Field)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing model", `other: 1`, "model"},
		{"unknown field", `model: {colour: "red"}`, "cue"},
		{"bad enum", `model: {trt_effects: "mixed"}`, "cue"},
		{"bad family", `model: integration: covariates: [{name: "a", dist: "weibull", params: {}}]`, "cue"},
		{"negative n", `model: integration: {n: -1, covariates: [{name: "a", dist: "bernoulli", params: {prob: "p"}}]}`, "cue"},
		{"wrong params", `model: integration: covariates: [{name: "a", dist: "bernoulli", params: {mean: "p"}}]`, "integration.covariates.a"},
		{"duplicate covariate", `model: integration: covariates: [
			{name: "a", dist: "bernoulli", params: {prob: "p"}},
			{name: "a", dist: "bernoulli", params: {prob: "q"}},
		]`, "integration.covariates"},
		{"student t without df", `model: priors: reg: {family: "student_t", scale: 1}`, "priors.reg.df"},
		{"syntax", `model: {`, "cue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileBytes([]byte(tt.src), "bad.cue")
			require.Error(t, err)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileError_Position(t *testing.T) {
	_, err := CompileBytes([]byte("model: {\n\tcolour: \"red\"\n}\n"), "pos.cue")
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	require.True(t, ce.Pos.IsValid())
	assert.Contains(t, ce.Error(), "pos.cue:")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read model file")
}
