package likelihood

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jSoboil/multinma/internal/design"
	"github.com/jSoboil/multinma/internal/integration"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ptr(v float64) *float64 { return &v }

func integrated(t *testing.T, in nma.Input) *nma.Network {
	t.Helper()
	out, _, err := integration.AddIntegration(context.Background(), testutil.MustBuild(in), integration.Options{
		Covariates: testutil.CovariateSpecs(),
		N:          500,
		Seed:       3,
	})
	require.NoError(t, err)
	return out
}

func buildModel(t *testing.T, net *nma.Network, spec nma.ModelSpec, opts Options) *Model {
	t.Helper()
	d, err := design.Build(net, spec, design.Options{})
	require.NoError(t, err)
	m, err := New(d, opts)
	require.NoError(t, err)
	return m
}

// thetaFor sets named constrained values on an otherwise zero vector.
func thetaFor(t *testing.T, m *Model, values map[string]float64) []float64 {
	t.Helper()
	x := make([]float64, m.Dim())
	for i, k := range m.Design().Layout.Kinds {
		if k.IsLog() {
			x[i] = 1
		}
	}
	for name, v := range values {
		i := m.Design().Layout.Index(name)
		require.GreaterOrEqual(t, i, 0, name)
		x[i] = v
	}
	return m.Unconstrain(x)
}

func TestLinks_RoundTrip(t *testing.T) {
	cases := map[nma.Link][]float64{
		nma.LinkIdentity: {-3, 0, 2.5},
		nma.LinkLog:      {-2, 0, 1.5},
		nma.LinkLogit:    {-4, 0, 3},
		nma.LinkProbit:   {-2, 0, 1.7},
		nma.LinkCloglog:  {-3, 0, 1},
	}
	for link, etas := range cases {
		for _, eta := range etas {
			assert.InDelta(t, eta, Link(link, InvLink(link, eta)), 1e-9, "%s(%g)", link, eta)
		}
	}
}

func TestLogProbs_MatchInverseLink(t *testing.T) {
	for _, link := range []nma.Link{nma.LinkLogit, nma.LinkProbit, nma.LinkCloglog} {
		for _, eta := range []float64{-2, -0.3, 0, 0.8, 2} {
			p := InvLink(link, eta)
			lp, lq := logProbs(link, eta)
			assert.InDelta(t, math.Log(p), lp, 1e-12, "%s", link)
			assert.InDelta(t, math.Log(1-p), lq, 1e-12, "%s", link)
		}
	}
	// Far tails stay finite.
	lp, _ := logProbs(nma.LinkLogit, -800)
	assert.InDelta(t, -800, lp, 1e-9)
}

func TestBinomialLogProb_MatchesDistuv(t *testing.T) {
	for _, c := range []struct{ r, n, p float64 }{{3, 10, 0.2}, {0, 5, 0.5}, {40, 40, 0.9}} {
		want := distuv.Binomial{N: c.n, P: c.p}.LogProb(c.r)
		assert.InDelta(t, want, binomialLogProb(c.r, c.n, c.p), 1e-9)
	}
	assert.True(t, math.IsInf(binomialLogProb(5, 4.5, 0.5), -1))
}

func TestBinomial2LogProb(t *testing.T) {
	// No spread reduces to the first-order binomial.
	assert.Equal(t, binomialLogProb(12, 40, 0.3), binomial2LogProb(12, 40, 0.3, 0))
	// Spread shrinks the binomial variance, so an outcome at the mean
	// becomes more likely.
	assert.Greater(t, binomial2LogProb(12, 40, 0.3, 0.05), binomialLogProb(12, 40, 0.3))
}

func TestLogPrior(t *testing.T) {
	normal := nma.Prior{Family: nma.PriorNormal, Scale: 2}
	half := nma.Prior{Family: nma.PriorHalfNormal, Scale: 2}
	assert.InDelta(t, distuv.Normal{Sigma: 2}.LogProb(1), LogPrior(normal, 1), 1e-12)
	assert.InDelta(t, LogPrior(normal, 1)+math.Ln2, LogPrior(half, 1), 1e-12)
	assert.True(t, math.IsInf(LogPrior(half, -0.1), -1))
	assert.Equal(t, 0.0, LogPrior(nma.Prior{Family: nma.PriorFlat}, 1e6))

	cauchy := nma.Prior{Family: nma.PriorCauchy, Scale: 1}
	assert.InDelta(t, -math.Log(math.Pi), LogPrior(cauchy, 0), 1e-12)
}

func TestNew_RejectsBadPriors(t *testing.T) {
	net := testutil.MustBuild(testutil.BinaryNetwork(1, 40))
	spec := nma.ModelSpec{Priors: nma.DefaultPriors()}
	spec.Priors.Trt.Scale = 0
	d, err := design.Build(net, spec, design.Options{})
	require.NoError(t, err)
	_, err = New(d, Options{})
	assert.True(t, nma.IsSchemaError(err))

	spec = nma.ModelSpec{Priors: nma.DefaultPriors(), TreatmentEffects: nma.EffectsRandom}
	spec.Priors.Het = nma.Prior{Family: nma.PriorNormal, Scale: 1}
	d, err = design.Build(net, spec, design.Options{})
	require.NoError(t, err)
	_, err = New(d, Options{})
	assert.True(t, nma.IsSchemaError(err))
}

func TestIdentityLink_IntegratedEqualsPlugIn(t *testing.T) {
	in, _ := testutil.ContinuousNetwork(1, 60)
	net := integrated(t, in)
	spec := nma.ModelSpec{Regression: nma.Regression{Prognostic: []string{"x1", "x2"}}, Priors: nma.DefaultPriors(), Center: true}

	exact := buildModel(t, net, spec, Options{})
	plug := buildModel(t, net, spec, Options{PlugIn: true})
	theta := thetaFor(t, exact, map[string]float64{
		"mu[AgD]": 0.4, "d[C]": 1.1, "beta[x1]": 0.7, "beta[x2]": 0.3,
	})
	assert.InDelta(t, plug.LogLikelihood(theta), exact.LogLikelihood(theta), 1e-9)
}

func TestProbitLink_IntegratedDiffersFromPlugIn(t *testing.T) {
	net := integrated(t, testutil.BinaryNetwork(1, 100))
	spec := nma.ModelSpec{
		Regression:        nma.Regression{Prognostic: []string{"x1", "x2"}, EffectModifiers: []string{"x2"}},
		Link:              nma.LinkProbit,
		ClassInteractions: nma.InteractionsCommon,
		Priors:            nma.DefaultPriors(),
	}
	exact := buildModel(t, net, spec, Options{})
	plug := buildModel(t, net, spec, Options{PlugIn: true})
	theta := thetaFor(t, exact, map[string]float64{"mu[AgD]": -0.3, "d[C]": -0.5, "beta[x2]": 1.5})

	agd := 1
	diff := exact.StudyLogLikelihood(theta, agd) - plug.StudyLogLikelihood(theta, agd)
	assert.Greater(t, math.Abs(diff), 0.01)

	// IPD rows are individual-level in both.
	assert.Equal(t, exact.StudyLogLikelihood(theta, 0), plug.StudyLogLikelihood(theta, 0))
}

func TestBernoulli2_DiffersWithCovariateSpread(t *testing.T) {
	net := integrated(t, testutil.BinaryNetwork(1, 100))
	spec := nma.ModelSpec{
		Regression: nma.Regression{Prognostic: []string{"x1", "x2"}},
		Link:       nma.LinkLogit,
		Priors:     nma.DefaultPriors(),
	}
	first := buildModel(t, net, spec, Options{})
	spec.Family = nma.FamilyBernoulli2
	second := buildModel(t, net, spec, Options{})

	flat := thetaFor(t, first, map[string]float64{"mu[AgD]": -0.2})
	assert.InDelta(t, first.StudyLogLikelihood(flat, 1), second.StudyLogLikelihood(flat, 1), 1e-12)

	spread := thetaFor(t, first, map[string]float64{"mu[AgD]": -0.2, "beta[x2]": 2})
	assert.NotEqual(t, first.StudyLogLikelihood(spread, 1), second.StudyLogLikelihood(spread, 1))
}

func contrastNetwork(t *testing.T, outcome nma.OutcomeType) *nma.Network {
	t.Helper()
	net, err := nma.BuildNetwork(nma.Input{
		Outcome:   outcome,
		Reference: "A",
		AgDContrasts: []nma.AgDContrastRecord{
			{Study: "S", Treatment: "A", SE: 0.1},
			{Study: "S", Treatment: "B", Y: ptr(0.5), SE: 0.2},
			{Study: "S", Treatment: "C", Y: ptr(0.9), SE: 0.25},
		},
	})
	require.NoError(t, err)
	return net
}

func TestContrastLikelihood(t *testing.T) {
	m := buildModel(t, contrastNetwork(t, nma.OutcomeContinuous), nma.ModelSpec{Priors: nma.DefaultPriors()}, Options{})
	assert.Empty(t, m.Diagnostics())

	theta := thetaFor(t, m, map[string]float64{"d[B]": 0.4, "d[C]": 1.0})
	// Contrasts against a shared baseline covary by the baseline variance.
	cov := mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.0625})
	mvn, ok := distmv.NewNormal([]float64{0.4, 1.0}, cov, nil)
	require.True(t, ok)
	assert.InDelta(t, mvn.LogProb([]float64{0.5, 0.9}), m.LogLikelihood(theta), 1e-9)
}

func TestContrastLikelihood_FlagsApproximation(t *testing.T) {
	m := buildModel(t, contrastNetwork(t, nma.OutcomeBinary), nma.ModelSpec{Priors: nma.DefaultPriors()}, Options{})
	require.True(t, m.Diagnostics().Has(nma.WarnContrastApproximation))
	assert.Equal(t, "S", m.Diagnostics()[0].Study)
}

func TestRandomEffects_MultiArmDensity(t *testing.T) {
	net, err := nma.BuildNetwork(nma.Input{
		Outcome:   nma.OutcomeBinary,
		Reference: "A",
		AgDArms: []nma.AgDArmRecord{
			{Study: "S", Treatment: "A", R: 10, N: 50},
			{Study: "S", Treatment: "B", R: 15, N: 50},
			{Study: "S", Treatment: "C", R: 20, N: 50},
		},
	})
	require.NoError(t, err)
	spec := nma.ModelSpec{TreatmentEffects: nma.EffectsRandom, Priors: nma.DefaultPriors()}
	d, err := design.Build(net, spec, design.Options{SkipRankCheck: true})
	require.NoError(t, err)
	m, err := New(d, Options{})
	require.NoError(t, err)

	tau := 0.6
	theta := thetaFor(t, m, map[string]float64{
		"d[B]": 0.3, "d[C]": 0.7, "tau": tau, "delta[S: B]": 0.1, "delta[S: C]": 1.2,
	})
	p := m.Constrain(theta)

	cov := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1})
	cov.ScaleSym(tau*tau, cov)
	mvn, ok := distmv.NewNormal([]float64{0.3, 0.7}, cov, nil)
	require.True(t, ok)
	assert.InDelta(t, mvn.LogProb([]float64{0.1, 1.2}), m.randomEffectsLogProb(p), 1e-9)
}

func TestConstrain_RoundTrip(t *testing.T) {
	net := integrated(t, testutil.BinaryNetwork(1, 100))
	spec := nma.ModelSpec{
		Regression:       nma.Regression{Prognostic: []string{"x1", "x2"}},
		TreatmentEffects: nma.EffectsRandom,
		Priors:           nma.DefaultPriors(),
		QR:               true,
	}
	m := buildModel(t, net, spec, Options{})
	theta := make([]float64, m.Dim())
	for i := range theta {
		theta[i] = 0.1 * float64(i+1)
	}
	assert.InDeltaSlice(t, theta, m.Unconstrain(m.Constrain(theta)), 1e-9)
	assert.InDelta(t, math.Exp(theta[m.Design().Layout.Tau]), m.Constrain(theta)[m.Design().Layout.Tau], 1e-12)
}

func TestLogDensity_ConcurrentCallsAgree(t *testing.T) {
	net := integrated(t, testutil.BinaryNetwork(1, 100))
	m := buildModel(t, net, nma.ModelSpec{
		Regression: nma.Regression{Prognostic: []string{"x1", "x2"}},
		Priors:     nma.DefaultPriors(),
	}, Options{})
	theta := m.Init()
	want := m.LogDensity(theta)
	require.False(t, math.IsInf(want, 0))

	got := make([]float64, 16)
	var g errgroup.Group
	for i := range got {
		g.Go(func() error {
			got[i] = m.LogDensity(theta)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, v := range got {
		assert.Equal(t, want, v)
	}

	grad := make([]float64, m.Dim())
	m.Gradient(grad, theta)
	for _, v := range grad {
		assert.False(t, math.IsNaN(v))
	}
}

// integratedContrast builds a single A vs B contrast study with one normal
// covariate x, integration points attached and centring switched off, so
// arm rows hold raw covariate values.
func integratedContrast(t *testing.T, regression nma.Regression, link nma.Link) *Model {
	t.Helper()
	summaries := map[string]float64{"x_mean": 0.6, "x_sd": 1}
	net, err := nma.BuildNetwork(nma.Input{
		Outcome:   nma.OutcomeBinary,
		Reference: "A",
		AgDContrasts: []nma.AgDContrastRecord{
			{Study: "S", Treatment: "A", SE: 0.1, Summaries: summaries},
			{Study: "S", Treatment: "B", Y: ptr(0.5), SE: 0.2, Summaries: summaries},
		},
	})
	require.NoError(t, err)
	net, _, err = integration.AddIntegration(context.Background(), net, integration.Options{
		Covariates: []integration.CovariateSpec{
			{Name: "x", Family: "normal", Params: map[string]string{"mean": "x_mean", "sd": "x_sd"}},
		},
		Cor:  []float64{1},
		N:    1000,
		Seed: 5,
	})
	require.NoError(t, err)

	spec := nma.ModelSpec{Family: nma.FamilyBernoulli, Regression: regression, Link: link, Priors: nma.DefaultPriors()}
	d, err := design.Build(net, spec, design.Options{SkipRankCheck: true})
	require.NoError(t, err)
	m, err := New(d, Options{})
	require.NoError(t, err)
	return m
}

func TestContrastLikelihood_PrognosticTermsCancel(t *testing.T) {
	// One contrast with variance se_B^2 and zero residual.
	atZero := distuv.Normal{Sigma: 0.2}.LogProb(0)
	for _, link := range []nma.Link{nma.LinkLogit, nma.LinkProbit} {
		t.Run(string(link), func(t *testing.T) {
			m := integratedContrast(t, nma.Regression{Prognostic: []string{"x"}}, link)
			for _, beta := range []float64{0, 3, -2} {
				theta := thetaFor(t, m, map[string]float64{"d[B]": 0.5, "beta[x]": beta})
				assert.InDelta(t, atZero, m.LogLikelihood(theta), 1e-9, "beta=%g", beta)
			}
		})
	}
}

func TestContrastLikelihood_EffectModifierShift(t *testing.T) {
	for _, link := range []nma.Link{nma.LinkLogit, nma.LinkProbit} {
		t.Run(string(link), func(t *testing.T) {
			m := integratedContrast(t, nma.Regression{Prognostic: []string{"x"}, EffectModifiers: []string{"x"}}, link)
			s := m.Design().Studies[0]
			require.Equal(t, nma.KindAgDContrast, s.Kind)
			armB := s.Arms[1-s.Baseline]
			xbar := armB.Means(1)[0]
			require.InDelta(t, 0.6, xbar, 0.05)

			const d, betaEM = 0.2, 0.5
			theta := thetaFor(t, m, map[string]float64{"d[B]": d, "beta[x]": 3, "beta[x:.trtB]": betaEM})
			want := distuv.Normal{Mu: d + betaEM*xbar, Sigma: 0.2}.LogProb(0.5)
			assert.InDelta(t, want, m.LogLikelihood(theta), 1e-9)
		})
	}
}
