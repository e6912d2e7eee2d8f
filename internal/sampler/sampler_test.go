package sampler

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/jSoboil/multinma/internal/nma"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gaussian is a correlated bivariate normal target.
type gaussian struct {
	mvn *distmv.Normal
}

func newGaussian(t *testing.T) *gaussian {
	t.Helper()
	cov := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 2})
	mvn, ok := distmv.NewNormal([]float64{1, -2}, cov, nil)
	require.True(t, ok)
	return &gaussian{mvn: mvn}
}

func (g *gaussian) Dim() int                        { return 2 }
func (g *gaussian) Names() []string                 { return []string{"a", "b"} }
func (g *gaussian) LogDensity(x []float64) float64  { return g.mvn.LogProb(x) }
func (g *gaussian) Constrain(x []float64) []float64 { return append([]float64(nil), x...) }
func (g *gaussian) Gradient(dst, x []float64) {
	// Σ⁻¹ = 1/1.75 [[2, -0.5], [-0.5, 1]]
	d0, d1 := x[0]-1, x[1]+2
	dst[0] = -(2*d0 - 0.5*d1) / 1.75
	dst[1] = -(-0.5*d0 + d1) / 1.75
}

// flat leaves b without any information.
type flat struct{}

func (flat) Dim() int                        { return 2 }
func (flat) Names() []string                 { return []string{"a", "b"} }
func (flat) LogDensity(x []float64) float64  { return -x[0] * x[0] }
func (flat) Constrain(x []float64) []float64 { return append([]float64(nil), x...) }
func (flat) Gradient(dst, x []float64)       { dst[0], dst[1] = -2*x[0], 0 }

// bounded is non-finite for negative a.
type bounded struct{}

func (bounded) Dim() int        { return 2 }
func (bounded) Names() []string { return []string{"a", "b"} }
func (bounded) LogDensity(x []float64) float64 {
	if x[0] < 0 {
		return math.Inf(-1)
	}
	return -x[1] * x[1]
}
func (bounded) Constrain(x []float64) []float64 { return append([]float64(nil), x...) }
func (bounded) Gradient(dst, x []float64)       { dst[0], dst[1] = 0, -2*x[1] }

func assertMoments(t *testing.T, d *nma.Draws, tol float64) {
	t.Helper()
	a, err := d.Column("a")
	require.NoError(t, err)
	b, err := d.Column("b")
	require.NoError(t, err)
	assert.InDelta(t, 1, stat.Mean(a, nil), tol)
	assert.InDelta(t, -2, stat.Mean(b, nil), tol)
	assert.InDelta(t, 1, stat.StdDev(a, nil), 2*tol)
	assert.InDelta(t, math.Sqrt(2), stat.StdDev(b, nil), 2*tol)
	assert.InDelta(t, 0.5/math.Sqrt(2), stat.Correlation(a, b, nil), 2*tol)
}

func TestLaplace_Gaussian(t *testing.T) {
	s := &Laplace{Draws: 4000, Seed: 3}
	res, err := s.Sample(context.Background(), newGaussian(t), []float64{0, 0})
	require.NoError(t, err)

	assert.InDelta(t, 1, res.Mode[0], 1e-4)
	assert.InDelta(t, -2, res.Mode[1], 1e-4)
	assert.Equal(t, 4000, res.Draws.Len())
	assertMoments(t, res.Draws, 0.06)
}

func TestLaplace_Deterministic(t *testing.T) {
	g := newGaussian(t)
	a, err := (&Laplace{Draws: 50, Seed: 9}).Sample(context.Background(), g, []float64{0, 0})
	require.NoError(t, err)
	b, err := (&Laplace{Draws: 50, Seed: 9}).Sample(context.Background(), g, []float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, a.Draws.Values, b.Draws.Values)
}

func TestLaplace_UnidentifiedParameter(t *testing.T) {
	_, err := (&Laplace{Draws: 10}).Sample(context.Background(), flat{}, []float64{0.3, 0})
	require.Error(t, err)
	assert.True(t, nma.IsSamplerError(err))

	var e *nma.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "b", e.Details["parameters"])
}

func TestLaplace_NonFiniteInit(t *testing.T) {
	_, err := (&Laplace{Draws: 10}).Sample(context.Background(), bounded{}, []float64{-1, 0})
	require.Error(t, err)
	assert.True(t, nma.IsSamplerError(err))
	assert.Contains(t, err.Error(), "initialisation failed")

	var e *nma.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "a", e.Details["parameters"])
}

func TestLaplace_WrongInitLength(t *testing.T) {
	_, err := (&Laplace{Draws: 10}).Sample(context.Background(), newGaussian(t), []float64{0})
	require.Error(t, err)
}

func TestMetropolis_Gaussian(t *testing.T) {
	s := &Metropolis{Chains: 4, Warmup: 500, Iter: 5000, Seed: 11}
	res, err := s.Sample(context.Background(), newGaussian(t), []float64{0, 0})
	require.NoError(t, err)

	assert.Equal(t, 20000, res.Draws.Len())
	assertMoments(t, res.Draws, 0.1)
	assert.False(t, res.Diagnostics.Has(nma.WarnRhat))
	assert.False(t, res.Diagnostics.Has(nma.WarnLowAcceptance))
}

func TestMetropolis_Deterministic(t *testing.T) {
	g := newGaussian(t)
	run := func() []float64 {
		s := &Metropolis{Chains: 3, Warmup: 20, Iter: 50, Seed: 5, Workers: 2}
		res, err := s.Sample(context.Background(), g, []float64{0, 0})
		require.NoError(t, err)
		return res.Draws.Values
	}
	assert.Equal(t, run(), run())
}

func TestMetropolis_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Metropolis{Chains: 2, Warmup: 10, Iter: 10}).Sample(ctx, newGaussian(t), []float64{0, 0})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMetropolis_DrawsNotMultipleOfChains(t *testing.T) {
	s, err := New(KindMetropolis, Options{Draws: 1001, Chains: 4, Warmup: 20, Seed: 3})
	require.NoError(t, err)
	m := s.(*Metropolis)
	assert.Equal(t, 251, m.Iter)

	res, err := s.Sample(context.Background(), newGaussian(t), []float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1001, res.Draws.Len())
}

func TestNew(t *testing.T) {
	s, err := New(KindMetropolis, Options{Draws: 1000, Chains: 4})
	require.NoError(t, err)
	m := s.(*Metropolis)
	assert.Equal(t, 250, m.Iter)
	assert.Equal(t, 250, m.Warmup)

	s, err = New("", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1000, s.(*Laplace).Draws)

	_, err = New("nuts", Options{})
	require.Error(t, err)
}

func TestSplitRhat(t *testing.T) {
	same := []float64{1, 2, 3, 4, 1, 2, 3, 4}
	assert.InDelta(t, 1, SplitRhat([][]float64{same, same}), 0.2)

	apart := [][]float64{
		{0, 0.1, -0.1, 0, 0.1, -0.1},
		{5, 5.1, 4.9, 5, 5.1, 4.9},
	}
	assert.Greater(t, SplitRhat(apart), 2.0)

	constant := []float64{1, 1, 1, 1}
	assert.Equal(t, 1.0, SplitRhat([][]float64{constant, constant}))
	assert.True(t, math.IsNaN(SplitRhat([][]float64{{1, 2}})))
}
