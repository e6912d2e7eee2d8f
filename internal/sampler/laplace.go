package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/rng"
)

// Laplace approximates the posterior by a normal centred at the mode with
// covariance the inverse Hessian of the negative log density.
type Laplace struct {
	Draws  int
	Seed   uint64
	Logger *slog.Logger
}

// Sample implements Sampler.
func (l *Laplace) Sample(ctx context.Context, t Target, init []float64) (*Result, error) {
	mode, cov, err := approximate(ctx, t, init, logger(l.Logger))
	if err != nil {
		return nil, err
	}
	mvn, ok := distmv.NewNormal(mode, cov, rng.New(l.Seed))
	if !ok {
		return nil, nma.SamplerErrorf("posterior covariance is not positive definite")
	}
	values := make([]float64, 0, l.Draws*t.Dim())
	theta := make([]float64, t.Dim())
	for range l.Draws {
		mvn.Rand(theta)
		values = append(values, t.Constrain(theta)...)
	}
	draws, err := nma.NewDraws(t.Names(), values)
	if err != nil {
		return nil, err
	}
	return &Result{Draws: draws, Mode: mode}, nil
}

// approximate finds the posterior mode and the inverse Hessian there.
func approximate(ctx context.Context, t Target, init []float64, log *slog.Logger) ([]float64, *mat.SymDense, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(init) != t.Dim() {
		return nil, nil, fmt.Errorf("sampler: init has %d values, target has %d parameters", len(init), t.Dim())
	}
	if lp := t.LogDensity(init); math.IsNaN(lp) || math.IsInf(lp, 0) {
		return nil, nil, &nma.Error{
			Code:    nma.ErrCodeSampler,
			Message: "initialisation failed: log density is not finite at the initial values",
			Details: map[string]string{"parameters": strings.Join(nonFiniteParams(t, init), ",")},
		}
	}

	neg := func(x []float64) float64 {
		lp := t.LogDensity(x)
		if math.IsNaN(lp) || math.IsInf(lp, -1) {
			return math.Inf(1)
		}
		return -lp
	}
	problem := optimize.Problem{
		Func: neg,
		Grad: func(grad, x []float64) {
			t.Gradient(grad, x)
			floats.Scale(-1, grad)
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   5000,
	}
	res, err := optimize.Minimize(problem, slices.Clone(init), settings, &optimize.BFGS{})
	if res == nil {
		return nil, nil, nma.SamplerErrorf("mode search failed: %v", err)
	}
	grad := make([]float64, t.Dim())
	problem.Grad(grad, res.X)
	if gn := floats.Norm(grad, math.Inf(1)); err != nil && gn > 1e-3*(1+math.Abs(res.F)) {
		return nil, nil, nma.SamplerErrorf("mode search failed (%v) with gradient norm %.3g", err, gn)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	log.Debug("posterior mode found", "status", res.Status, "evaluations", res.Stats.FuncEvaluations, "log_density", -res.F)

	n := t.Dim()
	hess := mat.NewSymDense(n, nil)
	fd.Hessian(hess, neg, res.X, &fd.Settings{Formula: fd.Central})

	var chol mat.Cholesky
	if ok := chol.Factorize(hess); !ok {
		names := t.Names()
		var bad []string
		for i := 0; i < n; i++ {
			if !(hess.At(i, i) > 0) {
				bad = append(bad, names[i])
			}
		}
		if len(bad) == 0 {
			bad = names
		}
		return nil, nil, &nma.Error{
			Code:    nma.ErrCodeSampler,
			Message: "Hessian at the posterior mode is not positive definite; check for unidentified parameters: " + strings.Join(bad, ", "),
			Details: map[string]string{"parameters": strings.Join(bad, ",")},
		}
	}
	cov := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, nil, nma.SamplerErrorf("inverting Hessian: %v", err)
	}
	return res.X, cov, nil
}

// nonFiniteParams names parameters whose perturbation changes a
// non-finite log density to a finite one, falling back to all names.
func nonFiniteParams(t Target, x []float64) []string {
	names := t.Names()
	var out []string
	y := slices.Clone(x)
	for i := range x {
		for _, v := range []float64{-1, 1} {
			y[i] = x[i] + v
			lp := t.LogDensity(y)
			if !math.IsNaN(lp) && !math.IsInf(lp, 0) {
				out = append(out, names[i])
				break
			}
		}
		y[i] = x[i]
	}
	if len(out) == 0 {
		return names
	}
	return out
}
