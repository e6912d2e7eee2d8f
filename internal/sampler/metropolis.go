package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/rng"
)

// Acceptance bounds outside which a chain is reported as poorly tuned.
const (
	minAcceptance = 0.1
	maxAcceptance = 0.8
	maxRhat       = 1.05
)

// Metropolis is a random-walk Metropolis sampler. The proposal covariance
// is the Laplace covariance scaled by 2.38²/d and each chain starts from
// a draw of the Laplace approximation.
type Metropolis struct {
	Chains int
	Warmup int
	Iter   int
	// Draws caps the pooled draws; the last chain is cut short when
	// Chains·Iter exceeds it. Zero keeps every draw.
	Draws   int
	Seed    uint64
	Workers int
	Logger  *slog.Logger
}

type chain struct {
	values   []float64
	accepted int
}

// Sample implements Sampler.
func (m *Metropolis) Sample(ctx context.Context, t Target, init []float64) (*Result, error) {
	if m.Chains < 1 || m.Iter < 1 || m.Warmup < 0 {
		return nil, fmt.Errorf("metropolis: need chains >= 1 and iter >= 1, got %d and %d", m.Chains, m.Iter)
	}
	log := logger(m.Logger)
	mode, cov, err := approximate(ctx, t, init, log)
	if err != nil {
		return nil, err
	}
	var chol mat.Cholesky
	if !chol.Factorize(cov) {
		return nil, nma.SamplerErrorf("proposal covariance is not positive definite")
	}
	var l mat.TriDense
	chol.LTo(&l)
	d := t.Dim()
	scale := 2.38 / math.Sqrt(float64(d))

	chains := make([]chain, m.Chains)
	g, ctx := errgroup.WithContext(ctx)
	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for c := range chains {
		g.Go(func() error {
			r := rand.New(rng.New(rng.Derive(m.Seed, c)))
			var err error
			chains[c], err = m.run(ctx, t, mode, &l, scale, r)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var diags nma.Diagnostics
	total := m.Warmup + m.Iter
	for c, ch := range chains {
		rate := float64(ch.accepted) / float64(total)
		log.Debug("chain finished", "chain", c, "acceptance", rate)
		switch {
		case rate < minAcceptance:
			diags = append(diags, nma.Warning{
				Code:    nma.WarnLowAcceptance,
				Message: fmt.Sprintf("chain %d acceptance rate %.3f", c, rate),
				Value:   rate,
			})
		case rate > maxAcceptance:
			diags = append(diags, nma.Warning{
				Code:    nma.WarnHighAcceptance,
				Message: fmt.Sprintf("chain %d acceptance rate %.3f", c, rate),
				Value:   rate,
			})
		}
	}

	names := t.Names()
	values := make([]float64, 0, m.Chains*m.Iter*len(names))
	for _, ch := range chains {
		values = append(values, ch.values...)
	}
	if m.Draws > 0 && m.Draws*len(names) < len(values) {
		values = values[:m.Draws*len(names)]
	}
	draws, err := nma.NewDraws(names, values)
	if err != nil {
		return nil, err
	}
	if m.Chains > 1 {
		for j, name := range names {
			per := make([][]float64, m.Chains)
			for c, ch := range chains {
				per[c] = column(ch.values, len(names), j)
			}
			rhat := SplitRhat(per)
			if rhat > maxRhat {
				log.Warn("chains have not mixed", "parameter", name, "rhat", rhat)
				diags = append(diags, nma.Warning{
					Code:    nma.WarnRhat,
					Message: fmt.Sprintf("R-hat %.3f for %s", rhat, name),
					Value:   rhat,
				})
			}
		}
	}
	return &Result{Draws: draws, Mode: mode, Diagnostics: diags}, nil
}

func (m *Metropolis) run(ctx context.Context, t Target, mode []float64, l *mat.TriDense, scale float64, r *rand.Rand) (chain, error) {
	d := len(mode)
	z := make([]float64, d)
	step := mat.NewVecDense(d, nil)

	// Start from the Laplace approximation.
	for i := range z {
		z[i] = r.NormFloat64()
	}
	step.MulVec(l, mat.NewVecDense(d, z))
	cur := slices.Clone(mode)
	for i := range cur {
		cur[i] += step.AtVec(i)
	}
	lp := t.LogDensity(cur)
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		copy(cur, mode)
		lp = t.LogDensity(cur)
	}

	out := chain{values: make([]float64, 0, m.Iter*d)}
	prop := make([]float64, d)
	for it := 0; it < m.Warmup+m.Iter; it++ {
		if it%64 == 0 {
			if err := ctx.Err(); err != nil {
				return chain{}, err
			}
		}
		for i := range z {
			z[i] = r.NormFloat64()
		}
		step.MulVec(l, mat.NewVecDense(d, z))
		for i := range prop {
			prop[i] = cur[i] + scale*step.AtVec(i)
		}
		lpProp := t.LogDensity(prop)
		if !math.IsNaN(lpProp) && math.Log(r.Float64()) < lpProp-lp {
			copy(cur, prop)
			lp = lpProp
			out.accepted++
		}
		if it >= m.Warmup {
			out.values = append(out.values, t.Constrain(cur)...)
		}
	}
	return out, nil
}

func column(values []float64, p, j int) []float64 {
	out := make([]float64, 0, len(values)/p)
	for i := j; i < len(values); i += p {
		out = append(out, values[i])
	}
	return out
}
