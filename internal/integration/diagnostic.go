package integration

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/rng"
)

// Integrand evaluates the individual-level quantity averaged over an arm's
// integration points, typically the linear predictor or the response mean
// at the posterior mean.
type Integrand func(study *nma.Study, arm *nma.Arm, x []float64) float64

// ArmError is the integration-error estimate for one AgD arm.
type ArmError struct {
	Study     string `json:"study"`
	Treatment string `json:"treatment"`
	N         int    `json:"n"`
	// Cumulative holds one cumulative-mean sequence per replicate point
	// set; Cumulative[r][k-1] is the mean over the first k points.
	Cumulative [][]float64 `json:"-"`
	// Estimate is the largest discrepancy between replicates at k=N.
	Estimate float64 `json:"estimate"`
	Flagged  bool    `json:"flagged"`
}

// Final returns the full-set integral of each replicate.
func (a ArmError) Final() []float64 {
	out := make([]float64, len(a.Cumulative))
	for r, c := range a.Cumulative {
		if len(c) > 0 {
			out[r] = c[len(c)-1]
		}
	}
	return out
}

// CumulativeMean returns m where m[k-1] is the mean of v[:k].
func CumulativeMean(v []float64) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		sum += x
		out[i] = sum / float64(i+1)
	}
	return out
}

// IntegrationError regenerates the integration points of every AgD arm
// with reps independently scrambled point sets and compares the
// cumulative means of f. Replicate 0 uses opts.Seed, so it reproduces the
// points attached by AddIntegration with the same options. Arms whose
// estimate exceeds tol are flagged and reported as warnings.
func IntegrationError(ctx context.Context, net *nma.Network, opts Options, f Integrand, reps int, tol float64) ([]ArmError, nma.Diagnostics, error) {
	if reps < 2 {
		return nil, nil, fmt.Errorf("integration: need at least 2 replicates, got %d", reps)
	}
	if f == nil {
		return nil, nil, fmt.Errorf("integration: nil integrand")
	}

	// Fix the correlation once so every replicate differs only by scramble.
	base, err := prepare(net, opts)
	if err != nil {
		return nil, nil, err
	}
	opts.Cor = symToSlice(base.cor)

	nets := make([]*nma.Network, reps)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.workers()/2))
	for r := range reps {
		ro := opts
		if r > 0 {
			ro.Seed = rng.Derive(opts.Seed, r)
		}
		g.Go(func() error {
			out, _, err := AddIntegration(gctx, net, ro)
			if err != nil {
				return fmt.Errorf("replicate %d: %w", r, err)
			}
			nets[r] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		results []ArmError
		diags   nma.Diagnostics
	)
	for si := range net.Studies {
		if !net.Studies[si].Kind.IsAgD() {
			continue
		}
		for ai := range net.Studies[si].Arms {
			ae := ArmError{
				Study:     net.Studies[si].Name,
				Treatment: net.Studies[si].Arms[ai].Treatment,
			}
			for r := range reps {
				s := &nets[r].Studies[si]
				arm := &s.Arms[ai]
				pts := arm.Points
				vals := make([]float64, pts.N())
				for i := range vals {
					vals[i] = f(s, arm, pts.Point(i))
				}
				ae.Cumulative = append(ae.Cumulative, CumulativeMean(vals))
				ae.N = pts.N()
			}
			final := ae.Final()
			for a := range final {
				for b := a + 1; b < len(final); b++ {
					ae.Estimate = math.Max(ae.Estimate, math.Abs(final[a]-final[b]))
				}
			}
			if ae.Estimate > tol {
				ae.Flagged = true
				diags = append(diags, nma.Warning{
					Code:      nma.WarnIntegrationError,
					Message:   fmt.Sprintf("integration error %.3g exceeds %.3g with %d points; increase n", ae.Estimate, tol, ae.N),
					Study:     ae.Study,
					Treatment: ae.Treatment,
					Value:     ae.Estimate,
				})
				opts.logger().Warn("integration error above tolerance",
					"study", ae.Study, "trt", ae.Treatment, "estimate", ae.Estimate, "n", ae.N)
			}
			results = append(results, ae)
		}
	}
	return results, diags, nil
}
