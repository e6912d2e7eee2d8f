package posterior

import (
	"context"
	"fmt"

	"github.com/jSoboil/multinma/internal/nma"
)

// EffectOptions configures RelativeEffects.
type EffectOptions struct {
	// Populations are the targets; nil uses the fit's study populations.
	Populations []nma.Population
	// AllContrasts reports every pairwise contrast rather than contrasts
	// against the reference treatment only.
	AllContrasts bool
	Workers      int
}

// Effect is a relative effect of Treatment against Comparator in one
// population, on the linear predictor scale.
type Effect struct {
	Population string `json:"population,omitempty"`
	Treatment  string `json:"treatment"`
	Comparator string `json:"comparator"`
	Summary
}

// RelativeEffects computes population-adjusted relative effects. Relative
// effects are linear in the covariates on the linear predictor scale, so
// averaging over integration points equals evaluating at the population
// means.
func (f *Fit) RelativeEffects(ctx context.Context, opts EffectOptions) ([]Effect, error) {
	c, err := f.coefs()
	if err != nil {
		return nil, err
	}
	targets, err := f.targets(opts.Populations)
	if err != nil {
		return nil, err
	}
	trts := f.Meta.TreatmentNames()
	nt := len(trts)
	var out []Effect
	for _, tg := range targets {
		eff, err := f.effectDraws(ctx, c, tg, opts.Workers)
		if err != nil {
			return nil, err
		}
		for a := 0; a < nt; a++ {
			for b := a + 1; b < nt; b++ {
				if a > 0 && !opts.AllContrasts {
					break
				}
				diff := make([]float64, len(eff))
				for i, row := range eff {
					diff[i] = row[b] - row[a]
				}
				out = append(out, Effect{
					Population: tg.name,
					Treatment:  trts[b],
					Comparator: trts[a],
					Summary:    Summarize(diff),
				})
			}
		}
	}
	return out, nil
}

// effectDraws returns, per draw, every treatment's effect against the
// reference at the target means.
func (f *Fit) effectDraws(ctx context.Context, c *coefs, tg target, workers int) ([][]float64, error) {
	n := f.Draws.Len()
	nt := len(f.Meta.Treatments)
	out := make([][]float64, n)
	centers := f.centers()
	err := forEachDraw(ctx, n, workers, func(i int) {
		row := f.Draws.Row(i)
		eff := make([]float64, nt)
		for t := range eff {
			eff[t] = c.relative(row, t, tg.means, centers)
		}
		out[i] = eff
	})
	if err != nil {
		return nil, fmt.Errorf("relative effects: %w", err)
	}
	return out, nil
}

func (f *Fit) centers() []float64 {
	if len(f.Meta.Centers) == len(f.Meta.Covariates) {
		return f.Meta.Centers
	}
	return make([]float64, len(f.Meta.Covariates))
}
