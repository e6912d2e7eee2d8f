package posterior

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jSoboil/multinma/internal/likelihood"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/rng"
)

// Scale selects the scale of predictions.
type Scale string

const (
	ScaleLink     Scale = "link"
	ScaleResponse Scale = "response"
)

// Baseline is the distribution of the reference treatment's linear
// predictor in the target population, at the population mean covariates.
type Baseline struct {
	Mean float64 `json:"mean"`
	SD   float64 `json:"sd"`
}

// PredictOptions configures Predict.
type PredictOptions struct {
	Populations []nma.Population
	Baseline    Baseline
	Scale       Scale
	Seed        uint64
	Workers     int
}

// Prediction is the absolute outcome of Treatment in Population.
type Prediction struct {
	Population string `json:"population,omitempty"`
	Treatment  string `json:"treatment"`
	Summary
}

// Predict computes absolute predictions for every treatment. A baseline is
// drawn once per posterior draw and shared by all treatments. On the
// response scale, populations carrying integration points are averaged
// over their points; means-only populations use plug-in.
func (f *Fit) Predict(ctx context.Context, opts PredictOptions) ([]Prediction, error) {
	if opts.Baseline.SD < 0 {
		return nil, fmt.Errorf("predict: baseline sd must be non-negative, got %g", opts.Baseline.SD)
	}
	switch opts.Scale {
	case "":
		opts.Scale = ScaleResponse
	case ScaleLink, ScaleResponse:
	default:
		return nil, fmt.Errorf("predict: unknown scale %q", opts.Scale)
	}
	c, err := f.coefs()
	if err != nil {
		return nil, err
	}
	targets, err := f.targets(opts.Populations)
	if err != nil {
		return nil, err
	}

	n := f.Draws.Len()
	base := make([]float64, n)
	bd := distuv.Normal{Mu: opts.Baseline.Mean, Sigma: opts.Baseline.SD, Src: rng.New(opts.Seed)}
	for i := range base {
		if opts.Baseline.SD == 0 {
			base[i] = opts.Baseline.Mean
			continue
		}
		base[i] = bd.Rand()
	}

	link := f.Meta.Model.Link
	centers := f.centers()
	trts := f.Meta.TreatmentNames()
	d := len(f.Meta.Covariates)
	var out []Prediction
	for _, tg := range targets {
		pred := make([][]float64, len(trts))
		for t := range pred {
			pred[t] = make([]float64, n)
		}
		err := forEachDraw(ctx, n, opts.Workers, func(i int) {
			row := f.Draws.Row(i)
			for t := range trts {
				if opts.Scale == ScaleResponse && tg.n > 0 {
					var sum float64
					for k := 0; k < tg.n; k++ {
						x := tg.point(k, d)
						eta := base[i] + c.prognostic(row, x, tg.means) + c.relative(row, t, x, centers)
						sum += likelihood.InvLink(link, eta)
					}
					pred[t][i] = sum / float64(tg.n)
					continue
				}
				eta := base[i] + c.relative(row, t, tg.means, centers)
				if opts.Scale == ScaleResponse {
					eta = likelihood.InvLink(link, eta)
				}
				pred[t][i] = eta
			}
		})
		if err != nil {
			return nil, fmt.Errorf("predict: %w", err)
		}
		for t, name := range trts {
			out = append(out, Prediction{Population: tg.name, Treatment: name, Summary: Summarize(pred[t])})
		}
	}
	return out, nil
}
