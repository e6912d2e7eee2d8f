package posterior

import (
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/jSoboil/multinma/internal/integration"
	"github.com/jSoboil/multinma/internal/likelihood"
	"github.com/jSoboil/multinma/internal/nma"
)

// Integrand returns the response-scale mean of an individual evaluated at
// the posterior mean of the parameters. covariates names the columns of
// the integration points the integrand will receive.
func (f *Fit) Integrand(covariates []string) (integration.Integrand, error) {
	c, err := f.coefs()
	if err != nil {
		return nil, err
	}
	mean := make([]float64, len(f.Draws.Names))
	for j, name := range f.Draws.Names {
		col, _ := f.Draws.Column(name)
		mean[j] = stat.Mean(col, nil)
	}
	cols := make([]int, len(f.Meta.Covariates))
	for k, cov := range f.Meta.Covariates {
		cols[k] = slices.Index(covariates, cov)
		if cols[k] < 0 {
			return nil, &nma.Error{
				Code:      nma.ErrCodeSchema,
				Message:   "integration points lack model covariate",
				Covariate: cov,
			}
		}
	}
	mu := map[string]float64{}
	for _, s := range f.Meta.Studies {
		if j, ok := f.Draws.Index(f.Meta.InterceptName(s)); ok {
			mu[s] = mean[j]
		}
	}
	trt := map[string]int{}
	for t, name := range f.Meta.TreatmentNames() {
		trt[name] = t
	}
	centers := f.centers()
	link := f.Meta.Model.Link
	return func(study *nma.Study, arm *nma.Arm, x []float64) float64 {
		xf := make([]float64, len(cols))
		for k, j := range cols {
			xf[k] = x[j]
		}
		eta := mu[study.Name] + c.prognostic(mean, xf, centers) + c.relative(mean, trt[arm.Treatment], xf, centers)
		return likelihood.InvLink(link, eta)
	}, nil
}
