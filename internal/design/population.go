package design

import (
	"slices"

	"github.com/jSoboil/multinma/internal/nma"
)

// StudyPopulations returns one population per study, carrying the study's
// covariate distribution over covariates: the individuals of IPD studies
// and the pooled integration points of AgD studies. Studies missing a
// covariate are skipped.
func StudyPopulations(net *nma.Network, covariates []string) []nma.Population {
	var out []nma.Population
	d := len(covariates)
	for _, s := range net.Studies {
		var x []float64
		ok := true
		if s.Kind == nma.KindIPD {
			cols := make([]int, d)
			for j, c := range covariates {
				cols[j] = net.CovariateIndex(c)
				ok = ok && cols[j] >= 0
			}
			if !ok {
				continue
			}
			for _, row := range s.IPD {
				for _, k := range cols {
					x = append(x, row.X[k])
				}
			}
		} else {
			for _, a := range s.Arms {
				if a.Points == nil {
					ok = false
					break
				}
				cols := make([]int, d)
				for j, c := range covariates {
					cols[j] = a.Points.Index(c)
					ok = ok && cols[j] >= 0
				}
				if !ok {
					break
				}
				for i := 0; i < a.Points.N(); i++ {
					pt := a.Points.Point(i)
					for _, k := range cols {
						x = append(x, pt[k])
					}
				}
			}
			if !ok {
				continue
			}
		}
		if len(x) == 0 {
			continue
		}
		out = append(out, nma.Population{
			Name:   s.Name,
			Points: &nma.IntegrationPoints{Covariates: slices.Clone(covariates), X: x},
		})
	}
	return out
}
