package nma

import "slices"

// IntegrationPoints is an ordered set of covariate draws for one AgD arm or
// target population. Row-major: point i occupies X[i*len(Covariates):].
// Never mutated once created; regenerate to change.
type IntegrationPoints struct {
	Covariates []string  `json:"covariates"`
	X          []float64 `json:"x"`
	Seed       uint64    `json:"seed"`
	// Key is the content hash of the inputs the points were generated from.
	Key string `json:"key"`
}

// N returns the number of integration points.
func (p *IntegrationPoints) N() int {
	if p == nil || len(p.Covariates) == 0 {
		return 0
	}
	return len(p.X) / len(p.Covariates)
}

// Dim returns the number of covariates per point.
func (p *IntegrationPoints) Dim() int {
	return len(p.Covariates)
}

// Point returns the covariate vector of point i. The slice aliases X.
func (p *IntegrationPoints) Point(i int) []float64 {
	d := len(p.Covariates)
	return p.X[i*d : (i+1)*d : (i+1)*d]
}

// Index returns the column of a covariate, or -1.
func (p *IntegrationPoints) Index(name string) int {
	return slices.Index(p.Covariates, name)
}

// Means returns the per-covariate mean over all points.
func (p *IntegrationPoints) Means() []float64 {
	d := len(p.Covariates)
	out := make([]float64, d)
	n := p.N()
	if n == 0 {
		return out
	}
	for i := 0; i < n; i++ {
		for j, v := range p.Point(i) {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(n)
	}
	return out
}

// Population is an ad hoc target population for prediction. It carries
// either covariate means (plug-in) or, after integration, a full point set.
type Population struct {
	Name string `json:"name" yaml:"name"`
	// Means are covariate means used when no points are attached.
	Means map[string]float64 `json:"means,omitempty" yaml:"means,omitempty"`
	// Summaries are the parameter columns consumed by covariate specs,
	// e.g. {"age_mean": 60, "age_sd": 8}.
	Summaries map[string]float64 `json:"summaries,omitempty" yaml:"summaries,omitempty"`
	Points    *IntegrationPoints `json:"points,omitempty" yaml:"-"`
}

// CovariateMean returns the population mean of a covariate, preferring the
// integration points when present.
func (p *Population) CovariateMean(name string) (float64, bool) {
	if p.Points != nil {
		if j := p.Points.Index(name); j >= 0 {
			return p.Points.Means()[j], true
		}
	}
	v, ok := p.Means[name]
	return v, ok
}
