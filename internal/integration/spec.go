package integration

import (
	"fmt"
	"slices"
	"sort"

	"github.com/jSoboil/multinma/internal/copula"
	"github.com/jSoboil/multinma/internal/nma"
)

// CovariateSpec declares the marginal distribution of one covariate and
// which summary columns supply its parameters, e.g.
//
//	{Name: "age", Family: "gamma", Params: {"mean": "age_mean", "sd": "age_sd"}}
type CovariateSpec struct {
	Name   string            `json:"name" yaml:"name"`
	Family copula.Family     `json:"dist" yaml:"dist"`
	Params map[string]string `json:"params" yaml:"params"`
}

// Validate checks the family and that exactly its parameters are mapped.
func (s CovariateSpec) Validate() error {
	if s.Name == "" {
		return nma.DistributionErrorf("covariate spec has no name")
	}
	want, err := copula.ParamNames(s.Family)
	if err != nil {
		return &nma.Error{Code: nma.ErrCodeDistribution, Message: err.Error(), Covariate: s.Name}
	}
	for _, p := range want {
		if s.Params[p] == "" {
			return &nma.Error{
				Code:      nma.ErrCodeDistribution,
				Message:   fmt.Sprintf("%s marginal needs a column for parameter %q", s.Family, p),
				Covariate: s.Name,
			}
		}
	}
	for p := range s.Params {
		if !slices.Contains(want, p) {
			return &nma.Error{
				Code:      nma.ErrCodeDistribution,
				Message:   fmt.Sprintf("%s marginal has no parameter %q (want %v)", s.Family, p, want),
				Covariate: s.Name,
			}
		}
	}
	return nil
}

// Marginal resolves the spec against one arm's summary columns.
func (s CovariateSpec) Marginal(summaries map[string]float64) (copula.Marginal, map[string]float64, error) {
	params := make(map[string]float64, len(s.Params))
	for p, col := range s.Params {
		v, ok := summaries[col]
		if !ok {
			return nil, nil, &nma.Error{
				Code:      nma.ErrCodeDistribution,
				Message:   fmt.Sprintf("summary column %q (parameter %s) not found", col, p),
				Covariate: s.Name,
			}
		}
		params[p] = v
	}
	m, err := copula.NewMarginal(s.Family, params)
	if err != nil {
		if e, ok := err.(*nma.Error); ok {
			e.Covariate = s.Name
			return nil, nil, e
		}
		return nil, nil, err
	}
	return m, params, nil
}

// normalizeSpecs validates specs and normalises their labels.
func normalizeSpecs(specs []CovariateSpec) ([]CovariateSpec, []string, error) {
	if len(specs) == 0 {
		return nil, nil, nma.DistributionErrorf("no covariates to integrate")
	}
	out := make([]CovariateSpec, len(specs))
	names := make([]string, len(specs))
	for i, s := range specs {
		s.Name = nma.NormalizeLabel(s.Name)
		params := make(map[string]string, len(s.Params))
		for p, col := range s.Params {
			params[p] = nma.NormalizeLabel(col)
		}
		s.Params = params
		if err := s.Validate(); err != nil {
			return nil, nil, err
		}
		if slices.Contains(names[:i], s.Name) {
			return nil, nil, &nma.Error{Code: nma.ErrCodeDistribution, Message: "covariate specified twice", Covariate: s.Name}
		}
		out[i], names[i] = s, s.Name
	}
	return out, names, nil
}

// specKey flattens specs into hashable strings in a stable order.
func specKey(specs []CovariateSpec) []string {
	var out []string
	for _, s := range specs {
		keys := make([]string, 0, len(s.Params))
		for p := range s.Params {
			keys = append(keys, p)
		}
		sort.Strings(keys)
		out = append(out, s.Name, string(s.Family))
		for _, k := range keys {
			out = append(out, k, s.Params[k])
		}
	}
	return out
}
