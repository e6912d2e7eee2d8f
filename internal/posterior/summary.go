package posterior

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/jSoboil/multinma/internal/design"
	"github.com/jSoboil/multinma/internal/nma"
)

// Summary describes the posterior distribution of one quantity.
type Summary struct {
	Mean   float64 `json:"mean"`
	SD     float64 `json:"sd"`
	Lower  float64 `json:"q2.5"`
	Median float64 `json:"q50"`
	Upper  float64 `json:"q97.5"`
}

// Summarize computes the mean, SD and the 2.5%, 50% and 97.5% empirical
// quantiles of x. x is not modified.
func Summarize(x []float64) Summary {
	if len(x) == 0 {
		nan := math.NaN()
		return Summary{nan, nan, nan, nan, nan}
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	mean, sd := stat.MeanStdDev(sorted, nil)
	if len(x) == 1 {
		sd = 0
	}
	return Summary{
		Mean:   mean,
		SD:     sd,
		Lower:  stat.Quantile(0.025, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Upper:  stat.Quantile(0.975, stat.Empirical, sorted, nil),
	}
}

// ParamSummary is the summary of one model parameter.
type ParamSummary struct {
	Parameter string `json:"parameter"`
	Summary
}

// Summary summarises every parameter in the draws.
func (f *Fit) Summary() []ParamSummary {
	out := make([]ParamSummary, len(f.Draws.Names))
	for j, name := range f.Draws.Names {
		col, _ := f.Draws.Column(name)
		out[j] = ParamSummary{Parameter: name, Summary: Summarize(col)}
	}
	return out
}

// CheckHeterogeneity warns when the 95% credible interval of the
// heterogeneity SD is wider than maxWidth, which usually means the data
// carry little information about it and the prior dominates.
func (f *Fit) CheckHeterogeneity(maxWidth float64) nma.Diagnostics {
	if !f.Draws.Has(design.TauName) {
		return nil
	}
	col, _ := f.Draws.Column(design.TauName)
	s := Summarize(col)
	width := s.Upper - s.Lower
	if width <= maxWidth {
		return nil
	}
	return nma.Diagnostics{{
		Code:    nma.WarnWideHeterogeneity,
		Message: fmt.Sprintf("95%% interval for %s is [%.3g, %.3g]", design.TauName, s.Lower, s.Upper),
		Value:   width,
	}}
}
