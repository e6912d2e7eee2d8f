package copula

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jSoboil/multinma/internal/nma"
)

// Marginal is a univariate quantile function.
type Marginal interface {
	Quantile(p float64) float64
}

// Family names a supported marginal distribution.
type Family string

const (
	Normal    Family = "normal"
	LogNormal Family = "lognormal"
	Gamma     Family = "gamma"
	Beta      Family = "beta"
	Bernoulli Family = "bernoulli"
	Uniform   Family = "uniform"
)

// paramNames lists the parameters each family needs.
var paramNames = map[Family][]string{
	Normal:    {"mean", "sd"},
	LogNormal: {"mean", "sd"},
	Gamma:     {"mean", "sd"},
	Beta:      {"mean", "sd"},
	Bernoulli: {"prob"},
	Uniform:   {"min", "max"},
}

// Families returns the supported family names, sorted.
func Families() []string {
	out := make([]string, 0, len(paramNames))
	for f := range paramNames {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

// ParamNames returns the parameters a family needs.
func ParamNames(f Family) ([]string, error) {
	p, ok := paramNames[f]
	if !ok {
		return nil, nma.DistributionErrorf("unsupported marginal %q (supported: %v)", f, Families())
	}
	return slices.Clone(p), nil
}

// NewMarginal builds a marginal from family parameters. Means and standard
// deviations are on the natural scale of the covariate.
func NewMarginal(f Family, params map[string]float64) (Marginal, error) {
	names, err := ParamNames(f)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		v, ok := params[n]
		if !ok {
			return nil, nma.DistributionErrorf("%s marginal missing parameter %q", f, n)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nma.DistributionErrorf("%s marginal parameter %q is not finite", f, n)
		}
	}

	switch f {
	case Normal:
		mean, sd := params["mean"], params["sd"]
		if sd < 0 {
			return nil, nma.DistributionErrorf("normal sd must be non-negative, got %g", sd)
		}
		if sd == 0 {
			return constant(mean), nil
		}
		return distuv.Normal{Mu: mean, Sigma: sd}, nil

	case LogNormal:
		mean, sd := params["mean"], params["sd"]
		if mean <= 0 || sd < 0 {
			return nil, nma.DistributionErrorf("lognormal needs mean > 0 and sd >= 0, got mean=%g sd=%g", mean, sd)
		}
		if sd == 0 {
			return constant(mean), nil
		}
		s2 := math.Log1p(sd * sd / (mean * mean))
		return distuv.LogNormal{Mu: math.Log(mean) - s2/2, Sigma: math.Sqrt(s2)}, nil

	case Gamma:
		mean, sd := params["mean"], params["sd"]
		if mean <= 0 || sd < 0 {
			return nil, nma.DistributionErrorf("gamma needs mean > 0 and sd >= 0, got mean=%g sd=%g", mean, sd)
		}
		if sd == 0 {
			return constant(mean), nil
		}
		shape := (mean / sd) * (mean / sd)
		rate := mean / (sd * sd)
		return distuv.Gamma{Alpha: shape, Beta: rate}, nil

	case Beta:
		mean, sd := params["mean"], params["sd"]
		if mean <= 0 || mean >= 1 || sd < 0 {
			return nil, nma.DistributionErrorf("beta needs 0 < mean < 1 and sd >= 0, got mean=%g sd=%g", mean, sd)
		}
		if sd == 0 {
			return constant(mean), nil
		}
		v := sd * sd
		if v >= mean*(1-mean) {
			return nil, nma.DistributionErrorf("beta sd %g too large for mean %g", sd, mean)
		}
		nu := mean*(1-mean)/v - 1
		return distuv.Beta{Alpha: mean * nu, Beta: (1 - mean) * nu}, nil

	case Bernoulli:
		p := params["prob"]
		if p < 0 || p > 1 {
			return nil, nma.DistributionErrorf("bernoulli prob must be in [0, 1], got %g", p)
		}
		return bernoulli(p), nil

	case Uniform:
		lo, hi := params["min"], params["max"]
		if hi <= lo {
			return nil, nma.DistributionErrorf("uniform needs min < max, got [%g, %g]", lo, hi)
		}
		return distuv.Uniform{Min: lo, Max: hi}, nil
	}
	return nil, nma.DistributionErrorf("unsupported marginal %q", f)
}

// bernoulli is the step quantile function of a Bernoulli(p) variable.
type bernoulli float64

func (b bernoulli) Quantile(u float64) float64 {
	if u <= 1-float64(b) {
		return 0
	}
	return 1
}

// constant is a point mass, used when a reported sd is zero.
type constant float64

func (c constant) Quantile(float64) float64 { return float64(c) }

// String describes a marginal for logs.
func String(f Family, params map[string]float64) string {
	names := paramNames[f]
	s := string(f) + "("
	for i, n := range names {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%g", n, params[n])
	}
	return s + ")"
}
