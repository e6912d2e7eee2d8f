package likelihood

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jSoboil/multinma/internal/nma"
)

// LogPrior evaluates a prior density at x. Half priors are folded at their
// location and return -Inf below it.
func LogPrior(p nma.Prior, x float64) float64 {
	var lp float64
	switch p.Family {
	case nma.PriorFlat:
		return 0
	case nma.PriorNormal, nma.PriorHalfNormal:
		lp = distuv.Normal{Mu: p.Location, Sigma: p.Scale}.LogProb(x)
	case nma.PriorCauchy, nma.PriorHalfCauchy:
		lp = distuv.StudentsT{Mu: p.Location, Sigma: p.Scale, Nu: 1}.LogProb(x)
	case nma.PriorStudentT, nma.PriorHalfStudentT:
		lp = distuv.StudentsT{Mu: p.Location, Sigma: p.Scale, Nu: p.DF}.LogProb(x)
	default:
		return math.Inf(-1)
	}
	if p.Family.IsHalf() {
		if x < p.Location {
			return math.Inf(-1)
		}
		lp += math.Ln2
	}
	return lp
}

// validatePrior checks the parameters of one prior.
func validatePrior(block string, p nma.Prior, positive bool) error {
	switch p.Family {
	case nma.PriorFlat:
		return nil
	case nma.PriorNormal, nma.PriorCauchy, nma.PriorHalfNormal, nma.PriorHalfCauchy:
	case nma.PriorStudentT, nma.PriorHalfStudentT:
		if !(p.DF > 0) {
			return nma.SchemaErrorf("prior_%s: %s needs df > 0", block, p.Family)
		}
	default:
		return nma.SchemaErrorf("prior_%s: unsupported family %q", block, p.Family)
	}
	if !(p.Scale > 0) {
		return nma.SchemaErrorf("prior_%s: scale must be positive, got %g", block, p.Scale)
	}
	if positive && !p.Family.IsHalf() {
		return nma.SchemaErrorf("prior_%s: %s is not restricted to positive values; use a half prior", block, p.Family)
	}
	return nil
}

func validatePriors(p nma.Priors) error {
	checks := []struct {
		block    string
		prior    nma.Prior
		positive bool
	}{
		{"intercept", p.Intercept, false},
		{"trt", p.Trt, false},
		{"reg", p.Reg, false},
		{"het", p.Het, true},
		{"aux", p.Aux, true},
		{"class_sd", p.ClassSD, true},
	}
	for _, c := range checks {
		if err := validatePrior(c.block, c.prior, c.positive); err != nil {
			return err
		}
	}
	return nil
}
