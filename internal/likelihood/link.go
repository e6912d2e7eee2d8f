package likelihood

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jSoboil/multinma/internal/nma"
)

// minProb bounds probabilities away from 0 and 1 before taking logs.
const minProb = 1e-300

// InvLink maps a linear predictor to the mean response.
func InvLink(l nma.Link, eta float64) float64 {
	switch l {
	case nma.LinkLog:
		return math.Exp(eta)
	case nma.LinkLogit:
		if eta >= 0 {
			return 1 / (1 + math.Exp(-eta))
		}
		e := math.Exp(eta)
		return e / (1 + e)
	case nma.LinkProbit:
		return distuv.UnitNormal.CDF(eta)
	case nma.LinkCloglog:
		return -math.Expm1(-math.Exp(eta))
	default:
		return eta
	}
}

// Link maps a mean response to the linear predictor scale.
func Link(l nma.Link, mu float64) float64 {
	switch l {
	case nma.LinkLog:
		return math.Log(mu)
	case nma.LinkLogit:
		return math.Log(mu) - math.Log1p(-mu)
	case nma.LinkProbit:
		return distuv.UnitNormal.Quantile(mu)
	case nma.LinkCloglog:
		return math.Log(-math.Log1p(-mu))
	default:
		return mu
	}
}

func softplus(x float64) float64 {
	return math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
}

// logProbs returns log p and log(1-p) for p = InvLink(l, eta), computed
// without cancellation where the link allows.
func logProbs(l nma.Link, eta float64) (float64, float64) {
	switch l {
	case nma.LinkLogit:
		return -softplus(-eta), -softplus(eta)
	case nma.LinkCloglog:
		return math.Log(math.Max(-math.Expm1(-math.Exp(eta)), minProb)), -math.Exp(eta)
	case nma.LinkProbit:
		return math.Log(math.Max(distuv.UnitNormal.CDF(eta), minProb)),
			math.Log(math.Max(distuv.UnitNormal.Survival(eta), minProb))
	default:
		p := InvLink(l, eta)
		return math.Log(math.Max(p, minProb)), math.Log(math.Max(1-p, minProb))
	}
}
