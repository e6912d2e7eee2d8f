package harness

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/posterior"
)

// AssertionContext provides what assertions are evaluated against.
type AssertionContext struct {
	Ctx context.Context
	Fit *posterior.Fit
	// Populations are rank_prob targets; nil uses the fit's defaults.
	Populations []nma.Population
	Workers     int
}

// EvaluateAssertions evaluates every assertion and returns one Check per
// assertion, in order.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []Check {
	out := make([]Check, 0, len(assertions))
	for _, a := range assertions {
		var c Check
		switch a.Type {
		case AssertEstimateWithin:
			c = assertEstimateWithin(actx.Fit, a)
		case AssertRankProb:
			c = assertRankProb(actx, a)
		case AssertWarning, AssertNoWarning:
			c = assertWarning(actx.Fit.Diagnostics, a)
		default:
			c = Check{Type: a.Type, Message: fmt.Sprintf("unknown assertion type %q", a.Type)}
		}
		out = append(out, c)
	}
	return out
}

// assertEstimateWithin checks the posterior mean of a parameter.
func assertEstimateWithin(fit *posterior.Fit, a Assertion) Check {
	c := Check{Type: a.Type, Target: a.Parameter}
	col, err := fit.Draws.Column(a.Parameter)
	if err != nil {
		c.Message = err.Error()
		return c
	}
	c.Observed = stat.Mean(col, nil)
	c.Pass = math.Abs(c.Observed-a.Value) <= a.Tol
	if !c.Pass {
		c.Message = fmt.Sprintf("expected %g ± %g, got %.4f", a.Value, a.Tol, c.Observed)
	}
	return c
}

// assertRankProb checks P(rank(treatment) == rank) against [min, max].
func assertRankProb(actx *AssertionContext, a Assertion) Check {
	c := Check{Type: a.Type, Target: fmt.Sprintf("%s@%d", a.Treatment, a.Rank)}
	probs, err := actx.Fit.RankProbs(actx.Ctx, posterior.RankOptions{
		Populations: actx.Populations,
		LowerBetter: a.LowerBetter,
		Workers:     actx.Workers,
	})
	if err != nil {
		c.Message = err.Error()
		return c
	}

	trt := nma.NormalizeLabel(a.Treatment)
	var found *posterior.RankProb
	for i := range probs {
		p := &probs[i]
		if p.Treatment != trt {
			continue
		}
		if a.Population == "" || p.Population == a.Population {
			found = p
			break
		}
	}
	if found == nil {
		c.Message = fmt.Sprintf("no rank probabilities for treatment %q population %q", a.Treatment, a.Population)
		return c
	}
	if a.Rank > len(found.Probs) {
		c.Message = fmt.Sprintf("rank %d exceeds %d treatments", a.Rank, len(found.Probs))
		return c
	}

	c.Observed = found.Probs[a.Rank-1]
	c.Pass = (a.Min == nil || c.Observed >= *a.Min) && (a.Max == nil || c.Observed <= *a.Max)
	if !c.Pass {
		c.Message = fmt.Sprintf("probability %.4f outside [%s, %s]", c.Observed, bound(a.Min, "0"), bound(a.Max, "1"))
	}
	return c
}

func bound(v *float64, open string) string {
	if v == nil {
		return open
	}
	return fmt.Sprintf("%g", *v)
}

// assertWarning checks for the presence or absence of a warning code.
func assertWarning(diags nma.Diagnostics, a Assertion) Check {
	code := nma.WarningCode(a.Code)
	n := len(diags.Filter(code))
	c := Check{Type: a.Type, Target: a.Code, Observed: float64(n)}
	if a.Type == AssertWarning {
		c.Pass = n > 0
		if !c.Pass {
			c.Message = "warning not raised"
		}
		return c
	}
	c.Pass = n == 0
	if !c.Pass {
		c.Message = fmt.Sprintf("warning raised %d time(s)", n)
	}
	return c
}
