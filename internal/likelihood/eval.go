package likelihood

import (
	"math"

	"github.com/jSoboil/multinma/internal/design"
	"github.com/jSoboil/multinma/internal/nma"
)

var logSqrt2Pi = 0.5 * math.Log(2*math.Pi)

// logPrior sums the prior densities of the constrained parameters.
func (m *Model) logPrior(p []float64) float64 {
	l := &m.d.Layout
	exch := m.d.Spec.ClassInteractions == nma.InteractionsExchangeable
	var lp float64
	for i, k := range l.Kinds {
		switch k {
		case design.KindIntercept:
			lp += LogPrior(m.priors.Intercept, p[i])
		case design.KindTrt:
			lp += LogPrior(m.priors.Trt, p[i])
		case design.KindReg, design.KindClassMean:
			lp += LogPrior(m.priors.Reg, p[i])
		case design.KindInteraction:
			if !exch {
				lp += LogPrior(m.priors.Reg, p[i])
			}
		case design.KindClassSD:
			lp += LogPrior(m.priors.ClassSD, p[i])
		case design.KindHet:
			lp += LogPrior(m.priors.Het, p[i])
		case design.KindAux:
			lp += LogPrior(m.priors.Aux, p[i])
		}
	}
	if exch {
		for mi := range m.d.Modifiers {
			sd := p[l.ClassSD[mi]]
			for t, idx := range l.Inter[mi] {
				if idx < 0 {
					continue
				}
				mean := 0.0
				if c := l.ClassMean[mi][t]; c >= 0 {
					mean = p[c]
				}
				lp += normalLogProb(p[idx], mean, sd)
			}
		}
	}
	if l.Tau >= 0 {
		lp += m.randomEffectsLogProb(p)
	}
	return lp
}

// randomEffectsLogProb is the density of the study random effects. In a
// study with arms 1..K beyond the baseline, delta_k given the earlier
// deltas is normal with mean m_k + (1/k) sum_{i<k}(delta_i - m_i) and
// variance tau^2 (k+1)/(2k), where m_k = d[t_k] - d[t_b]. This is the
// factorisation of the exchangeable multi-arm normal with covariance
// tau^2/2 between arms.
func (m *Model) randomEffectsLogProb(p []float64) float64 {
	l := &m.d.Layout
	tau := p[l.Tau]
	var lp float64
	for _, s := range m.studies {
		tb := s.Arms[s.Baseline].Treatment
		var sumDev float64
		k := 0
		for ai, a := range s.Arms {
			if ai == s.Baseline || a.Delta < 0 {
				continue
			}
			k++
			mk := m.dval(p, a.Treatment) - m.dval(p, tb)
			mean := mk + sumDev/float64(k)
			sd := tau * math.Sqrt(float64(k+1)/float64(2*k))
			lp += normalLogProb(p[a.Delta], mean, sd)
			sumDev += p[a.Delta] - mk
		}
	}
	return lp
}

func normalLogProb(x, mean, sd float64) float64 {
	z := (x - mean) / sd
	return -logSqrt2Pi - math.Log(sd) - 0.5*z*z
}

func (m *Model) dval(p []float64, t int) float64 {
	if idx := m.d.Layout.D[t]; idx >= 0 {
		return p[idx]
	}
	return 0
}

// coef writes the per-arm regression coefficients for treatment t:
// main effects plus the treatment's interactions.
func (m *Model) coef(dst, p []float64, t int) {
	l := &m.d.Layout
	for j, idx := range l.Beta {
		dst[j] = p[idx]
	}
	for mi, col := range m.d.ModifierCol {
		if idx := l.Inter[mi][t]; idx >= 0 {
			dst[col] += p[idx]
		}
	}
}

// offset is the covariate-free part of the linear predictor of an arm.
// Under random effects non-baseline arms carry d[t_b] + delta.
func (m *Model) offset(p []float64, si int, a *design.Arm) float64 {
	l := &m.d.Layout
	s := &m.studies[si]
	var mu float64
	if l.Mu[si] >= 0 {
		mu = p[l.Mu[si]]
	}
	if l.Tau < 0 {
		return mu + m.dval(p, a.Treatment)
	}
	off := mu + m.dval(p, s.Arms[s.Baseline].Treatment)
	if a.Delta >= 0 {
		off += p[a.Delta]
	}
	return off
}

func (m *Model) logLik(p []float64) float64 {
	buf := make([]float64, m.d.P())
	var ll float64
	for si := range m.studies {
		ll += m.studyLogLik(p, si, buf)
		if math.IsInf(ll, -1) {
			return ll
		}
	}
	return ll
}

func (m *Model) studyLogLik(p []float64, si int, coef []float64) float64 {
	s := &m.studies[si]
	switch s.Kind {
	case nma.KindIPD:
		var ll float64
		for ai := range s.Arms {
			ll += m.ipdArm(p, si, &s.Arms[ai], coef)
		}
		return ll
	case nma.KindAgDArm:
		var ll float64
		for ai := range s.Arms {
			ll += m.agdArm(p, si, &s.Arms[ai], coef)
		}
		return ll
	default:
		return m.contrastStudy(p, si, coef)
	}
}

// eta returns the linear predictor of row i of an arm.
func eta(off float64, a *design.Arm, i int, coef []float64) float64 {
	v := off
	if len(coef) == 0 {
		return v
	}
	for j, x := range a.Row(i, len(coef)) {
		v += x * coef[j]
	}
	return v
}

func (m *Model) ipdArm(p []float64, si int, a *design.Arm, coef []float64) float64 {
	m.coef(coef, p, a.Treatment)
	off := m.offset(p, si, a)
	var ll float64
	switch m.family {
	case nma.FamilyNormal:
		sigma := p[m.d.Layout.Sigma[si]]
		for i := 0; i < a.N; i++ {
			ll += normalLogProb(a.Y[i], InvLink(m.link, eta(off, a, i, coef)), sigma)
		}
	case nma.FamilyPoisson:
		for i := 0; i < a.N; i++ {
			e := a.E[i]
			if e <= 0 {
				e = 1
			}
			ll += poissonLogProb(a.R[i], e*InvLink(m.link, eta(off, a, i, coef)))
		}
	default:
		for i := 0; i < a.N; i++ {
			lp, lq := logProbs(m.link, eta(off, a, i, coef))
			if a.R[i] > 0 {
				ll += lp
			} else {
				ll += lq
			}
		}
	}
	return ll
}

// integrate returns the mean and population variance of the individual
// mean response over an arm's rows.
func (m *Model) integrate(p []float64, si int, a *design.Arm, coef []float64) (float64, float64) {
	m.coef(coef, p, a.Treatment)
	off := m.offset(p, si, a)
	var sum, sumSq float64
	for i := 0; i < a.N; i++ {
		mu := InvLink(m.link, eta(off, a, i, coef))
		sum += mu
		sumSq += mu * mu
	}
	n := float64(a.N)
	mean := sum / n
	return mean, math.Max(sumSq/n-mean*mean, 0)
}

func (m *Model) agdArm(p []float64, si int, a *design.Arm, coef []float64) float64 {
	mean, variance := m.integrate(p, si, a, coef)
	o := a.Outcome
	switch m.family {
	case nma.FamilyNormal:
		return normalLogProb(o.Y, mean, o.SE)
	case nma.FamilyPoisson:
		return poissonLogProb(o.R, o.E*mean)
	case nma.FamilyBernoulli2:
		return binomial2LogProb(o.R, o.N, mean, variance)
	default:
		return binomialLogProb(float64(o.R), float64(o.N), mean)
	}
}

// meanEta averages the linear predictor over an arm's rows.
func (m *Model) meanEta(p []float64, si int, a *design.Arm, coef []float64) float64 {
	m.coef(coef, p, a.Treatment)
	off := m.offset(p, si, a)
	var sum float64
	for i := 0; i < a.N; i++ {
		sum += eta(off, a, i, coef)
	}
	return sum / float64(a.N)
}

// contrastStudy evaluates reported differences against the differences of
// the arms' linear predictors averaged over their rows. Contrast studies
// have no intercept, so terms shared by both arms cancel.
func (m *Model) contrastStudy(p []float64, si int, coef []float64) float64 {
	s := &m.studies[si]
	thetaB := m.meanEta(p, si, &s.Arms[s.Baseline], coef)
	resid := make([]float64, 0, len(s.Arms)-1)
	for ai := range s.Arms {
		if ai == s.Baseline {
			continue
		}
		a := &s.Arms[ai]
		resid = append(resid, a.Contrast.Y-(m.meanEta(p, si, a, coef)-thetaB))
	}
	return m.contrast[si].LogProb(resid)
}

func poissonLogProb(r int, lambda float64) float64 {
	if lambda <= 0 {
		if r == 0 {
			return 0
		}
		return math.Inf(-1)
	}
	lg, _ := math.Lgamma(float64(r) + 1)
	return float64(r)*math.Log(lambda) - lambda - lg
}

// binomialLogProb is the binomial log mass extended to real n through the
// gamma function. It is -Inf when r > n.
func binomialLogProb(r, n, prob float64) float64 {
	if r > n {
		return math.Inf(-1)
	}
	prob = math.Min(math.Max(prob, minProb), 1-1e-16)
	a, _ := math.Lgamma(n + 1)
	b, _ := math.Lgamma(r + 1)
	c, _ := math.Lgamma(n - r + 1)
	return a - b - c + r*math.Log(prob) + (n-r)*math.Log1p(-prob)
}

// binomial2LogProb matches the first two moments of the sum of
// independent Bernoulli(p_i): with mean p and across-point variance s2,
// the count has mean n p and variance n (p(1-p) - s2), reproduced by a
// binomial with p* = p + s2/p and n* = n p / p*.
func binomial2LogProb(r, n int, p, s2 float64) float64 {
	if p <= 0 {
		return binomialLogProb(float64(r), float64(n), p)
	}
	pStar := math.Min(p+s2/p, 1-1e-12)
	nStar := float64(n) * p / pStar
	return binomialLogProb(float64(r), nStar, pStar)
}
