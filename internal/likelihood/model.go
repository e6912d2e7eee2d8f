package likelihood

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/jSoboil/multinma/internal/design"
	"github.com/jSoboil/multinma/internal/nma"
)

// Options tunes model construction.
type Options struct {
	// PlugIn evaluates AgD arms at their covariate means instead of
	// averaging over integration points. Only useful for comparison.
	PlugIn bool
	Logger *slog.Logger
}

// Model is the log density of a bound design. The parameter vector is
// unconstrained: scale parameters are on the log scale and, with QR, the
// regression block is on the QR scale.
type Model struct {
	d        *design.Design
	studies  []design.Study
	priors   nma.Priors
	link     nma.Link
	family   nma.Family
	contrast []*distmv.Normal
	diags    nma.Diagnostics
}

// New validates priors and outcome data against the design and
// precomputes the contrast covariance of each contrast study.
func New(d *design.Design, opts Options) (*Model, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := validatePriors(d.Spec.Priors); err != nil {
		return nil, err
	}
	m := &Model{
		d:        d,
		studies:  slices.Clone(d.Studies),
		priors:   d.Spec.Priors,
		link:     d.Spec.Link,
		family:   d.Spec.Family,
		contrast: make([]*distmv.Normal, len(d.Studies)),
	}
	p := d.P()
	for si := range m.studies {
		s := &m.studies[si]
		if opts.PlugIn && s.Kind != nma.KindIPD && p > 0 {
			s.Arms = slices.Clone(s.Arms)
			for ai := range s.Arms {
				a := &s.Arms[ai]
				a.X, a.N = a.Means(p), 1
			}
		}
		if err := m.checkStudy(s); err != nil {
			return nil, err
		}
		if s.Kind != nma.KindAgDContrast {
			continue
		}
		mvn, err := contrastNormal(s)
		if err != nil {
			return nil, err
		}
		m.contrast[si] = mvn
		if m.family != nma.FamilyNormal {
			w := nma.Warning{
				Code:    nma.WarnContrastApproximation,
				Message: fmt.Sprintf("contrast data with %s likelihood use a normal approximation", m.family),
				Study:   s.Name,
			}
			log.Warn(w.Message, "study", s.Name)
			m.diags = append(m.diags, w)
		}
	}
	return m, nil
}

func (m *Model) checkStudy(s *design.Study) error {
	for _, a := range s.Arms {
		trt := m.d.Treatments[a.Treatment].Name
		switch {
		case s.Kind == nma.KindAgDArm && m.family == nma.FamilyNormal && !(a.Outcome.SE > 0):
			return &nma.Error{Code: nma.ErrCodeSchema, Message: "continuous aggregate arm needs a positive standard error", Study: s.Name, Treatment: trt}
		case s.Kind == nma.KindAgDArm && m.family == nma.FamilyPoisson && !(a.Outcome.E > 0):
			return &nma.Error{Code: nma.ErrCodeSchema, Message: "count aggregate arm needs positive exposure", Study: s.Name, Treatment: trt}
		case s.Kind == nma.KindAgDArm && (m.family == nma.FamilyBernoulli || m.family == nma.FamilyBernoulli2) && a.Outcome.N <= 0:
			return &nma.Error{Code: nma.ErrCodeSchema, Message: "binary aggregate arm needs a positive denominator", Study: s.Name, Treatment: trt}
		}
	}
	return nil
}

// contrastNormal builds the zero-mean normal of the contrast residuals.
// Differences against a shared baseline covary by the baseline variance.
func contrastNormal(s *design.Study) (*distmv.Normal, error) {
	base := s.Arms[s.Baseline].Contrast
	k := len(s.Arms) - 1
	v := base.SE * base.SE
	cov := mat.NewSymDense(k, nil)
	i := 0
	for ai, a := range s.Arms {
		if ai == s.Baseline {
			continue
		}
		if !(a.Contrast.SE > 0) {
			return nil, &nma.Error{Code: nma.ErrCodeSchema, Message: "contrast needs a positive standard error", Study: s.Name}
		}
		for j := 0; j < k; j++ {
			cov.SetSym(i, j, v)
		}
		cov.SetSym(i, i, a.Contrast.SE*a.Contrast.SE)
		i++
	}
	mvn, ok := distmv.NewNormal(make([]float64, k), cov, nil)
	if !ok {
		return nil, &nma.Error{Code: nma.ErrCodeSchema, Message: "contrast covariance is not positive definite", Study: s.Name}
	}
	return mvn, nil
}

// Dim returns the number of parameters.
func (m *Model) Dim() int { return m.d.Layout.Dim() }

// Names returns the constrained parameter names.
func (m *Model) Names() []string { return m.d.Layout.Names }

// Design returns the bound design.
func (m *Model) Design() *design.Design { return m.d }

// Diagnostics returns warnings raised while building the model.
func (m *Model) Diagnostics() nma.Diagnostics { return m.diags }

// Constrain maps an unconstrained vector to reported parameter values.
func (m *Model) Constrain(theta []float64) []float64 {
	l := &m.d.Layout
	out := slices.Clone(theta)
	for i, k := range l.Kinds {
		if k.IsLog() {
			out[i] = math.Exp(theta[i])
		}
	}
	if m.d.QR != nil && len(l.Beta) > 0 {
		lo, hi := l.Beta[0], l.Beta[len(l.Beta)-1]+1
		m.d.QR.Beta(out[lo:hi], theta[lo:hi])
	}
	return out
}

// Unconstrain is the inverse of Constrain.
func (m *Model) Unconstrain(x []float64) []float64 {
	l := &m.d.Layout
	out := slices.Clone(x)
	for i, k := range l.Kinds {
		if k.IsLog() {
			out[i] = math.Log(x[i])
		}
	}
	if m.d.QR != nil && len(l.Beta) > 0 {
		lo, hi := l.Beta[0], l.Beta[len(l.Beta)-1]+1
		m.d.QR.Tilde(out[lo:hi], x[lo:hi])
	}
	return out
}

// LogDensity is the unnormalised log posterior density at theta,
// including the Jacobian of the log transforms. Non-finite values are
// reported as -Inf.
func (m *Model) LogDensity(theta []float64) float64 {
	p := m.Constrain(theta)
	lp := m.logPrior(p)
	for i, k := range m.d.Layout.Kinds {
		if k.IsLog() {
			lp += theta[i]
		}
	}
	if math.IsInf(lp, -1) {
		return lp
	}
	lp += m.logLik(p)
	if math.IsNaN(lp) || math.IsInf(lp, 1) {
		return math.Inf(-1)
	}
	return lp
}

// LogLikelihood is the data log likelihood at theta.
func (m *Model) LogLikelihood(theta []float64) float64 {
	return m.logLik(m.Constrain(theta))
}

// StudyLogLikelihood is the log likelihood contribution of one study.
func (m *Model) StudyLogLikelihood(theta []float64, study int) float64 {
	p := m.Constrain(theta)
	return m.studyLogLik(p, study, make([]float64, m.d.P()))
}

// Gradient writes the gradient of LogDensity at theta into dst using
// central finite differences.
func (m *Model) Gradient(dst, theta []float64) {
	fd.Gradient(dst, m.LogDensity, theta, &fd.Settings{Formula: fd.Central})
}

// Init returns a starting point: intercepts at the link of each study's
// observed baseline response, auxiliary SDs at the IPD outcome SD and
// everything else at zero.
func (m *Model) Init() []float64 {
	l := &m.d.Layout
	theta := make([]float64, l.Dim())
	for si, s := range m.studies {
		if l.Mu[si] >= 0 {
			theta[l.Mu[si]] = m.baselineLink(&s)
		}
		if l.Sigma[si] >= 0 {
			theta[l.Sigma[si]] = math.Log(outcomeSD(&s))
		}
	}
	return theta
}

func (m *Model) baselineLink(s *design.Study) float64 {
	a := &s.Arms[s.Baseline]
	var mean float64
	switch s.Kind {
	case nma.KindIPD:
		if a.N == 0 {
			return 0
		}
		var sum, exp float64
		for i := 0; i < a.N; i++ {
			switch m.family {
			case nma.FamilyNormal:
				sum += a.Y[i]
			default:
				sum += float64(a.R[i])
			}
			exp += math.Max(a.E[i], 0)
		}
		mean = sum / float64(a.N)
		if m.family == nma.FamilyPoisson && exp > 0 {
			mean = sum / exp
		}
	default:
		switch m.family {
		case nma.FamilyNormal:
			mean = a.Outcome.Y
		case nma.FamilyPoisson:
			mean = float64(a.Outcome.R) / a.Outcome.E
		default:
			mean = float64(a.Outcome.R) / float64(a.Outcome.N)
		}
	}
	switch m.link {
	case nma.LinkLogit, nma.LinkProbit, nma.LinkCloglog:
		mean = math.Min(math.Max(mean, 0.01), 0.99)
	case nma.LinkLog:
		mean = math.Max(mean, 1e-3)
	}
	v := Link(m.link, mean)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func outcomeSD(s *design.Study) float64 {
	var ys []float64
	for _, a := range s.Arms {
		ys = append(ys, a.Y...)
	}
	if len(ys) < 2 {
		return 1
	}
	var mean, ss float64
	for _, y := range ys {
		mean += y
	}
	mean /= float64(len(ys))
	for _, y := range ys {
		ss += (y - mean) * (y - mean)
	}
	sd := math.Sqrt(ss / float64(len(ys)-1))
	if sd <= 0 {
		return 1
	}
	return sd
}
