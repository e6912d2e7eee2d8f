package design

import (
	"fmt"
	"slices"

	"github.com/jSoboil/multinma/internal/nma"
)

// ParamKind groups parameters for prior assignment and transforms.
type ParamKind int

const (
	KindIntercept   ParamKind = iota // mu[study]
	KindTrt                          // d[trt]
	KindReg                          // beta[cov]
	KindInteraction                  // beta[cov:.trtX] or beta[cov:.trtclassX]
	KindClassMean                    // exchangeable class mean
	KindClassSD                      // sd_class[cov], log scale
	KindHet                          // tau, log scale
	KindAux                          // sigma[study], log scale
	KindDelta                        // delta[study: trt]
)

var kindNames = [...]string{"intercept", "trt", "reg", "interaction", "class_mean", "class_sd", "het", "aux", "delta"}

func (k ParamKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ParamKind(%d)", int(k))
}

// IsLog reports whether the sampler sees the parameter on the log scale.
func (k ParamKind) IsLog() bool {
	return k == KindClassSD || k == KindHet || k == KindAux
}

// Layout indexes the flat parameter vector.
type Layout struct {
	// Names are the reported (constrained) parameter names.
	Names []string
	Kinds []ParamKind
	// Mu is indexed by study; -1 for contrast studies.
	Mu []int
	// D is indexed by treatment; -1 for the reference.
	D []int
	// Beta is indexed by covariate. Indices are contiguous.
	Beta []int
	// Inter[m][t] is the interaction of modifier m for treatment t, -1 when
	// fixed at zero. Treatments sharing a class share an index in common
	// mode.
	Inter [][]int
	// ClassMean[m][t] is the exchangeable class mean for treatment t, -1
	// when the class is the reference class or interactions are not
	// exchangeable.
	ClassMean [][]int
	// ClassSD is indexed by modifier; -1 unless exchangeable.
	ClassSD []int
	Tau     int
	// Sigma is indexed by study; -1 unless the study is IPD with a normal
	// likelihood.
	Sigma []int
}

// Dim returns the length of the parameter vector.
func (l *Layout) Dim() int { return len(l.Names) }

// Index returns the position of a named parameter, or -1.
func (l *Layout) Index(name string) int { return slices.Index(l.Names, name) }

func (l *Layout) add(name string, kind ParamKind) int {
	l.Names = append(l.Names, name)
	l.Kinds = append(l.Kinds, kind)
	return len(l.Names) - 1
}

// Parameter names. Shared with Meta so fitted draws resolve by name.
func muName(study string) string { return fmt.Sprintf("mu[%s]", study) }
func dName(trt string) string    { return fmt.Sprintf("d[%s]", trt) }
func betaName(cov string) string { return fmt.Sprintf("beta[%s]", cov) }
func trtInterName(cov, trt string) string {
	return fmt.Sprintf("beta[%s:.trt%s]", cov, trt)
}
func classInterName(cov, class string) string {
	return fmt.Sprintf("beta[%s:.trtclass%s]", cov, class)
}
func classSDName(cov string) string      { return fmt.Sprintf("sd_class[%s]", cov) }
func sigmaName(study string) string      { return fmt.Sprintf("sigma[%s]", study) }
func deltaName(study, trt string) string { return fmt.Sprintf("delta[%s: %s]", study, trt) }

const tauName = "tau"

// buildLayout assigns parameter positions. Order: mu, d, beta,
// interactions, class means and sds, tau, sigma, delta. Delta indices are
// written into the studies' arms.
func buildLayout(net *nma.Network, spec nma.ModelSpec, modifiers []string, covariates []string, studies []Study) (Layout, error) {
	var l Layout
	nt := len(net.Treatments)
	ref := net.Treatments[0]

	l.Mu = make([]int, len(studies))
	for i, s := range studies {
		l.Mu[i] = -1
		if s.Kind != nma.KindAgDContrast {
			l.Mu[i] = l.add(muName(s.Name), KindIntercept)
		}
	}

	l.D = make([]int, nt)
	l.D[0] = -1
	for t := 1; t < nt; t++ {
		l.D[t] = l.add(dName(net.Treatments[t].Name), KindTrt)
	}

	l.Beta = make([]int, len(covariates))
	for j, c := range covariates {
		l.Beta[j] = l.add(betaName(c), KindReg)
	}

	mode := spec.ClassInteractions
	if len(modifiers) > 0 && mode != nma.InteractionsIndependent && !net.HasClasses() {
		return Layout{}, nma.SchemaErrorf("class_interactions %q needs treatment classes", mode)
	}
	l.Inter = make([][]int, len(modifiers))
	l.ClassMean = make([][]int, len(modifiers))
	l.ClassSD = make([]int, len(modifiers))
	for m, em := range modifiers {
		l.Inter[m] = filled(nt, -1)
		l.ClassMean[m] = filled(nt, -1)
		l.ClassSD[m] = -1
		switch mode {
		case nma.InteractionsCommon:
			byClass := map[string]int{}
			for t := 1; t < nt; t++ {
				c := net.Treatments[t].Class
				if c == ref.Class {
					continue
				}
				idx, ok := byClass[c]
				if !ok {
					idx = l.add(classInterName(em, c), KindInteraction)
					byClass[c] = idx
				}
				l.Inter[m][t] = idx
			}
		default:
			for t := 1; t < nt; t++ {
				l.Inter[m][t] = l.add(trtInterName(em, net.Treatments[t].Name), KindInteraction)
			}
		}
	}
	if mode == nma.InteractionsExchangeable {
		for m, em := range modifiers {
			byClass := map[string]int{}
			for t := 1; t < nt; t++ {
				c := net.Treatments[t].Class
				if c == ref.Class {
					continue
				}
				idx, ok := byClass[c]
				if !ok {
					idx = l.add(classInterName(em, c), KindClassMean)
					byClass[c] = idx
				}
				l.ClassMean[m][t] = idx
			}
			l.ClassSD[m] = l.add(classSDName(em), KindClassSD)
		}
	}

	l.Tau = -1
	if spec.TreatmentEffects == nma.EffectsRandom {
		l.Tau = l.add(tauName, KindHet)
	}

	l.Sigma = make([]int, len(studies))
	for i, s := range studies {
		l.Sigma[i] = -1
		if spec.Family == nma.FamilyNormal && s.Kind == nma.KindIPD {
			l.Sigma[i] = l.add(sigmaName(s.Name), KindAux)
		}
	}

	if spec.TreatmentEffects == nma.EffectsRandom {
		for i := range studies {
			s := &studies[i]
			for k := range s.Arms {
				if k == s.Baseline {
					continue
				}
				s.Arms[k].Delta = l.add(deltaName(s.Name, net.Treatments[s.Arms[k].Treatment].Name), KindDelta)
			}
		}
	}
	return l, nil
}

func filled(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
