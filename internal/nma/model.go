package nma

import (
	"fmt"
	"slices"
)

// TreatmentEffects selects fixed or random treatment effects.
type TreatmentEffects string

const (
	EffectsFixed  TreatmentEffects = "fixed"
	EffectsRandom TreatmentEffects = "random"
)

// Link maps the mean response to the linear predictor.
type Link string

const (
	LinkIdentity Link = "identity"
	LinkLog      Link = "log"
	LinkLogit    Link = "logit"
	LinkProbit   Link = "probit"
	LinkCloglog  Link = "cloglog"
)

// Family is the outcome likelihood.
type Family string

const (
	// FamilyBernoulli uses Bernoulli IPD and first-order Binomial AgD.
	FamilyBernoulli Family = "bernoulli"
	// FamilyBernoulli2 additionally corrects AgD dispersion using the
	// across-point variance of the individual probabilities.
	FamilyBernoulli2 Family = "bernoulli2"
	FamilyNormal     Family = "normal"
	FamilyPoisson    Family = "poisson"
)

// InteractionMode controls sharing of treatment-covariate interactions
// within treatment classes.
type InteractionMode string

const (
	InteractionsIndependent  InteractionMode = "independent"
	InteractionsCommon       InteractionMode = "common"
	InteractionsExchangeable InteractionMode = "exchangeable"
)

// PriorFamily names a prior distribution.
type PriorFamily string

const (
	PriorNormal       PriorFamily = "normal"
	PriorHalfNormal   PriorFamily = "half_normal"
	PriorCauchy       PriorFamily = "cauchy"
	PriorHalfCauchy   PriorFamily = "half_cauchy"
	PriorStudentT     PriorFamily = "student_t"
	PriorHalfStudentT PriorFamily = "half_student_t"
	PriorFlat         PriorFamily = "flat"
)

// IsHalf reports whether the prior is restricted to non-negative values.
func (f PriorFamily) IsHalf() bool {
	return f == PriorHalfNormal || f == PriorHalfCauchy || f == PriorHalfStudentT
}

// Prior is a distribution family with location, scale and degrees of freedom.
type Prior struct {
	Family   PriorFamily `json:"family"`
	Location float64     `json:"location"`
	Scale    float64     `json:"scale"`
	DF       float64     `json:"df,omitempty"`
}

func (p Prior) String() string {
	switch p.Family {
	case PriorFlat:
		return "flat()"
	case PriorStudentT, PriorHalfStudentT:
		return fmt.Sprintf("%s(%g, %g, df=%g)", p.Family, p.Location, p.Scale, p.DF)
	}
	return fmt.Sprintf("%s(%g, %g)", p.Family, p.Location, p.Scale)
}

// Priors groups priors per parameter block.
type Priors struct {
	Intercept Prior `json:"intercept"`
	Trt       Prior `json:"trt"`
	Reg       Prior `json:"reg"`
	Het       Prior `json:"het"`
	Aux       Prior `json:"aux"`
	ClassSD   Prior `json:"class_sd"`
}

// DefaultPriors mirrors the weakly informative defaults used for ML-NMR.
func DefaultPriors() Priors {
	return Priors{
		Intercept: Prior{Family: PriorNormal, Scale: 100},
		Trt:       Prior{Family: PriorNormal, Scale: 10},
		Reg:       Prior{Family: PriorNormal, Scale: 10},
		Het:       Prior{Family: PriorHalfNormal, Scale: 5},
		Aux:       Prior{Family: PriorHalfNormal, Scale: 5},
		ClassSD:   Prior{Family: PriorHalfNormal, Scale: 5},
	}
}

// Regression is the closed formula shape: covariate main effects plus
// covariate-by-treatment interactions. Every effect modifier is also a
// main effect.
type Regression struct {
	Prognostic      []string `json:"prognostic,omitempty"`
	EffectModifiers []string `json:"effect_modifiers,omitempty"`
}

// Covariates returns main-effect covariates: prognostic factors followed by
// effect modifiers not already listed.
func (r Regression) Covariates() []string {
	out := slices.Clone(r.Prognostic)
	for _, em := range r.EffectModifiers {
		if !slices.Contains(out, em) {
			out = append(out, em)
		}
	}
	return out
}

// ModelSpec is immutable once passed to fitting.
type ModelSpec struct {
	Regression        Regression       `json:"regression"`
	TreatmentEffects  TreatmentEffects `json:"trt_effects"`
	Link              Link             `json:"link"`
	Family            Family           `json:"likelihood"`
	ClassInteractions InteractionMode  `json:"class_interactions"`
	Priors            Priors           `json:"priors"`
	// Center subtracts pooled covariate means before building the design.
	Center bool `json:"center"`
	// QR reparameterises the regression columns for the sampler.
	QR bool `json:"qr"`
}

// DefaultLink returns the canonical link for a family.
func DefaultLink(f Family) Link {
	switch f {
	case FamilyBernoulli, FamilyBernoulli2:
		return LinkLogit
	case FamilyPoisson:
		return LinkLog
	default:
		return LinkIdentity
	}
}

// validLinks lists the links allowed per family.
var validLinks = map[Family][]Link{
	FamilyBernoulli:  {LinkLogit, LinkProbit, LinkCloglog},
	FamilyBernoulli2: {LinkLogit, LinkProbit, LinkCloglog},
	FamilyNormal:     {LinkIdentity, LinkLog},
	FamilyPoisson:    {LinkLog},
}

// Validate checks enum values and family/link compatibility against an
// outcome type. It fills unset enums with defaults.
func (m *ModelSpec) Validate(outcome OutcomeType) error {
	if m.Family == "" {
		switch outcome {
		case OutcomeBinary:
			m.Family = FamilyBernoulli
		case OutcomeCount:
			m.Family = FamilyPoisson
		default:
			m.Family = FamilyNormal
		}
	}
	links, ok := validLinks[m.Family]
	if !ok {
		return SchemaErrorf("unsupported likelihood %q", m.Family)
	}
	if m.Link == "" {
		m.Link = DefaultLink(m.Family)
	}
	if !slices.Contains(links, m.Link) {
		return SchemaErrorf("link %q is not valid for likelihood %q (valid: %v)", m.Link, m.Family, links)
	}
	want := map[Family]OutcomeType{
		FamilyBernoulli:  OutcomeBinary,
		FamilyBernoulli2: OutcomeBinary,
		FamilyPoisson:    OutcomeCount,
		FamilyNormal:     OutcomeContinuous,
	}[m.Family]
	if outcome != "" && want != outcome {
		return SchemaErrorf("likelihood %q requires %s outcomes, network has %s", m.Family, want, outcome)
	}
	switch m.TreatmentEffects {
	case "":
		m.TreatmentEffects = EffectsFixed
	case EffectsFixed, EffectsRandom:
	default:
		return SchemaErrorf("unsupported trt_effects %q", m.TreatmentEffects)
	}
	switch m.ClassInteractions {
	case "":
		m.ClassInteractions = InteractionsIndependent
	case InteractionsIndependent, InteractionsCommon, InteractionsExchangeable:
	default:
		return SchemaErrorf("unsupported class_interactions %q", m.ClassInteractions)
	}
	seen := map[string]bool{}
	for _, c := range m.Regression.Prognostic {
		if seen[c] {
			return SchemaErrorf("covariate %q listed twice in prognostic terms", c)
		}
		seen[c] = true
	}
	return nil
}
