package design

import (
	"github.com/jSoboil/multinma/internal/nma"
)

// Meta is the part of a design needed to interpret posterior draws. It is
// stored with every fit.
type Meta struct {
	Outcome    nma.OutcomeType `json:"outcome"`
	Model      nma.ModelSpec   `json:"model"`
	Treatments []nma.Treatment `json:"treatments"`
	Covariates []string        `json:"covariates,omitempty"`
	Modifiers  []string        `json:"modifiers,omitempty"`
	Centers    []float64       `json:"centers,omitempty"`
	Params     []string        `json:"params"`
	Studies    []string        `json:"studies"`
	Hash       string          `json:"hash"`
}

// Meta exports the design metadata.
func (d *Design) Meta() *Meta {
	studies := make([]string, len(d.Studies))
	for i, s := range d.Studies {
		studies[i] = s.Name
	}
	return &Meta{
		Outcome:    d.Outcome,
		Model:      d.Spec,
		Treatments: d.Treatments,
		Covariates: d.Covariates,
		Modifiers:  d.Modifiers,
		Centers:    d.Centers,
		Params:     d.Layout.Names,
		Studies:    studies,
		Hash:       d.Hash,
	}
}

// Reference returns the network reference treatment.
func (m *Meta) Reference() string {
	if len(m.Treatments) == 0 {
		return ""
	}
	return m.Treatments[0].Name
}

// TreatmentNames returns treatment names, reference first.
func (m *Meta) TreatmentNames() []string {
	out := make([]string, len(m.Treatments))
	for i, t := range m.Treatments {
		out[i] = t.Name
	}
	return out
}

// EffectName returns the draw name of the relative effect of trt against
// the reference, or "" for the reference itself.
func (m *Meta) EffectName(trt string) string {
	if trt == m.Reference() {
		return ""
	}
	return dName(trt)
}

// BetaName returns the draw name of a covariate main effect.
func (m *Meta) BetaName(cov string) string { return betaName(cov) }

// InteractionName returns the draw name of the interaction between a
// modifier and trt, or "" when it is fixed at zero.
func (m *Meta) InteractionName(modifier, trt string) string {
	if trt == m.Reference() {
		return ""
	}
	if m.Model.ClassInteractions == nma.InteractionsCommon {
		class, refClass := "", m.Treatments[0].Class
		for _, t := range m.Treatments {
			if t.Name == trt {
				class = t.Class
			}
		}
		if class == refClass {
			return ""
		}
		return classInterName(modifier, class)
	}
	return trtInterName(modifier, trt)
}

// IsRandom reports whether the model has random treatment effects.
func (m *Meta) IsRandom() bool { return m.Model.TreatmentEffects == nma.EffectsRandom }

// TauName is the draw name of the heterogeneity SD.
const TauName = tauName

// InterceptName returns the draw name of a study intercept.
func (m *Meta) InterceptName(study string) string { return muName(study) }
