package nma

import (
	"fmt"
	"slices"
)

// DataKind distinguishes how a study reports its outcomes.
type DataKind int

const (
	KindIPD DataKind = iota + 1
	KindAgDArm
	KindAgDContrast
)

func (k DataKind) String() string {
	switch k {
	case KindIPD:
		return "ipd"
	case KindAgDArm:
		return "agd_arm"
	case KindAgDContrast:
		return "agd_contrast"
	default:
		return fmt.Sprintf("DataKind(%d)", int(k))
	}
}

// IsAgD reports whether the kind is one of the aggregate kinds.
func (k DataKind) IsAgD() bool {
	return k == KindAgDArm || k == KindAgDContrast
}

// OutcomeType is the outcome measured across the whole network.
type OutcomeType string

const (
	OutcomeBinary     OutcomeType = "binary"
	OutcomeCount      OutcomeType = "count"
	OutcomeContinuous OutcomeType = "continuous"
)

// Treatment is a node of the network, optionally tagged with a class.
type Treatment struct {
	Name  string `json:"name"`
	Class string `json:"class,omitempty"`
}

// IPDRow is one individual. Immutable once loaded.
type IPDRow struct {
	Treatment string
	// R is the event indicator (binary) or event count (count outcomes).
	R int
	// Y is the continuous outcome.
	Y float64
	// E is the exposure time for count outcomes.
	E float64
	// X holds covariate values in Network.Covariates order.
	X []float64
}

// ArmOutcome is an aggregate arm-level outcome.
type ArmOutcome struct {
	R  int     // events
	N  int     // denominator (binary)
	Y  float64 // mean (continuous)
	SE float64 // standard error of Y
	E  float64 // total exposure (count)
}

// ContrastOutcome is one arm of a contrast-based study. The study baseline
// arm has Baseline set, no Y, and SE holding the standard error of the
// baseline arm's absolute outcome (zero when unknown).
type ContrastOutcome struct {
	Y        float64
	SE       float64
	Baseline bool
}

// Arm is one study arm. For IPD studies the arm only indexes rows; for AgD
// studies it carries the aggregate outcome, the aggregate covariate
// summaries and, after AddIntegration, an integration point set.
type Arm struct {
	Treatment string
	// Sample is the number of individuals in the arm (0 when unknown).
	Sample    int
	Outcome   ArmOutcome
	Contrast  *ContrastOutcome
	Summaries map[string]float64
	Points    *IntegrationPoints
}

// Study holds arms and, for IPD studies, individual rows.
type Study struct {
	Name string
	Kind DataKind
	Arms []Arm
	IPD  []IPDRow
}

// ArmIndex returns the index of the arm receiving trt, or -1.
func (s *Study) ArmIndex(trt string) int {
	for i, a := range s.Arms {
		if a.Treatment == trt {
			return i
		}
	}
	return -1
}

// Baseline returns the index of the study's baseline arm: the contrast
// baseline for contrast studies, otherwise the arm with the treatment
// ordered first in the network.
func (s *Study) Baseline(n *Network) int {
	if s.Kind == KindAgDContrast {
		for i, a := range s.Arms {
			if a.Contrast != nil && a.Contrast.Baseline {
				return i
			}
		}
	}
	best, bestIdx := -1, len(n.Treatments)
	for i, a := range s.Arms {
		if idx := n.TreatmentIndex(a.Treatment); idx < bestIdx {
			best, bestIdx = i, idx
		}
	}
	return best
}

// Network is the validated collection of studies and treatments.
type Network struct {
	// Outcome is shared by all studies.
	Outcome OutcomeType
	// Treatments are ordered with the network reference first.
	Treatments []Treatment
	Studies    []Study
	// Covariates names the IPD covariates, in IPDRow.X order.
	Covariates []string
	// IntCor is the correlation matrix used for integration, over
	// IntCovariates. Set by AddIntegration and reused for new targets.
	IntCor        []float64
	IntCovariates []string
}

// Reference returns the network reference treatment.
func (n *Network) Reference() string {
	if len(n.Treatments) == 0 {
		return ""
	}
	return n.Treatments[0].Name
}

// TreatmentNames returns treatment names in network order.
func (n *Network) TreatmentNames() []string {
	names := make([]string, len(n.Treatments))
	for i, t := range n.Treatments {
		names[i] = t.Name
	}
	return names
}

// TreatmentIndex returns the position of a treatment, or -1.
func (n *Network) TreatmentIndex(name string) int {
	for i, t := range n.Treatments {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// HasClasses reports whether treatments are tagged with classes.
func (n *Network) HasClasses() bool {
	return len(n.Treatments) > 0 && n.Treatments[0].Class != ""
}

// Classes maps treatment name to class name. Empty when classes are absent.
func (n *Network) Classes() map[string]string {
	out := make(map[string]string, len(n.Treatments))
	for _, t := range n.Treatments {
		if t.Class != "" {
			out[t.Name] = t.Class
		}
	}
	return out
}

// ClassNames returns distinct class names in order of first appearance.
func (n *Network) ClassNames() []string {
	var out []string
	for _, t := range n.Treatments {
		if t.Class != "" && !slices.Contains(out, t.Class) {
			out = append(out, t.Class)
		}
	}
	return out
}

// Study returns the study with the given name.
func (n *Network) Study(name string) (*Study, bool) {
	for i := range n.Studies {
		if n.Studies[i].Name == name {
			return &n.Studies[i], true
		}
	}
	return nil, false
}

// CovariateIndex returns the position of an IPD covariate, or -1.
func (n *Network) CovariateIndex(name string) int {
	return slices.Index(n.Covariates, name)
}

// HasIPD reports whether at least one IPD study is present.
func (n *Network) HasIPD() bool {
	for _, s := range n.Studies {
		if s.Kind == KindIPD {
			return true
		}
	}
	return false
}

// HasAgD reports whether at least one aggregate study is present.
func (n *Network) HasAgD() bool {
	for _, s := range n.Studies {
		if s.Kind.IsAgD() {
			return true
		}
	}
	return false
}

// Clone returns a copy that can gain integration points without touching
// the receiver. IPD rows and summaries are shared since they are immutable.
func (n *Network) Clone() *Network {
	out := *n
	out.Treatments = slices.Clone(n.Treatments)
	out.Covariates = slices.Clone(n.Covariates)
	out.IntCor = slices.Clone(n.IntCor)
	out.IntCovariates = slices.Clone(n.IntCovariates)
	out.Studies = make([]Study, len(n.Studies))
	for i, s := range n.Studies {
		s.Arms = slices.Clone(s.Arms)
		out.Studies[i] = s
	}
	return &out
}
