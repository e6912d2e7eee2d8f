package nma

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Input holds the raw tables a network is built from. It is the decoded
// form of a network YAML file.
type Input struct {
	Outcome OutcomeType `yaml:"outcome" validate:"required,oneof=binary count continuous"`
	// Reference is the network reference treatment. Defaults to the first
	// treatment in sorted order.
	Reference string `yaml:"reference,omitempty"`
	// Classes maps treatment to class. Either every treatment has a class
	// or none does.
	Classes      map[string]string   `yaml:"classes,omitempty"`
	IPD          []IPDRecord         `yaml:"ipd,omitempty" validate:"dive"`
	AgDArms      []AgDArmRecord      `yaml:"agd_arm,omitempty" validate:"dive"`
	AgDContrasts []AgDContrastRecord `yaml:"agd_contrast,omitempty" validate:"dive"`
}

// IPDRecord is one row of an IPD table.
type IPDRecord struct {
	Study     string             `yaml:"study" validate:"required"`
	Treatment string             `yaml:"trt" validate:"required"`
	R         int                `yaml:"r,omitempty" validate:"gte=0"`
	Y         float64            `yaml:"y,omitempty"`
	E         float64            `yaml:"e,omitempty" validate:"gte=0"`
	X         map[string]float64 `yaml:"x,omitempty"`
}

// AgDArmRecord is one row of an arm-based aggregate table.
type AgDArmRecord struct {
	Study     string  `yaml:"study" validate:"required"`
	Treatment string  `yaml:"trt" validate:"required"`
	R         int     `yaml:"r,omitempty" validate:"gte=0"`
	N         int     `yaml:"n,omitempty" validate:"gte=0"`
	Y         float64 `yaml:"y,omitempty"`
	SE        float64 `yaml:"se,omitempty" validate:"gte=0"`
	SD        float64 `yaml:"sd,omitempty" validate:"gte=0"`
	E         float64 `yaml:"e,omitempty" validate:"gte=0"`
	// SampleSize overrides N as the arm's individual count.
	SampleSize int                `yaml:"sample_size,omitempty" validate:"gte=0"`
	Summaries  map[string]float64 `yaml:"summaries,omitempty"`
}

// AgDContrastRecord is one row of a contrast-based aggregate table. The
// baseline arm of each study omits Y.
type AgDContrastRecord struct {
	Study      string             `yaml:"study" validate:"required"`
	Treatment  string             `yaml:"trt" validate:"required"`
	Y          *float64           `yaml:"diff,omitempty"`
	SE         float64            `yaml:"se" validate:"gte=0"`
	SampleSize int                `yaml:"sample_size,omitempty" validate:"gte=0"`
	Summaries  map[string]float64 `yaml:"summaries,omitempty"`
}

// BuildNetwork validates the input tables and assembles a Network.
// All failures are SchemaErrors and surface before integration or fitting.
func BuildNetwork(in Input) (*Network, error) {
	switch in.Outcome {
	case OutcomeBinary, OutcomeCount, OutcomeContinuous:
	default:
		return nil, SchemaErrorf("unsupported outcome type %q", in.Outcome)
	}
	if len(in.IPD)+len(in.AgDArms)+len(in.AgDContrasts) == 0 {
		return nil, SchemaErrorf("network has no data")
	}

	net := &Network{Outcome: in.Outcome}
	source := map[string]DataKind{}
	claim := func(study string, kind DataKind) error {
		if prev, ok := source[study]; ok && prev != kind {
			return &Error{
				Code:    ErrCodeSchema,
				Message: fmt.Sprintf("study code appears in both %s and %s data", prev, kind),
				Study:   study,
			}
		}
		source[study] = kind
		return nil
	}

	trtSet := map[string]bool{}

	// IPD: covariate columns must be identical across rows.
	var covSet []string
	for _, rec := range in.IPD {
		for k := range rec.X {
			k = NormalizeLabel(k)
			if !slices.Contains(covSet, k) {
				covSet = append(covSet, k)
			}
		}
	}
	sort.Strings(covSet)
	net.Covariates = covSet

	studyIdx := map[string]int{}
	for i, rec := range in.IPD {
		study, trt := NormalizeLabel(rec.Study), NormalizeLabel(rec.Treatment)
		if err := claim(study, KindIPD); err != nil {
			return nil, err
		}
		trtSet[trt] = true
		xs, err := normalizeKeys(rec.X)
		if err != nil {
			return nil, err
		}
		row := IPDRow{Treatment: trt, R: rec.R, Y: rec.Y, E: rec.E, X: make([]float64, len(covSet))}
		for j, c := range covSet {
			v, ok := xs[c]
			if !ok {
				return nil, &Error{Code: ErrCodeSchema, Message: fmt.Sprintf("ipd row %d missing covariate", i), Study: study, Covariate: c}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &Error{Code: ErrCodeSchema, Message: fmt.Sprintf("ipd row %d has non-finite covariate", i), Study: study, Covariate: c}
			}
			row.X[j] = v
		}
		if err := checkIPDOutcome(in.Outcome, row); err != nil {
			err.Study = study
			return nil, err
		}
		si, ok := studyIdx[study]
		if !ok {
			si = len(net.Studies)
			studyIdx[study] = si
			net.Studies = append(net.Studies, Study{Name: study, Kind: KindIPD})
		}
		s := &net.Studies[si]
		s.IPD = append(s.IPD, row)
		if ai := s.ArmIndex(trt); ai >= 0 {
			s.Arms[ai].Sample++
		} else {
			s.Arms = append(s.Arms, Arm{Treatment: trt, Sample: 1})
		}
	}

	for _, rec := range in.AgDArms {
		study, trt := NormalizeLabel(rec.Study), NormalizeLabel(rec.Treatment)
		if err := claim(study, KindAgDArm); err != nil {
			return nil, err
		}
		trtSet[trt] = true
		sums, err := normalizeKeys(rec.Summaries)
		if err != nil {
			return nil, err
		}
		arm := Arm{
			Treatment: trt,
			Outcome:   ArmOutcome{R: rec.R, N: rec.N, Y: rec.Y, SE: rec.SE, E: rec.E},
			Sample:    rec.SampleSize,
			Summaries: sums,
		}
		if arm.Sample == 0 {
			arm.Sample = rec.N
		}
		if in.Outcome == OutcomeContinuous && arm.Outcome.SE == 0 && rec.SD > 0 && arm.Sample > 0 {
			arm.Outcome.SE = rec.SD / math.Sqrt(float64(arm.Sample))
		}
		if err := checkArmOutcome(in.Outcome, arm.Outcome); err != nil {
			err.Study, err.Treatment = study, trt
			return nil, err
		}
		si, ok := studyIdx[study]
		if !ok {
			si = len(net.Studies)
			studyIdx[study] = si
			net.Studies = append(net.Studies, Study{Name: study, Kind: KindAgDArm})
		}
		s := &net.Studies[si]
		if s.ArmIndex(trt) >= 0 {
			return nil, &Error{Code: ErrCodeSchema, Message: "duplicate arm", Study: study, Treatment: trt}
		}
		s.Arms = append(s.Arms, arm)
	}

	for _, rec := range in.AgDContrasts {
		study, trt := NormalizeLabel(rec.Study), NormalizeLabel(rec.Treatment)
		if err := claim(study, KindAgDContrast); err != nil {
			return nil, err
		}
		trtSet[trt] = true
		sums, err := normalizeKeys(rec.Summaries)
		if err != nil {
			return nil, err
		}
		c := &ContrastOutcome{SE: rec.SE, Baseline: rec.Y == nil}
		if rec.Y != nil {
			c.Y = *rec.Y
			if rec.SE <= 0 {
				return nil, &Error{Code: ErrCodeSchema, Message: "contrast standard error must be positive", Study: study, Treatment: trt}
			}
		}
		si, ok := studyIdx[study]
		if !ok {
			si = len(net.Studies)
			studyIdx[study] = si
			net.Studies = append(net.Studies, Study{Name: study, Kind: KindAgDContrast})
		}
		s := &net.Studies[si]
		if s.ArmIndex(trt) >= 0 {
			return nil, &Error{Code: ErrCodeSchema, Message: "duplicate arm", Study: study, Treatment: trt}
		}
		s.Arms = append(s.Arms, Arm{Treatment: trt, Sample: rec.SampleSize, Contrast: c, Summaries: sums})
	}

	for _, s := range net.Studies {
		if len(s.Arms) == 0 {
			return nil, &Error{Code: ErrCodeSchema, Message: "study has no arms", Study: s.Name}
		}
		if s.Kind != KindAgDContrast {
			continue
		}
		baselines := 0
		for _, a := range s.Arms {
			if a.Contrast.Baseline {
				baselines++
			}
		}
		if baselines != 1 {
			return nil, &Error{Code: ErrCodeSchema, Message: fmt.Sprintf("contrast study needs exactly one baseline arm, found %d", baselines), Study: s.Name}
		}
		if len(s.Arms) < 2 {
			return nil, &Error{Code: ErrCodeSchema, Message: "contrast study needs at least two arms", Study: s.Name}
		}
	}

	trts := make([]string, 0, len(trtSet))
	for t := range trtSet {
		trts = append(trts, t)
	}
	sort.Strings(trts)
	if in.Reference != "" {
		ref := NormalizeLabel(in.Reference)
		i := slices.Index(trts, ref)
		if i < 0 {
			return nil, &Error{Code: ErrCodeSchema, Message: "reference treatment not found in data", Treatment: ref}
		}
		trts = append([]string{ref}, slices.Delete(trts, i, i+1)...)
	}

	classes := map[string]string{}
	for t, c := range in.Classes {
		nt := NormalizeLabel(t)
		if !trtSet[nt] {
			return nil, &Error{Code: ErrCodeSchema, Message: "class assigned to unknown treatment", Treatment: nt}
		}
		classes[nt] = NormalizeLabel(c)
	}
	for _, t := range trts {
		c := classes[t]
		if len(classes) > 0 && c == "" {
			return nil, &Error{Code: ErrCodeSchema, Message: "treatment classes must be given for all treatments or none", Treatment: t}
		}
		net.Treatments = append(net.Treatments, Treatment{Name: t, Class: c})
	}

	return net, nil
}

func checkIPDOutcome(outcome OutcomeType, row IPDRow) *Error {
	switch outcome {
	case OutcomeBinary:
		if row.R != 0 && row.R != 1 {
			return SchemaErrorf("binary ipd outcome must be 0 or 1, got %d", row.R)
		}
	case OutcomeCount:
		if row.E <= 0 {
			return SchemaErrorf("count ipd outcome needs positive exposure e")
		}
	case OutcomeContinuous:
		if math.IsNaN(row.Y) || math.IsInf(row.Y, 0) {
			return SchemaErrorf("continuous ipd outcome must be finite")
		}
	}
	return nil
}

func checkArmOutcome(outcome OutcomeType, o ArmOutcome) *Error {
	switch outcome {
	case OutcomeBinary:
		if o.N <= 0 {
			return SchemaErrorf("binary agd arm needs positive n")
		}
		if o.R > o.N {
			return SchemaErrorf("events r=%d exceed denominator n=%d", o.R, o.N)
		}
	case OutcomeCount:
		if o.E <= 0 {
			return SchemaErrorf("count agd arm needs positive exposure e")
		}
	case OutcomeContinuous:
		if o.SE <= 0 {
			return SchemaErrorf("continuous agd arm needs positive se (or sd with sample_size)")
		}
	}
	return nil
}
