package design

import (
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/jSoboil/multinma/internal/nma"
)

// Arm is the pre-bound block of one study arm. X holds N rows of centred
// regression covariates: individuals for IPD arms, integration points for
// AgD arms. AgD arms without regression have one row and no columns.
type Arm struct {
	// Treatment indexes Design.Treatments.
	Treatment int
	// Delta is the random-effect parameter of the arm, -1 when absent.
	Delta  int
	Sample int
	N      int
	X      []float64

	// IPD outcomes, one per row.
	R []int
	Y []float64
	E []float64

	// AgD outcomes.
	Outcome  nma.ArmOutcome
	Contrast *nma.ContrastOutcome
}

// Row returns row i of X. The slice aliases X.
func (a *Arm) Row(i, p int) []float64 {
	return a.X[i*p : (i+1)*p : (i+1)*p]
}

// Means returns the column means of X.
func (a *Arm) Means(p int) []float64 {
	out := make([]float64, p)
	if a.N == 0 {
		return out
	}
	for i := 0; i < a.N; i++ {
		for j, v := range a.Row(i, p) {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(a.N)
	}
	return out
}

// Study is the pre-bound block of one study.
type Study struct {
	Name string
	Kind nma.DataKind
	// Baseline indexes Arms.
	Baseline int
	Arms     []Arm
}

// Design is the model bound to a network. It is read-only after Build.
type Design struct {
	Spec       nma.ModelSpec
	Outcome    nma.OutcomeType
	Treatments []nma.Treatment
	// Covariates are the main-effect columns of every X block.
	Covariates []string
	Modifiers  []string
	// ModifierCol maps each modifier to its column in X.
	ModifierCol []int
	Centers     []float64
	Layout      Layout
	Studies     []Study
	QR          *QR
	// Hash identifies the model specification and the integration points
	// it is bound to.
	Hash string
}

// P returns the number of regression columns.
func (d *Design) P() int { return len(d.Covariates) }

// Reference returns the network reference treatment.
func (d *Design) Reference() string { return d.Treatments[0].Name }

// Options tunes Build.
type Options struct {
	Logger *slog.Logger
	// SkipRankCheck disables the identifiability check.
	SkipRankCheck bool
}

// Build binds spec to net. AgD arms must carry integration points covering
// every regression covariate when the model has covariates.
func Build(net *nma.Network, spec nma.ModelSpec, opts Options) (*Design, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := spec.Validate(net.Outcome); err != nil {
		return nil, err
	}
	if len(net.Treatments) < 2 {
		return nil, nma.SchemaErrorf("network needs at least 2 treatments, has %d", len(net.Treatments))
	}

	covariates := normalizeAll(spec.Regression.Covariates())
	modifiers := normalizeAll(spec.Regression.EffectModifiers)
	spec.Regression = nma.Regression{
		Prognostic:      normalizeAll(spec.Regression.Prognostic),
		EffectModifiers: modifiers,
	}
	if err := checkCovariates(net, covariates); err != nil {
		return nil, err
	}

	d := &Design{
		Spec:       spec,
		Outcome:    net.Outcome,
		Treatments: slices.Clone(net.Treatments),
		Covariates: covariates,
		Modifiers:  modifiers,
	}
	d.ModifierCol = make([]int, len(modifiers))
	for m, em := range modifiers {
		d.ModifierCol[m] = slices.Index(covariates, em)
	}
	d.Centers = make([]float64, len(covariates))
	if spec.Center && len(covariates) > 0 {
		d.Centers = pooledMeans(net, covariates)
	}

	d.Studies = bindStudies(net, covariates, d.Centers)
	layout, err := buildLayout(net, spec, modifiers, covariates, d.Studies)
	if err != nil {
		return nil, err
	}
	d.Layout = layout

	if !opts.SkipRankCheck {
		if err := d.checkRank(); err != nil {
			return nil, err
		}
	}
	if spec.QR && len(covariates) > 0 {
		qr, err := d.qr()
		if err != nil {
			return nil, err
		}
		d.QR = qr
	}

	d.Hash, err = d.hash(net)
	if err != nil {
		return nil, err
	}
	log.Debug("design built",
		"params", d.Layout.Dim(), "studies", len(d.Studies), "covariates", covariates,
		"trt_effects", spec.TreatmentEffects, "likelihood", spec.Family, "link", spec.Link)
	return d, nil
}

func normalizeAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = nma.NormalizeLabel(s)
	}
	return out
}

// checkCovariates ensures every regression covariate is observed in IPD and
// integrated on every AgD arm.
func checkCovariates(net *nma.Network, covariates []string) error {
	if len(covariates) == 0 {
		return nil
	}
	for _, s := range net.Studies {
		if s.Kind == nma.KindIPD {
			for _, c := range covariates {
				if net.CovariateIndex(c) < 0 {
					return &nma.Error{Code: nma.ErrCodeSchema, Message: "regression covariate missing from IPD", Study: s.Name, Covariate: c}
				}
			}
			continue
		}
		for _, a := range s.Arms {
			if a.Points == nil {
				return &nma.Error{
					Code:      nma.ErrCodeSchema,
					Message:   "aggregate arm has no integration points; add integration before building the design",
					Study:     s.Name,
					Treatment: a.Treatment,
				}
			}
			for _, c := range covariates {
				if a.Points.Index(c) < 0 {
					return &nma.Error{Code: nma.ErrCodeSchema, Message: "regression covariate not integrated", Study: s.Name, Treatment: a.Treatment, Covariate: c}
				}
			}
		}
	}
	return nil
}

// armWeight is the number of individuals an AgD arm stands for.
func armWeight(a nma.Arm) float64 {
	switch {
	case a.Sample > 0:
		return float64(a.Sample)
	case a.Outcome.N > 0:
		return float64(a.Outcome.N)
	default:
		return 1
	}
}

// pooledMeans averages covariates over IPD individuals and AgD arms, each
// arm weighted by its sample size.
func pooledMeans(net *nma.Network, covariates []string) []float64 {
	sum := make([]float64, len(covariates))
	var w float64
	for _, s := range net.Studies {
		if s.Kind == nma.KindIPD {
			for _, row := range s.IPD {
				for j, c := range covariates {
					sum[j] += row.X[net.CovariateIndex(c)]
				}
				w++
			}
			continue
		}
		for _, a := range s.Arms {
			aw := armWeight(a)
			means := a.Points.Means()
			for j, c := range covariates {
				sum[j] += aw * means[a.Points.Index(c)]
			}
			w += aw
		}
	}
	if w > 0 {
		for j := range sum {
			sum[j] /= w
		}
	}
	return sum
}

// bindStudies copies outcomes and centred covariate rows into arm blocks.
func bindStudies(net *nma.Network, covariates []string, centers []float64) []Study {
	p := len(covariates)
	out := make([]Study, len(net.Studies))
	for si, s := range net.Studies {
		bs := Study{Name: s.Name, Kind: s.Kind, Baseline: s.Baseline(net)}
		bs.Arms = make([]Arm, len(s.Arms))
		for ai, a := range s.Arms {
			arm := Arm{
				Treatment: net.TreatmentIndex(a.Treatment),
				Delta:     -1,
				Sample:    a.Sample,
				Outcome:   a.Outcome,
				Contrast:  a.Contrast,
			}
			if s.Kind == nma.KindIPD {
				cols := make([]int, p)
				for j, c := range covariates {
					cols[j] = net.CovariateIndex(c)
				}
				for _, row := range s.IPD {
					if row.Treatment != a.Treatment {
						continue
					}
					for j, k := range cols {
						arm.X = append(arm.X, row.X[k]-centers[j])
					}
					arm.R = append(arm.R, row.R)
					arm.Y = append(arm.Y, row.Y)
					arm.E = append(arm.E, row.E)
					arm.N++
				}
			} else if p == 0 {
				arm.N = 1
			} else {
				cols := make([]int, p)
				for j, c := range covariates {
					cols[j] = a.Points.Index(c)
				}
				arm.N = a.Points.N()
				arm.X = make([]float64, 0, arm.N*p)
				for i := 0; i < arm.N; i++ {
					pt := a.Points.Point(i)
					for j, k := range cols {
						arm.X = append(arm.X, pt[k]-centers[j])
					}
				}
			}
			bs.Arms[ai] = arm
		}
		out[si] = bs
	}
	return out
}

func (d *Design) hash(net *nma.Network) (string, error) {
	spec, err := json.Marshal(d.Spec)
	if err != nil {
		return "", err
	}
	var keys []string
	for _, s := range net.Studies {
		keys = append(keys, s.Name, s.Kind.String())
		for _, a := range s.Arms {
			k := ""
			if a.Points != nil {
				k = a.Points.Key
			}
			keys = append(keys, a.Treatment, k)
		}
	}
	return nma.ContentHash(nma.DomainModel, string(spec), net.TreatmentNames(), keys, d.Centers, d.Layout.Names)
}
