// Package modelspec compiles model specification files written in CUE.
//
// A file declares one top-level `model` struct that is unified with the
// embedded #Model schema, so unknown fields, bad enums and out-of-range
// numbers are reported with their source position before anything is
// fitted. For example:
//
//	model: {
//		likelihood: "bernoulli"
//		link:       "probit"
//		regression: {
//			prognostic:       ["age", "male"]
//			effect_modifiers: ["male"]
//		}
//		integration: {
//			n: 1000
//			covariates: [
//				{name: "age", dist: "normal", params: {mean: "age_mean", sd: "age_sd"}},
//				{name: "male", dist: "bernoulli", params: {prob: "male_p"}},
//			]
//		}
//	}
package modelspec

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/jSoboil/multinma/internal/integration"
	"github.com/jSoboil/multinma/internal/nma"
)

//go:embed schema.cue
var schemaCUE string

// Spec is a compiled model file.
type Spec struct {
	Model nma.ModelSpec
	// Integration is nil when the file has no integration block.
	Integration *integration.Options
}

// Load reads and compiles a model file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return CompileBytes(data, path)
}

// CompileBytes compiles CUE source; filename is used in positions.
func CompileBytes(src []byte, filename string) (*Spec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// Compile unifies the `model` field of v with the schema and converts it.
func Compile(v cue.Value) (*Spec, error) {
	m := v.LookupPath(cue.ParsePath("model"))
	if !m.Exists() {
		return nil, &CompileError{Field: "model", Message: "model is required", Pos: v.Pos()}
	}
	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	u := schema.LookupPath(cue.ParsePath("#Model")).Unify(m)
	if err := u.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	fields, err := regularFields(u)
	if err != nil {
		return nil, err
	}
	spec := &Spec{}
	ms := &spec.Model
	var s string
	if s, err = optString(fields, "likelihood"); err != nil {
		return nil, err
	}
	ms.Family = nma.Family(s)
	if s, err = optString(fields, "link"); err != nil {
		return nil, err
	}
	ms.Link = nma.Link(s)
	if s, err = optString(fields, "trt_effects"); err != nil {
		return nil, err
	}
	ms.TreatmentEffects = nma.TreatmentEffects(s)
	if s, err = optString(fields, "class_interactions"); err != nil {
		return nil, err
	}
	ms.ClassInteractions = nma.InteractionMode(s)
	if ms.Center, err = boolField(fields["center"]); err != nil {
		return nil, err
	}
	if ms.QR, err = boolField(fields["qr"]); err != nil {
		return nil, err
	}

	reg := fields["regression"]
	if ms.Regression.Prognostic, err = stringList(reg.LookupPath(cue.ParsePath("prognostic"))); err != nil {
		return nil, err
	}
	if ms.Regression.EffectModifiers, err = stringList(reg.LookupPath(cue.ParsePath("effect_modifiers"))); err != nil {
		return nil, err
	}

	ms.Priors = nma.DefaultPriors()
	if p, ok := fields["priors"]; ok {
		if err := parsePriors(p, &ms.Priors); err != nil {
			return nil, err
		}
	}

	if iv, ok := fields["integration"]; ok {
		opts, err := parseIntegration(iv)
		if err != nil {
			return nil, err
		}
		spec.Integration = opts
	}
	return spec, nil
}

// regularFields maps the labels of v's regular fields to their values.
func regularFields(v cue.Value) (map[string]cue.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := map[string]cue.Value{}
	for iter.Next() {
		out[iter.Label()] = iter.Value()
	}
	return out, nil
}

func parsePriors(v cue.Value, dst *nma.Priors) error {
	fields, err := regularFields(v)
	if err != nil {
		return err
	}
	targets := map[string]*nma.Prior{
		"intercept": &dst.Intercept,
		"trt":       &dst.Trt,
		"reg":       &dst.Reg,
		"het":       &dst.Het,
		"aux":       &dst.Aux,
		"class_sd":  &dst.ClassSD,
	}
	for label, pv := range fields {
		target, ok := targets[label]
		if !ok {
			continue
		}
		pf, err := regularFields(pv)
		if err != nil {
			return err
		}
		family, err := stringField(pf["family"])
		if err != nil {
			return err
		}
		p := nma.Prior{Family: nma.PriorFamily(family)}
		if p.Location, err = floatField(pf["location"]); err != nil {
			return err
		}
		if p.Scale, err = floatField(pf["scale"]); err != nil {
			return err
		}
		if df, ok := pf["df"]; ok {
			if p.DF, err = floatField(df); err != nil {
				return err
			}
		}
		if (p.Family == nma.PriorStudentT || p.Family == nma.PriorHalfStudentT) && p.DF == 0 {
			return &CompileError{
				Field:   "priors." + label + ".df",
				Message: fmt.Sprintf("%s prior needs df", p.Family),
				Pos:     pv.Pos(),
			}
		}
		*target = p
	}
	return nil
}

func parseIntegration(v cue.Value) (*integration.Options, error) {
	fields, err := regularFields(v)
	if err != nil {
		return nil, err
	}
	opts := &integration.Options{}
	n, _ := fields["n"].Default()
	n64, err := n.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	opts.N = int(n64)
	seed, _ := fields["seed"].Default()
	if opts.Seed, err = seed.Uint64(); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := fields["covariates"].List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	seen := map[string]bool{}
	for iter.Next() {
		var cs integration.CovariateSpec
		if err := iter.Value().Decode(&cs); err != nil {
			return nil, formatCUEError(err)
		}
		if seen[cs.Name] {
			return nil, &CompileError{
				Field:   "integration.covariates",
				Message: fmt.Sprintf("covariate %q listed twice", cs.Name),
				Pos:     iter.Value().Pos(),
			}
		}
		seen[cs.Name] = true
		if err := cs.Validate(); err != nil {
			return nil, &CompileError{Field: "integration.covariates." + cs.Name, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		opts.Covariates = append(opts.Covariates, cs)
	}

	if cv, ok := fields["cor"]; ok {
		var cor []float64
		if err := cv.Decode(&cor); err != nil {
			return nil, formatCUEError(err)
		}
		d := len(opts.Covariates)
		if len(cor) != d*d {
			return nil, &CompileError{
				Field:   "integration.cor",
				Message: fmt.Sprintf("correlation needs %d×%d = %d values in covariate order, got %d", d, d, d*d, len(cor)),
				Pos:     cv.Pos(),
			}
		}
		opts.Cor = cor
	}

	adjust, err := stringField(fields["adjust"])
	if err != nil {
		return nil, err
	}
	opts.Adjust = integration.Adjustment(adjust)

	pooling := fields["pooling"]
	weighting, err := stringField(pooling.LookupPath(cue.ParsePath("weighting")))
	if err != nil {
		return nil, err
	}
	opts.Pooling.Weighting = integration.Weighting(weighting)
	minSize, _ := pooling.LookupPath(cue.ParsePath("min_study_size")).Default()
	ms, err := minSize.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	opts.Pooling.MinStudySize = int(ms)
	return opts, nil
}

func optString(fields map[string]cue.Value, label string) (string, error) {
	v, ok := fields[label]
	if !ok {
		return "", nil
	}
	return stringField(v)
}

func stringField(v cue.Value) (string, error) {
	d, _ := v.Default()
	s, err := d.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func boolField(v cue.Value) (bool, error) {
	d, _ := v.Default()
	b, err := d.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func floatField(v cue.Value) (float64, error) {
	d, _ := v.Default()
	f, err := d.Float64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return f, nil
}

func stringList(v cue.Value) ([]string, error) {
	d, _ := v.Default()
	iter, err := d.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Report the first error, with its position when CUE has one
	first := errs[0]
	ce := &CompileError{Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
