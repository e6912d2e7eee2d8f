package copula

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Transform applies a fixed latent correlation to uniform point sets.
// It is immutable and safe for concurrent use.
type Transform struct {
	dim    int
	cor    *mat.SymDense
	factor *mat.Dense
	repair Repair
}

// NewTransform validates (and if necessary repairs) cor and factorises it.
func NewTransform(cor *mat.SymDense) (*Transform, error) {
	fixed, rep, err := NearestCorrelation(cor)
	if err != nil {
		return nil, err
	}
	f, err := factor(fixed)
	if err != nil {
		return nil, err
	}
	n, _ := fixed.Dims()
	return &Transform{dim: n, cor: fixed, factor: f, repair: rep}, nil
}

// Dim returns the number of covariates.
func (t *Transform) Dim() int { return t.dim }

// Correlation returns the (possibly repaired) latent correlation.
func (t *Transform) Correlation() *mat.SymDense {
	out := mat.NewSymDense(t.dim, nil)
	out.CopySym(t.cor)
	return out
}

// Repair reports whether the input correlation needed projection.
func (t *Transform) Repair() Repair { return t.repair }

// Latent maps uniform points (n×d) to correlated standard normal vectors.
func (t *Transform) Latent(u mat.Matrix) (*mat.Dense, error) {
	n, d := u.Dims()
	if d != t.dim {
		return nil, fmt.Errorf("copula: points have %d columns, correlation has %d", d, t.dim)
	}
	z0 := mat.NewDense(n, d, nil)
	z0.Apply(func(_, _ int, v float64) float64 { return distuv.UnitNormal.Quantile(v) }, u)
	z := mat.NewDense(n, d, nil)
	z.Mul(z0, t.factor.T())
	return z, nil
}

// Uniforms maps uniform points to correlated uniforms Φ(L Φ⁻¹(u)).
func (t *Transform) Uniforms(u mat.Matrix) (*mat.Dense, error) {
	z, err := t.Latent(u)
	if err != nil {
		return nil, err
	}
	z.Apply(func(_, _ int, v float64) float64 { return distuv.UnitNormal.CDF(v) }, z)
	return z, nil
}

// Apply runs the full copula: correlated uniforms through the marginals.
func (t *Transform) Apply(u mat.Matrix, margins []Marginal) (*mat.Dense, error) {
	v, err := t.Uniforms(u)
	if err != nil {
		return nil, err
	}
	return ApplyMarginals(v, margins)
}

// ApplyMarginals maps each column of correlated uniforms through its
// marginal quantile function. v is not modified.
func ApplyMarginals(v mat.Matrix, margins []Marginal) (*mat.Dense, error) {
	n, d := v.Dims()
	if len(margins) != d {
		return nil, fmt.Errorf("copula: %d marginals for %d columns", len(margins), d)
	}
	out := mat.NewDense(n, d, nil)
	out.Apply(func(_, j int, p float64) float64 { return margins[j].Quantile(p) }, v)
	return out, nil
}
