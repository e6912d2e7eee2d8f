package copula

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jSoboil/multinma/internal/nma"
)

// eigenTol is the most negative eigenvalue accepted without repair.
const eigenTol = 1e-10

// Repair records a nearest-correlation projection.
type Repair struct {
	Repaired bool
	// MinEigen is the smallest eigenvalue of the input matrix.
	MinEigen float64
	// Distance is the Frobenius distance between input and repaired matrix.
	Distance float64
}

// NearestCorrelation checks that c is a valid correlation matrix and, when
// it is not positive semi-definite, projects it by clipping negative
// eigenvalues and rescaling to a unit diagonal.
func NearestCorrelation(c *mat.SymDense) (*mat.SymDense, Repair, error) {
	n, _ := c.Dims()
	for i := 0; i < n; i++ {
		if math.Abs(c.At(i, i)-1) > 1e-8 {
			return nil, Repair{}, nma.CorrelationErrorf("correlation matrix diagonal entry %d is %g, want 1", i, c.At(i, i))
		}
		for j := 0; j < i; j++ {
			v := c.At(i, j)
			if math.IsNaN(v) || math.Abs(v) > 1+1e-8 {
				return nil, Repair{}, nma.CorrelationErrorf("correlation entry (%d,%d) = %g outside [-1, 1]", i, j, v)
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(c, true); !ok {
		return nil, Repair{}, nma.CorrelationErrorf("eigendecomposition of correlation matrix failed")
	}
	vals := eig.Values(nil)
	minEig := vals[0]
	for _, v := range vals {
		minEig = math.Min(minEig, v)
	}
	if minEig >= -eigenTol {
		out := mat.NewSymDense(n, nil)
		out.CopySym(c)
		return out, Repair{MinEigen: minEig}, nil
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	clipped := make([]float64, n)
	for i, v := range vals {
		clipped[i] = math.Max(v, 0)
	}
	var scaled mat.Dense
	scaled.Apply(func(_, j int, v float64) float64 { return v * clipped[j] }, &vecs)
	var full mat.Dense
	full.Mul(&scaled, vecs.T())

	out := mat.NewSymDense(n, nil)
	dist := 0.0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := full.At(i, j) / math.Sqrt(full.At(i, i)*full.At(j, j))
			if i == j {
				v = 1
			}
			out.SetSym(i, j, v)
			d := v - c.At(i, j)
			if i == j {
				dist += d * d
			} else {
				dist += 2 * d * d
			}
		}
	}
	return out, Repair{Repaired: true, MinEigen: minEig, Distance: math.Sqrt(dist)}, nil
}

// factor returns F with F Fᵀ = c. Cholesky is used when c is positive
// definite; singular matrices fall back to the symmetric square root.
func factor(c *mat.SymDense) (*mat.Dense, error) {
	n, _ := c.Dims()
	var chol mat.Cholesky
	if ok := chol.Factorize(c); ok {
		var l mat.TriDense
		chol.LTo(&l)
		out := mat.NewDense(n, n, nil)
		out.Copy(&l)
		return out, nil
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(c, true); !ok {
		return nil, nma.CorrelationErrorf("cannot factorise correlation matrix")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	out := mat.NewDense(n, n, nil)
	out.Apply(func(_, j int, v float64) float64 { return v * math.Sqrt(math.Max(vals[j], 0)) }, &vecs)
	return out, nil
}
