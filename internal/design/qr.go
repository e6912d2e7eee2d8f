package design

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jSoboil/multinma/internal/nma"
)

// QR holds the thin QR reparameterisation of the regression columns:
// X = Q* R* with Q* = Q sqrt(n-1) and R* = R / sqrt(n-1). The sampler sees
// the coefficients of Q*; beta = RInv * that vector.
type QR struct {
	R    *mat.Dense
	RInv *mat.Dense
}

// Beta maps QR-scale coefficients to beta.
func (q *QR) Beta(dst, tilde []float64) {
	p := len(tilde)
	for i := 0; i < p; i++ {
		var s float64
		for j := i; j < p; j++ {
			s += q.RInv.At(i, j) * tilde[j]
		}
		dst[i] = s
	}
}

// Tilde maps beta to QR-scale coefficients.
func (q *QR) Tilde(dst, beta []float64) {
	p := len(beta)
	for i := 0; i < p; i++ {
		var s float64
		for j := i; j < p; j++ {
			s += q.R.At(i, j) * beta[j]
		}
		dst[i] = s
	}
}

// qr factorises the stacked regression rows of every IPD individual and
// integration point.
func (d *Design) qr() (*QR, error) {
	p := d.P()
	var data []float64
	n := 0
	for _, s := range d.Studies {
		for _, a := range s.Arms {
			if p > 0 && len(a.X) == a.N*p {
				data = append(data, a.X...)
				n += a.N
			}
		}
	}
	if n <= p {
		return nil, nma.IdentifiabilityErrorf("QR reparameterisation needs more than %d rows, have %d", p, n)
	}

	var f mat.QR
	f.Factorize(mat.NewDense(n, p, data))
	var full mat.Dense
	f.RTo(&full)

	scale := math.Sqrt(float64(n - 1))
	r := mat.NewDense(p, p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			r.Set(i, j, full.At(i, j)/scale)
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(r); err != nil {
		return nil, nma.IdentifiabilityErrorf("regression columns are collinear: %v", err)
	}
	return &QR{R: r, RInv: &inv}, nil
}
