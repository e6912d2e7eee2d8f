package design

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/jSoboil/multinma/internal/nma"
)

// rankTol is the relative singular value below which a direction is
// treated as unidentified.
const rankTol = 1e-8

// identifiedKinds are the parameters the data alone must identify. Random
// effects, class means and scale parameters are identified through their
// priors.
func (d *Design) identifiedColumns() []int {
	var cols []int
	for i, k := range d.Layout.Kinds {
		switch k {
		case KindIntercept, KindTrt, KindReg:
			cols = append(cols, i)
		case KindInteraction:
			if d.Spec.ClassInteractions != nma.InteractionsExchangeable {
				cols = append(cols, i)
			}
		}
	}
	return cols
}

// linearRows returns the linearised design used for the rank check: one
// row per IPD individual, one row per AgD arm at its covariate means, and
// one row per non-baseline contrast arm, differenced against the baseline.
func (d *Design) linearRows() *mat.Dense {
	cols := d.identifiedColumns()
	pos := make(map[int]int, len(cols))
	for j, c := range cols {
		pos[c] = j
	}
	p := d.P()
	var data []float64
	rows := 0
	put := func(row []float64, param int, v float64) {
		if param < 0 {
			return
		}
		if j, ok := pos[param]; ok {
			row[j] += v
		}
	}
	fill := func(row []float64, si int, arm *Arm, x []float64, sign float64) {
		if sign > 0 {
			put(row, d.Layout.Mu[si], 1)
		}
		put(row, d.Layout.D[arm.Treatment], sign)
		for j := 0; j < p; j++ {
			put(row, d.Layout.Beta[j], sign*x[j])
		}
		for m, col := range d.ModifierCol {
			put(row, d.Layout.Inter[m][arm.Treatment], sign*x[col])
		}
	}

	for si := range d.Studies {
		s := &d.Studies[si]
		switch s.Kind {
		case nma.KindIPD:
			for ai := range s.Arms {
				arm := &s.Arms[ai]
				for i := 0; i < arm.N; i++ {
					row := make([]float64, len(cols))
					fill(row, si, arm, arm.Row(i, p), 1)
					data = append(data, row...)
					rows++
				}
			}
		case nma.KindAgDArm:
			for ai := range s.Arms {
				arm := &s.Arms[ai]
				row := make([]float64, len(cols))
				fill(row, si, arm, arm.Means(p), 1)
				data = append(data, row...)
				rows++
			}
		case nma.KindAgDContrast:
			base := &s.Arms[s.Baseline]
			for ai := range s.Arms {
				if ai == s.Baseline {
					continue
				}
				arm := &s.Arms[ai]
				row := make([]float64, len(cols))
				fill(row, si, arm, arm.Means(p), 1)
				fill(row, si, base, base.Means(p), -1)
				data = append(data, row...)
				rows++
			}
		}
	}
	if rows == 0 || len(cols) == 0 {
		return nil
	}
	return mat.NewDense(rows, len(cols), data)
}

// checkRank fails with an IdentifiabilityError naming the parameters in
// the null space of the linearised design.
func (d *Design) checkRank() error {
	a := d.linearRows()
	if a == nil {
		return nil
	}
	cols := d.identifiedColumns()
	n, p := a.Dims()

	// Unit-norm columns so covariate scale does not affect the tolerance.
	for j := 0; j < p; j++ {
		norm := mat.Norm(a.ColView(j), 2)
		if norm == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			a.Set(i, j, a.At(i, j)/norm)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFullV); !ok {
		return nma.IdentifiabilityErrorf("singular value decomposition of the design failed")
	}
	vals := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	top := 0.0
	if len(vals) > 0 {
		top = vals[0]
	}
	rank := 0
	for _, s := range vals {
		if s > rankTol*top {
			rank++
		}
	}
	if rank == p {
		return nil
	}

	// Columns of V beyond the rank span the null space.
	involved := map[int]bool{}
	for k := rank; k < p; k++ {
		for j := 0; j < p; j++ {
			if math.Abs(v.At(j, k)) > 1e-6 {
				involved[j] = true
			}
		}
	}
	var names []string
	for j := 0; j < p; j++ {
		if involved[j] {
			names = append(names, d.Layout.Names[cols[j]])
		}
	}
	return &nma.Error{
		Code:    nma.ErrCodeIdentifiability,
		Message: fmt.Sprintf("design has rank %d for %d parameters; not identifiable: %s", rank, p, strings.Join(names, ", ")),
		Details: map[string]string{"parameters": strings.Join(names, ",")},
	}
}
