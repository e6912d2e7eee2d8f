package qmc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"

	"github.com/jSoboil/multinma/internal/rng"
)

// MaxDimension is the largest supported number of integrated covariates.
const MaxDimension = 40

// edge keeps points away from 0 and 1 so that inverse CDFs stay finite.
const edge = 1e-12

// Sequence is a scrambled Halton point generator.
type Sequence struct {
	dim  int
	seed uint64
}

// New returns a generator for dim-dimensional points.
func New(dim int, seed uint64) (*Sequence, error) {
	if dim < 1 {
		return nil, fmt.Errorf("qmc: dimension must be positive, got %d", dim)
	}
	if dim > MaxDimension {
		return nil, fmt.Errorf("qmc: dimension %d exceeds supported maximum %d; reduce the number of integrated covariates", dim, MaxDimension)
	}
	return &Sequence{dim: dim, seed: seed}, nil
}

// Dim returns the point dimension.
func (s *Sequence) Dim() int { return s.dim }

// Seed returns the scramble seed.
func (s *Sequence) Seed() uint64 { return s.seed }

// Generate returns an n×dim matrix whose rows are the first n points of
// the scrambled sequence.
func (s *Sequence) Generate(n int) (*mat.Dense, error) {
	if n < 1 {
		return nil, fmt.Errorf("qmc: number of points must be positive, got %d", n)
	}
	batch := mat.NewDense(n, s.dim, nil)
	h := samplemv.Halton{
		Kind: samplemv.Owen,
		Q:    distmv.NewUnitUniform(s.dim, nil),
		Src:  rng.New(s.seed),
	}
	h.Sample(batch)

	raw := batch.RawMatrix()
	for i, v := range raw.Data {
		switch {
		case v < edge:
			raw.Data[i] = edge
		case v > 1-edge:
			raw.Data[i] = 1 - edge
		}
	}
	return batch, nil
}
