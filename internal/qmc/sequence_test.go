package qmc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestNew_DimensionValidation(t *testing.T) {
	_, err := New(0, 1)
	assert.Error(t, err)

	_, err = New(MaxDimension+1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds supported maximum")

	s, err := New(MaxDimension, 1)
	require.NoError(t, err)
	assert.Equal(t, MaxDimension, s.Dim())
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := New(3, 42)
	require.NoError(t, err)
	b, err := New(3, 42)
	require.NoError(t, err)

	pa, err := a.Generate(256)
	require.NoError(t, err)
	pb, err := b.Generate(256)
	require.NoError(t, err)
	assert.True(t, mat.Equal(pa, pb), "same seed must give identical points")
}

func TestGenerate_SeedsDiffer(t *testing.T) {
	a, _ := New(2, 1)
	b, _ := New(2, 2)
	pa, _ := a.Generate(64)
	pb, _ := b.Generate(64)
	assert.False(t, mat.Equal(pa, pb))
}

func TestGenerate_InUnitCube(t *testing.T) {
	s, _ := New(4, 9)
	p, err := s.Generate(500)
	require.NoError(t, err)
	for _, v := range p.RawMatrix().Data {
		assert.Greater(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestGenerate_LowDiscrepancy(t *testing.T) {
	s, _ := New(2, 3)
	n := 1024
	p, err := s.Generate(n)
	require.NoError(t, err)

	for j := 0; j < 2; j++ {
		col := mat.Col(nil, j, p)
		assert.InDelta(t, 0.5, stat.Mean(col, nil), 0.01)
		below := 0
		for _, v := range col {
			if v < 0.25 {
				below++
			}
		}
		assert.InDelta(t, 0.25, float64(below)/float64(n), 0.01)
	}
}

func TestGenerate_InvalidCount(t *testing.T) {
	s, _ := New(1, 1)
	_, err := s.Generate(0)
	assert.Error(t, err)
}
