package rng

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource_Deterministic(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestSource_Reseed(t *testing.T) {
	s := New(7)
	first := s.Uint64()
	s.Uint64()
	s.Seed(7)
	assert.Equal(t, first, s.Uint64())
}

func TestSource_UsableWithRand(t *testing.T) {
	r := rand.New(New(1))
	v := r.Float64()
	assert.GreaterOrEqual(t, v, 0.0)
	assert.Less(t, v, 1.0)
}

func TestDerive_DistinctStreams(t *testing.T) {
	seen := map[uint64]bool{}
	for i := 0; i < 100; i++ {
		s := Derive(42, i)
		assert.False(t, seen[s], "stream %d collides", i)
		seen[s] = true
	}
	assert.Equal(t, Derive(42, 3), Derive(42, 3))
}
