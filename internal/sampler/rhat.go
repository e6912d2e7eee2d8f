package sampler

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SplitRhat computes the potential scale reduction factor after splitting
// each chain in half. Chains must have equal length of at least 4.
// Constant draws give 1.
func SplitRhat(chains [][]float64) float64 {
	if len(chains) == 0 || len(chains[0]) < 4 {
		return math.NaN()
	}
	half := len(chains[0]) / 2
	var split [][]float64
	for _, c := range chains {
		split = append(split, c[:half], c[len(c)-half:])
	}
	n := float64(half)
	means := make([]float64, len(split))
	vars := make([]float64, len(split))
	for i, c := range split {
		means[i], vars[i] = stat.MeanVariance(c, nil)
	}
	w := stat.Mean(vars, nil)
	b := n * stat.Variance(means, nil)
	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}
	v := (n-1)/n*w + b/n
	return math.Sqrt(v / w)
}
