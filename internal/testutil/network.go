// Package testutil provides deterministic fixtures shared by package tests:
// a step clock, a fixed ID generator and synthetic ML-NMR networks with
// known parameters.
package testutil

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jSoboil/multinma/internal/integration"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/rng"
)

// Truth holds the parameters a synthetic network was simulated from.
type Truth struct {
	Mu    map[string]float64
	D     map[string]float64
	Beta  map[string]float64
	Inter map[string]float64
	Sigma float64
}

// CovariateSpecs are the integration specs matching the summary columns
// written by the simulators.
func CovariateSpecs() []integration.CovariateSpec {
	return []integration.CovariateSpec{
		{Name: "x1", Family: "bernoulli", Params: map[string]string{"prob": "x1_prob"}},
		{Name: "x2", Family: "normal", Params: map[string]string{"mean": "x2_mean", "sd": "x2_sd"}},
	}
}

// ContinuousNetwork simulates a two-study network: an IPD study of A vs B
// with n individuals and an AgD study of A vs C whose arm means are the
// exact expected outcomes. x1 is binary, x2 continuous; the outcome is
// normal with identity link and no effect modification.
func ContinuousNetwork(seed uint64, n int) (nma.Input, Truth) {
	truth := Truth{
		Mu:    map[string]float64{"IPD": 1.0, "AgD": 0.5},
		D:     map[string]float64{"B": 0.8, "C": 1.2},
		Beta:  map[string]float64{"x1": 0.5, "x2": 0.05},
		Sigma: 0.2,
	}
	r := rand.New(rng.New(seed))
	in := nma.Input{Outcome: nma.OutcomeContinuous, Reference: "A"}
	for i := range n {
		trt := "A"
		if i%2 == 1 {
			trt = "B"
		}
		x1 := 0.0
		if r.Float64() < 0.4 {
			x1 = 1
		}
		x2 := 60 + 8*r.NormFloat64()
		y := truth.Mu["IPD"] + truth.D[trt] + truth.Beta["x1"]*x1 + truth.Beta["x2"]*x2 + truth.Sigma*r.NormFloat64()
		in.IPD = append(in.IPD, nma.IPDRecord{
			Study: "IPD", Treatment: trt, Y: y,
			X: map[string]float64{"x1": x1, "x2": x2},
		})
	}

	arm := func(trt string, prob, mean float64) nma.AgDArmRecord {
		y := truth.Mu["AgD"] + truth.D[trt] + truth.Beta["x1"]*prob + truth.Beta["x2"]*mean
		return nma.AgDArmRecord{
			Study: "AgD", Treatment: trt, Y: y, SE: 0.02, SampleSize: 150,
			Summaries: map[string]float64{"x1_prob": prob, "x2_mean": mean, "x2_sd": 8},
		}
	}
	in.AgDArms = []nma.AgDArmRecord{arm("A", 0.5, 62), arm("C", 0.55, 63)}
	return in, truth
}

// BinaryNetwork simulates a three-treatment binary network with probit
// link: an IPD study of A vs B and an AgD study of A vs C, with x2 an
// effect modifier.
func BinaryNetwork(seed uint64, n int) nma.Input {
	r := rand.New(rng.New(seed))
	in := nma.Input{
		Outcome:   nma.OutcomeBinary,
		Reference: "A",
		Classes:   map[string]string{"A": "Placebo", "B": "Active", "C": "Active"},
	}
	d := map[string]float64{"A": 0, "B": -0.5, "C": -0.7}
	for i := range n {
		trt := "A"
		if i%2 == 1 {
			trt = "B"
		}
		x1 := 0.0
		if r.Float64() < 0.4 {
			x1 = 1
		}
		x2 := r.NormFloat64()
		eta := -0.2 + d[trt] + 0.3*x1 + 0.4*x2
		if trt != "A" {
			eta -= 0.2 * x2
		}
		y := 0
		if r.NormFloat64() < eta {
			y = 1
		}
		in.IPD = append(in.IPD, nma.IPDRecord{
			Study: "IPD", Treatment: trt, R: y,
			X: map[string]float64{"x1": x1, "x2": x2},
		})
	}
	in.AgDArms = []nma.AgDArmRecord{
		{Study: "AgD", Treatment: "A", R: 52, N: 120, Summaries: map[string]float64{"x1_prob": 0.45, "x2_mean": 0.3, "x2_sd": 1.2}},
		{Study: "AgD", Treatment: "C", R: 31, N: 118, Summaries: map[string]float64{"x1_prob": 0.42, "x2_mean": 0.2, "x2_sd": 1.1}},
	}
	return in
}

// BinaryModifierNetwork simulates a binary network under link: an IPD study
// of A vs B with n individuals and an AgD study of A vs C with 2000
// individuals per arm whose event counts are the expected counts under the
// covariate distribution given by the arm summaries. x2 modifies the effect
// of both active treatments through a shared Active class interaction.
func BinaryModifierNetwork(seed uint64, n int, link nma.Link) (nma.Input, Truth) {
	truth := Truth{
		Mu:    map[string]float64{"IPD": -0.2, "AgD": 0.1},
		D:     map[string]float64{"B": -0.5, "C": -0.8},
		Beta:  map[string]float64{"x1": 0.3, "x2": 0.4},
		Inter: map[string]float64{"x2": -0.3},
	}
	inv := func(eta float64) float64 {
		if link == nma.LinkProbit {
			return distuv.UnitNormal.CDF(eta)
		}
		return 1 / (1 + math.Exp(-eta))
	}
	eta := func(study, trt string, x1, x2 float64) float64 {
		v := truth.Mu[study] + truth.Beta["x1"]*x1 + truth.Beta["x2"]*x2
		if trt != "A" {
			v += truth.D[trt] + truth.Inter["x2"]*x2
		}
		return v
	}

	r := rand.New(rng.New(seed))
	in := nma.Input{
		Outcome:   nma.OutcomeBinary,
		Reference: "A",
		Classes:   map[string]string{"A": "Placebo", "B": "Active", "C": "Active"},
	}
	for i := range n {
		trt := "A"
		if i%2 == 1 {
			trt = "B"
		}
		x1 := 0.0
		if r.Float64() < 0.4 {
			x1 = 1
		}
		x2 := r.NormFloat64()
		y := 0
		if r.Float64() < inv(eta("IPD", trt, x1, x2)) {
			y = 1
		}
		in.IPD = append(in.IPD, nma.IPDRecord{
			Study: "IPD", Treatment: trt, R: y,
			X: map[string]float64{"x1": x1, "x2": x2},
		})
	}

	const size, draws = 2000, 50000
	arm := func(trt string, prob, mean, sd float64) nma.AgDArmRecord {
		var p float64
		for range draws {
			x1 := 0.0
			if r.Float64() < prob {
				x1 = 1
			}
			p += inv(eta("AgD", trt, x1, mean+sd*r.NormFloat64()))
		}
		return nma.AgDArmRecord{
			Study: "AgD", Treatment: trt, R: int(math.Round(size * p / draws)), N: size,
			Summaries: map[string]float64{"x1_prob": prob, "x2_mean": mean, "x2_sd": sd},
		}
	}
	in.AgDArms = []nma.AgDArmRecord{arm("A", 0.5, 1.0, 0.8), arm("C", 0.5, 1.0, 0.8)}
	return in, truth
}

// MustBuild builds a network from a simulator input and panics on error.
func MustBuild(in nma.Input) *nma.Network {
	net, err := nma.BuildNetwork(in)
	if err != nil {
		panic(err)
	}
	return net
}

// DominantDraws returns draws of d[B] and d[C] against reference A where
// every draw puts A first when lower is better: both effects are strictly
// positive and d[C] exceeds d[B].
func DominantDraws(seed uint64, n int) *nma.Draws {
	r := rand.New(rng.New(seed))
	values := make([]float64, 0, 2*n)
	for range n {
		b := 0.5 + 0.1*r.Float64()
		c := 1.0 + 0.1*r.Float64()
		values = append(values, b, c)
	}
	draws, err := nma.NewDraws([]string{"d[B]", "d[C]"}, values)
	if err != nil {
		panic(err)
	}
	return draws
}
