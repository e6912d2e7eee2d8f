package posterior

import (
	"cmp"
	"context"
	"slices"

	"github.com/jSoboil/multinma/internal/nma"
)

// RankOptions configures Ranks and RankProbs.
type RankOptions struct {
	Populations []nma.Population
	// LowerBetter gives rank 1 to the smallest effect.
	LowerBetter bool
	// Cumulative reports P(rank <= r) instead of P(rank == r).
	Cumulative bool
	Workers    int
}

// Rank summarises the posterior rank of a treatment.
type Rank struct {
	Population string `json:"population,omitempty"`
	Treatment  string `json:"treatment"`
	Summary
}

// RankProb holds the probability of each rank, Probs[r-1] for rank r.
type RankProb struct {
	Population string    `json:"population,omitempty"`
	Treatment  string    `json:"treatment"`
	Probs      []float64 `json:"probs"`
}

// Ranks ranks treatments by relative effect within each draw. Absolute
// predictions share a baseline across treatments within a draw and the
// inverse link is monotone, so ranking relative effects ranks absolute
// predictions too.
func (f *Fit) Ranks(ctx context.Context, opts RankOptions) ([]Rank, error) {
	ranks, targets, err := f.rankDraws(ctx, opts)
	if err != nil {
		return nil, err
	}
	trts := f.Meta.TreatmentNames()
	var out []Rank
	for p, tg := range targets {
		for t, name := range trts {
			col := make([]float64, len(ranks[p]))
			for i, r := range ranks[p] {
				col[i] = float64(r[t])
			}
			out = append(out, Rank{Population: tg.name, Treatment: name, Summary: Summarize(col)})
		}
	}
	return out, nil
}

// RankProbs tallies the frequency with which each treatment attains each
// rank. Every row sums to 1; cumulative rows are non-decreasing and end at
// 1.
func (f *Fit) RankProbs(ctx context.Context, opts RankOptions) ([]RankProb, error) {
	ranks, targets, err := f.rankDraws(ctx, opts)
	if err != nil {
		return nil, err
	}
	trts := f.Meta.TreatmentNames()
	nt := len(trts)
	var out []RankProb
	for p, tg := range targets {
		counts := make([][]int, nt)
		for t := range counts {
			counts[t] = make([]int, nt)
		}
		for _, r := range ranks[p] {
			for t, k := range r {
				counts[t][k-1]++
			}
		}
		n := float64(len(ranks[p]))
		for t, name := range trts {
			probs := make([]float64, nt)
			var acc int
			for k, c := range counts[t] {
				if opts.Cumulative {
					acc += c
					probs[k] = float64(acc) / n
				} else {
					probs[k] = float64(c) / n
				}
			}
			out = append(out, RankProb{Population: tg.name, Treatment: name, Probs: probs})
		}
	}
	return out, nil
}

// rankDraws returns ranks[target][draw][treatment].
func (f *Fit) rankDraws(ctx context.Context, opts RankOptions) ([][][]int, []target, error) {
	c, err := f.coefs()
	if err != nil {
		return nil, nil, err
	}
	targets, err := f.targets(opts.Populations)
	if err != nil {
		return nil, nil, err
	}
	out := make([][][]int, len(targets))
	for p, tg := range targets {
		eff, err := f.effectDraws(ctx, c, tg, opts.Workers)
		if err != nil {
			return nil, nil, err
		}
		out[p] = make([][]int, len(eff))
		err = forEachDraw(ctx, len(eff), opts.Workers, func(i int) {
			out[p][i] = rank(eff[i], opts.LowerBetter)
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return out, targets, nil
}

// rank returns the 1-based rank of each value. Ties keep treatment order.
func rank(v []float64, lowerBetter bool) []int {
	order := make([]int, len(v))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if lowerBetter {
			return cmp.Compare(v[a], v[b])
		}
		return cmp.Compare(v[b], v[a])
	})
	out := make([]int, len(v))
	for k, i := range order {
		out[i] = k + 1
	}
	return out
}
