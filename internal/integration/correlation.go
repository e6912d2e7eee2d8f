package integration

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/jSoboil/multinma/internal/nma"
)

// Weighting selects how per-study correlation matrices are pooled.
type Weighting string

const (
	// WeightSize weights each study by its number of individuals.
	WeightSize Weighting = "size"
	// WeightDF weights each study by n-1.
	WeightDF Weighting = "df"
	// WeightEqual gives every study the same weight.
	WeightEqual Weighting = "equal"
)

// Adjustment selects the correlation scale estimated from IPD.
type Adjustment string

const (
	// AdjustPearson uses the sample (Pearson) correlation as the latent
	// correlation, without adjustment.
	AdjustPearson Adjustment = "pearson"
	// AdjustSpearman estimates rank correlations and maps them to the
	// latent normal scale with 2 sin(πr/6).
	AdjustSpearman Adjustment = "spearman"
)

// PoolingPolicy controls how IPD correlation matrices are combined.
type PoolingPolicy struct {
	Weighting Weighting `json:"weighting,omitempty" yaml:"weighting,omitempty"`
	// MinStudySize excludes studies with fewer individuals. Correlations
	// need at least two individuals, so values below 2 are raised to 2.
	MinStudySize int `json:"min_study_size,omitempty" yaml:"min_study_size,omitempty"`
}

func (p PoolingPolicy) weight(n int) float64 {
	switch p.Weighting {
	case WeightEqual:
		return 1
	case WeightDF:
		return float64(n - 1)
	default:
		return float64(n)
	}
}

func (p PoolingPolicy) minSize() int {
	return max(p.MinStudySize, 2)
}

// StudyCorrelation is the correlation matrix of one IPD study.
type StudyCorrelation struct {
	Study string
	N     int
	Cor   *mat.SymDense
}

// StudyCorrelations computes the covariate correlation matrix of each IPD
// study. Entries involving a covariate that is constant within a study are
// NaN.
func StudyCorrelations(net *nma.Network, covariates []string, adjust Adjustment) ([]StudyCorrelation, error) {
	idx := make([]int, len(covariates))
	for j, c := range covariates {
		idx[j] = net.CovariateIndex(c)
		if idx[j] < 0 && net.HasIPD() {
			return nil, &nma.Error{
				Code:      nma.ErrCodeCorrelation,
				Message:   "covariate not present in IPD; supply a correlation matrix",
				Covariate: c,
			}
		}
	}

	var out []StudyCorrelation
	for _, s := range net.Studies {
		if s.Kind != nma.KindIPD {
			continue
		}
		n, d := len(s.IPD), len(covariates)
		x := mat.NewDense(n, d, nil)
		for i, row := range s.IPD {
			for j, k := range idx {
				x.Set(i, j, row.X[k])
			}
		}
		if adjust == AdjustSpearman {
			for j := 0; j < d; j++ {
				x.SetCol(j, ranks(mat.Col(nil, j, x)))
			}
		}
		cor := mat.NewSymDense(d, nil)
		if n >= 2 {
			stat.CorrelationMatrix(cor, x, nil)
		} else {
			for i := 0; i < d; i++ {
				for j := i; j < d; j++ {
					cor.SetSym(i, j, math.NaN())
				}
			}
		}
		out = append(out, StudyCorrelation{Study: s.Name, N: n, Cor: cor})
	}
	return out, nil
}

// EstimateCorrelation pools the IPD study correlation matrices into one
// latent correlation matrix over covariates. It fails with a
// CorrelationError when the network has no IPD study.
func EstimateCorrelation(net *nma.Network, covariates []string, policy PoolingPolicy, adjust Adjustment) (*mat.SymDense, nma.Diagnostics, error) {
	if !net.HasIPD() {
		return nil, nil, nma.CorrelationErrorf("no IPD study to estimate covariate correlations from and no correlation matrix supplied")
	}
	studies, err := StudyCorrelations(net, covariates, adjust)
	if err != nil {
		return nil, nil, err
	}
	pooled, diags, err := Pool(studies, covariates, policy)
	if err != nil {
		return nil, nil, err
	}
	for i := range covariates {
		for j := 0; j < i; j++ {
			r := pooled.At(i, j)
			if adjust == AdjustSpearman {
				r = 2 * math.Sin(math.Pi*r/6)
			}
			pooled.SetSym(i, j, r)
		}
	}
	return pooled, diags, nil
}

// Pool combines per-study matrices entry by entry with the policy's
// weights, skipping studies below the minimum size and NaN entries.
// Entries undefined in every study default to zero with a warning.
func Pool(studies []StudyCorrelation, covariates []string, policy PoolingPolicy) (*mat.SymDense, nma.Diagnostics, error) {
	var used []StudyCorrelation
	for _, s := range studies {
		if s.N >= policy.minSize() {
			used = append(used, s)
		}
	}
	if len(used) == 0 {
		return nil, nil, nma.CorrelationErrorf("no IPD study has at least %d individuals", policy.minSize())
	}
	d, _ := used[0].Cor.Dims()
	out := mat.NewSymDense(d, nil)
	var diags nma.Diagnostics
	for i := 0; i < d; i++ {
		out.SetSym(i, i, 1)
		for j := 0; j < i; j++ {
			num, den := 0.0, 0.0
			for _, s := range used {
				r := s.Cor.At(i, j)
				if math.IsNaN(r) {
					continue
				}
				w := policy.weight(s.N)
				num += w * r
				den += w
			}
			if den == 0 {
				diags = append(diags, nma.Warning{
					Code:    nma.WarnCorrelationUndefined,
					Message: fmt.Sprintf("correlation %s~%s undefined in every IPD study, assuming independence", covariates[i], covariates[j]),
				})
				continue
			}
			out.SetSym(i, j, num/den)
		}
	}
	return out, diags, nil
}

// ranks returns average ranks (1-based), ties sharing their mean rank.
func ranks(x []float64) []float64 {
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[order[a]] < x[order[b]] })
	out := make([]float64, len(x))
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && x[order[j+1]] == x[order[i]] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[order[k]] = r
		}
		i = j + 1
	}
	return out
}

// symFromSlice builds a SymDense from a row-major d×d slice, checking
// symmetry.
func symFromSlice(d int, data []float64) (*mat.SymDense, error) {
	if len(data) != d*d {
		return nil, nma.CorrelationErrorf("correlation matrix has %d entries, want %d", len(data), d*d)
	}
	out := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			a, b := data[i*d+j], data[j*d+i]
			if math.Abs(a-b) > 1e-10 {
				return nil, nma.CorrelationErrorf("correlation matrix is not symmetric at (%d,%d)", i, j)
			}
			out.SetSym(i, j, a)
		}
	}
	return out, nil
}

func symToSlice(s *mat.SymDense) []float64 {
	d, _ := s.Dims()
	out := make([]float64, d*d)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			out[i*d+j] = s.At(i, j)
		}
	}
	return out
}
