package posterior

import (
	"fmt"
	"time"

	"github.com/jSoboil/multinma/internal/design"
	"github.com/jSoboil/multinma/internal/nma"
)

// Fit is a set of posterior draws with the metadata needed to interpret
// them.
type Fit struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Sampler     string          `json:"sampler"`
	Meta        *design.Meta    `json:"meta"`
	Draws       *nma.Draws      `json:"-"`
	Diagnostics nma.Diagnostics `json:"diagnostics,omitempty"`
	// Populations are the default analysis targets, one per study.
	Populations []nma.Population `json:"populations,omitempty"`
}

// coefs locates regression coefficients in the draws.
type coefs struct {
	d      []int   // per treatment; -1 for the reference
	beta   []int   // per covariate
	inter  [][]int // [modifier][treatment]; -1 when fixed at zero
	modCol []int   // modifier -> covariate column
}

func (f *Fit) coefs() (*coefs, error) {
	if f.Meta == nil || f.Draws == nil {
		return nil, fmt.Errorf("posterior: fit has no draws")
	}
	m := f.Meta
	lookup := func(name string) (int, error) {
		if name == "" {
			return -1, nil
		}
		j, ok := f.Draws.Index(name)
		if !ok {
			return 0, fmt.Errorf("posterior: parameter %s missing from draws", name)
		}
		return j, nil
	}
	c := &coefs{}
	for _, t := range m.Treatments {
		j, err := lookup(m.EffectName(t.Name))
		if err != nil {
			return nil, err
		}
		c.d = append(c.d, j)
	}
	for _, cov := range m.Covariates {
		j, err := lookup(m.BetaName(cov))
		if err != nil {
			return nil, err
		}
		c.beta = append(c.beta, j)
	}
	for _, em := range m.Modifiers {
		row := make([]int, len(m.Treatments))
		for t, trt := range m.Treatments {
			j, err := lookup(m.InteractionName(em, trt.Name))
			if err != nil {
				return nil, err
			}
			row[t] = j
		}
		c.inter = append(c.inter, row)
		col := -1
		for k, cov := range m.Covariates {
			if cov == em {
				col = k
			}
		}
		c.modCol = append(c.modCol, col)
	}
	return c, nil
}

// relative returns the effect of treatment t against the reference on the
// linear predictor scale for covariates x.
func (c *coefs) relative(row []float64, t int, x, centers []float64) float64 {
	var v float64
	if c.d[t] >= 0 {
		v = row[c.d[t]]
	}
	for m, inter := range c.inter {
		if j := inter[t]; j >= 0 {
			k := c.modCol[m]
			v += row[j] * (x[k] - centers[k])
		}
	}
	return v
}

// prognostic returns the main-effect contribution of x relative to xbar.
func (c *coefs) prognostic(row []float64, x, xbar []float64) float64 {
	var v float64
	for k, j := range c.beta {
		v += row[j] * (x[k] - xbar[k])
	}
	return v
}
