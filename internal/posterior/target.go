package posterior

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jSoboil/multinma/internal/nma"
)

// target is a population resolved against the fit covariates.
type target struct {
	name  string
	means []float64
	// points holds the population points re-ordered to the fit
	// covariates, row-major. Nil for plug-in targets.
	points []float64
	n      int
}

func (t *target) point(i, d int) []float64 {
	return t.points[i*d : (i+1)*d]
}

// targets resolves pops, falling back to the fit's study populations.
// Without covariates every population gives the same answer, so a single
// unnamed target is used.
func (f *Fit) targets(pops []nma.Population) ([]target, error) {
	covs := f.Meta.Covariates
	if len(covs) == 0 {
		return []target{{}}, nil
	}
	if len(pops) == 0 {
		pops = f.Populations
	}
	if len(pops) == 0 {
		return nil, nma.SchemaErrorf("model has covariates %v; a target population is required", covs)
	}
	out := make([]target, 0, len(pops))
	for _, p := range pops {
		t := target{name: p.Name, means: make([]float64, len(covs))}
		for k, c := range covs {
			v, ok := p.CovariateMean(c)
			if !ok {
				return nil, &nma.Error{
					Code:      nma.ErrCodeSchema,
					Message:   "population has no value for covariate",
					Study:     p.Name,
					Covariate: c,
				}
			}
			t.means[k] = v
		}
		if p.Points != nil && p.Points.N() > 0 {
			cols := make([]int, len(covs))
			for k, c := range covs {
				cols[k] = p.Points.Index(c)
				if cols[k] < 0 {
					return nil, &nma.Error{
						Code:      nma.ErrCodeSchema,
						Message:   "population points lack covariate",
						Study:     p.Name,
						Covariate: c,
					}
				}
			}
			t.n = p.Points.N()
			t.points = make([]float64, 0, t.n*len(covs))
			for i := 0; i < t.n; i++ {
				pt := p.Points.Point(i)
				for _, j := range cols {
					t.points = append(t.points, pt[j])
				}
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// forEachDraw calls fn for every draw index, spreading contiguous chunks
// over workers. fn must only write to state owned by index i.
func forEachDraw(ctx context.Context, n, workers int, fn func(i int)) error {
	if n == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (n + workers - 1) / workers
	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}
