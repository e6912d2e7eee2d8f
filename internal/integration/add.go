package integration

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/jSoboil/multinma/internal/copula"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/qmc"
)

// DefaultPoints is the default number of integration points per arm.
const DefaultPoints = 1000

// Options configures integration point generation.
type Options struct {
	Covariates []CovariateSpec `json:"covariates"`
	// Cor overrides the latent correlation matrix: row-major d×d in
	// Covariates order. When nil the matrix is pooled from IPD.
	Cor     []float64     `json:"cor,omitempty"`
	N       int           `json:"n"`
	Seed    uint64        `json:"seed"`
	Pooling PoolingPolicy `json:"pooling"`
	Adjust  Adjustment    `json:"adjust,omitempty"`
	// Workers bounds per-arm parallelism. Zero means GOMAXPROCS.
	Workers int          `json:"-"`
	Logger  *slog.Logger `json:"-"`
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Names returns the normalised covariate names in integration order.
func (o Options) Names() []string {
	out := make([]string, len(o.Covariates))
	for i, c := range o.Covariates {
		out[i] = nma.NormalizeLabel(c.Name)
	}
	return out
}

// prepared holds everything shared by the arms of one call.
type prepared struct {
	specs   []CovariateSpec
	names   []string
	cor     *mat.SymDense
	uniform *mat.Dense
	baseKey string
	diags   nma.Diagnostics
}

// prepare resolves the correlation, repairs it if needed and generates the
// correlated uniforms shared by every target of the call.
func prepare(net *nma.Network, opts Options) (*prepared, error) {
	specs, names, err := normalizeSpecs(opts.Covariates)
	if err != nil {
		return nil, err
	}
	n := opts.N
	if n == 0 {
		n = DefaultPoints
	}
	if n < 1 {
		return nil, fmt.Errorf("integration: number of points must be positive, got %d", n)
	}
	log := opts.logger()

	var (
		cor   *mat.SymDense
		diags nma.Diagnostics
	)
	switch {
	case opts.Cor != nil:
		cor, err = symFromSlice(len(names), opts.Cor)
	case net != nil && slices.Equal(net.IntCovariates, names) && net.IntCor != nil:
		cor, err = symFromSlice(len(names), net.IntCor)
	case net != nil:
		adjust := opts.Adjust
		if adjust == "" {
			adjust = AdjustPearson
		}
		cor, diags, err = EstimateCorrelation(net, names, opts.Pooling, adjust)
	default:
		err = nma.CorrelationErrorf("no correlation matrix supplied and no network to estimate one from")
	}
	if err != nil {
		return nil, err
	}

	tr, err := copula.NewTransform(cor)
	if err != nil {
		return nil, err
	}
	if rep := tr.Repair(); rep.Repaired {
		w := nma.Warning{
			Code:    nma.WarnCorrelationRepaired,
			Message: fmt.Sprintf("correlation matrix not positive semi-definite (min eigenvalue %.3g), projected to nearest correlation matrix", rep.MinEigen),
			Value:   rep.Distance,
		}
		log.Warn("correlation matrix repaired", "min_eigen", rep.MinEigen, "distance", rep.Distance)
		diags = append(diags, w)
	}
	for _, w := range diags {
		if w.Code == nma.WarnCorrelationUndefined {
			log.Warn(w.Message)
		}
	}

	seq, err := qmc.New(len(names), opts.Seed)
	if err != nil {
		return nil, err
	}
	u, err := seq.Generate(n)
	if err != nil {
		return nil, err
	}
	v, err := tr.Uniforms(u)
	if err != nil {
		return nil, err
	}

	fixed := tr.Correlation()
	key, err := nma.ContentHash(nma.DomainIntegration, specKey(specs), symToSlice(fixed), n, opts.Seed)
	if err != nil {
		return nil, err
	}
	return &prepared{specs: specs, names: names, cor: fixed, uniform: v, baseKey: key, diags: diags}, nil
}

// points applies the marginals implied by summaries to the shared uniforms.
func (p *prepared) points(summaries map[string]float64, seed uint64) (*nma.IntegrationPoints, error) {
	margins := make([]copula.Marginal, len(p.specs))
	var flat []float64
	for j, s := range p.specs {
		m, params, err := s.Marginal(summaries)
		if err != nil {
			return nil, err
		}
		margins[j] = m
		names, _ := copula.ParamNames(s.Family)
		for _, n := range names {
			flat = append(flat, params[n])
		}
	}
	x, err := copula.ApplyMarginals(p.uniform, margins)
	if err != nil {
		return nil, err
	}
	key, err := nma.ContentHash(nma.DomainIntegration, p.baseKey, flat)
	if err != nil {
		return nil, err
	}
	return &nma.IntegrationPoints{
		Covariates: slices.Clone(p.names),
		X:          x.RawMatrix().Data,
		Seed:       seed,
		Key:        key,
	}, nil
}

// AddIntegration returns a copy of net with an integration point set
// attached to every aggregate arm. Existing point sets are replaced. The
// latent correlation used is stored on the returned network for reuse by
// later target populations.
func AddIntegration(ctx context.Context, net *nma.Network, opts Options) (*nma.Network, nma.Diagnostics, error) {
	p, err := prepare(net, opts)
	if err != nil {
		return nil, nil, err
	}
	out := net.Clone()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for si := range out.Studies {
		s := &out.Studies[si]
		if !s.Kind.IsAgD() {
			continue
		}
		for ai := range s.Arms {
			arm := &s.Arms[ai]
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				pts, err := p.points(arm.Summaries, opts.Seed)
				if err != nil {
					if e, ok := err.(*nma.Error); ok {
						e.Study, e.Treatment = s.Name, arm.Treatment
					}
					return err
				}
				arm.Points = pts
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out.IntCovariates = slices.Clone(p.names)
	out.IntCor = symToSlice(p.cor)
	opts.logger().Debug("integration points attached",
		"covariates", p.names, "n", p.uniform.RawMatrix().Rows, "seed", opts.Seed)
	return out, p.diags, nil
}

// IntegratePopulations attaches integration points to target populations.
// The correlation comes from opts.Cor, else from the network's stored
// integration correlation, else it is pooled from the network's IPD.
func IntegratePopulations(net *nma.Network, pops []nma.Population, opts Options) ([]nma.Population, nma.Diagnostics, error) {
	p, err := prepare(net, opts)
	if err != nil {
		return nil, nil, err
	}
	out := slices.Clone(pops)
	for i := range out {
		pts, err := p.points(out[i].Summaries, opts.Seed)
		if err != nil {
			return nil, nil, fmt.Errorf("population %s: %w", out[i].Name, err)
		}
		out[i].Points = pts
	}
	return out, p.diags, nil
}

// Correlation returns the integration correlation stored on a network as a
// matrix, or nil when none is attached.
func Correlation(net *nma.Network) *mat.SymDense {
	if net.IntCor == nil {
		return nil
	}
	s, err := symFromSlice(len(net.IntCovariates), net.IntCor)
	if err != nil {
		return nil
	}
	return s
}
