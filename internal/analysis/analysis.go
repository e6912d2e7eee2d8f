// Package analysis runs a complete ML-NMR fit: integration points are
// attached to the aggregate arms, the design is built and checked, and
// the resulting log density is handed to a sampler whose draws become a
// posterior.Fit.
package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jSoboil/multinma/internal/design"
	"github.com/jSoboil/multinma/internal/integration"
	"github.com/jSoboil/multinma/internal/likelihood"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/posterior"
	"github.com/jSoboil/multinma/internal/sampler"
)

// DefaultHeterogeneityWidth is the widest acceptable 95% interval for tau.
const DefaultHeterogeneityWidth = 1.0

// Options configures Run.
type Options struct {
	// Integration attaches points to AgD arms when Covariates is set.
	Integration integration.Options
	Sampler     sampler.Kind
	Sampling    sampler.Options
	// PlugIn evaluates AgD arms at their covariate means.
	PlugIn        bool
	SkipRankCheck bool
	// HeterogeneityWidth bounds the tau interval before a warning; zero
	// uses DefaultHeterogeneityWidth.
	HeterogeneityWidth float64
	Logger             *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Result holds a fit and the intermediate objects it was derived from.
type Result struct {
	Fit     *posterior.Fit
	Network *nma.Network
	Design  *design.Design
}

// Prepare attaches integration points and builds the design and log
// density without sampling.
func Prepare(ctx context.Context, net *nma.Network, spec nma.ModelSpec, opts Options) (*nma.Network, *likelihood.Model, nma.Diagnostics, error) {
	log := opts.logger()
	var diags nma.Diagnostics
	if len(opts.Integration.Covariates) > 0 && net.HasAgD() {
		io := opts.Integration
		if io.Logger == nil {
			io.Logger = log
		}
		out, d, err := integration.AddIntegration(ctx, net, io)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("adding integration points: %w", err)
		}
		net = out
		diags = append(diags, d...)
	}
	d, err := design.Build(net, spec, design.Options{Logger: log, SkipRankCheck: opts.SkipRankCheck})
	if err != nil {
		return nil, nil, nil, err
	}
	model, err := likelihood.New(d, likelihood.Options{PlugIn: opts.PlugIn, Logger: log})
	if err != nil {
		return nil, nil, nil, err
	}
	diags = append(diags, model.Diagnostics()...)
	log.Info("design built", "parameters", d.Layout.Dim(), "studies", len(d.Studies), "hash", d.Hash)
	return net, model, diags, nil
}

// Run fits spec to net.
func Run(ctx context.Context, net *nma.Network, spec nma.ModelSpec, opts Options) (*Result, error) {
	log := opts.logger()
	net, model, diags, err := Prepare(ctx, net, spec, opts)
	if err != nil {
		return nil, err
	}
	so := opts.Sampling
	if so.Logger == nil {
		so.Logger = log
	}
	s, err := sampler.New(opts.Sampler, so)
	if err != nil {
		return nil, err
	}
	res, err := s.Sample(ctx, model, model.Init())
	if err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}
	diags = append(diags, res.Diagnostics...)

	kind := opts.Sampler
	if kind == "" {
		kind = sampler.KindLaplace
	}
	d := model.Design()
	fit := &posterior.Fit{
		Sampler:     string(kind),
		Meta:        d.Meta(),
		Draws:       res.Draws,
		Populations: design.StudyPopulations(net, d.Covariates),
	}
	width := opts.HeterogeneityWidth
	if width <= 0 {
		width = DefaultHeterogeneityWidth
	}
	diags = append(diags, fit.CheckHeterogeneity(width)...)
	fit.Diagnostics = diags
	for _, w := range diags {
		log.Warn("fit diagnostic", "warning", w.String())
	}
	log.Info("fit complete", "sampler", kind, "draws", res.Draws.Len())
	return &Result{Fit: fit, Network: net, Design: d}, nil
}
