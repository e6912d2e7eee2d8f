// Package sampler draws from a posterior given its log density. The
// Sampler interface is the boundary between the model code and a
// posterior backend; two minimal backends are provided: a Laplace
// approximation and a parallel random-walk Metropolis sampler.
package sampler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jSoboil/multinma/internal/nma"
)

// Target is a log density over an unconstrained parameter vector.
// Implementations must be safe for concurrent use.
type Target interface {
	Dim() int
	// Names are the constrained parameter names, in vector order.
	Names() []string
	LogDensity(theta []float64) float64
	Gradient(dst, theta []float64)
	// Constrain maps an unconstrained vector to reported values.
	Constrain(theta []float64) []float64
}

// Result is the output of a sampler run.
type Result struct {
	// Draws are constrained parameter draws.
	Draws *nma.Draws
	// Mode is the unconstrained posterior mode found during setup.
	Mode        []float64
	Diagnostics nma.Diagnostics
}

// Sampler draws from a target.
type Sampler interface {
	Sample(ctx context.Context, t Target, init []float64) (*Result, error)
}

// Kind names a sampler backend.
type Kind string

const (
	KindLaplace    Kind = "laplace"
	KindMetropolis Kind = "metropolis"
)

// Options configures New.
type Options struct {
	// Draws is the number of retained draws in total.
	Draws   int
	Chains  int
	Warmup  int
	Seed    uint64
	Workers int
	Logger  *slog.Logger
}

// New returns the backend named by kind.
func New(kind Kind, opts Options) (Sampler, error) {
	if opts.Draws <= 0 {
		opts.Draws = 1000
	}
	switch kind {
	case KindLaplace, "":
		return &Laplace{Draws: opts.Draws, Seed: opts.Seed, Logger: opts.Logger}, nil
	case KindMetropolis:
		chains := opts.Chains
		if chains <= 0 {
			chains = 4
		}
		iter := (opts.Draws + chains - 1) / chains
		warmup := opts.Warmup
		if warmup <= 0 {
			warmup = iter
		}
		return &Metropolis{
			Chains:  chains,
			Warmup:  warmup,
			Iter:    iter,
			Draws:   opts.Draws,
			Seed:    opts.Seed,
			Workers: opts.Workers,
			Logger:  opts.Logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown sampler %q (want %s or %s)", kind, KindLaplace, KindMetropolis)
	}
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
