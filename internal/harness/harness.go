package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jSoboil/multinma/internal/analysis"
	"github.com/jSoboil/multinma/internal/integration"
	"github.com/jSoboil/multinma/internal/modelspec"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/sampler"
	"github.com/jSoboil/multinma/internal/store"
	"github.com/jSoboil/multinma/internal/testutil"
)

// Options configures scenario execution.
type Options struct {
	// Workers bounds parallelism; zero means GOMAXPROCS.
	Workers int
	// Logger receives progress; nil discards it.
	Logger *slog.Logger
}

// Harness is the scenario execution engine. It fits with a fixed seed and
// stores fits with a fixed ID and clock so runs are reproducible.
type Harness struct {
	store  *store.Store
	clock  *testutil.StepClock
	ids    *testutil.FixedIDGenerator
	logger *slog.Logger
	opts   Options
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load the network, model and optional populations
// 2. Fit the model
// 3. Write the fit to the store and read it back
// 4. Evaluate assertions against the stored fit
//
// Errors loading inputs or fitting are returned; failed assertions are
// reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	}
	h := &Harness{
		clock:  testutil.NewStepClock(),
		ids:    testutil.NewFixedIDGenerator(""),
		logger: logger,
		opts:   opts,
	}

	st, err := store.Open(":memory:", store.WithIDGenerator(h.ids), store.WithClock(h.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st

	return h.run(ctx, scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	net, err := nma.LoadNetwork(scenario.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to load network: %w", err)
	}
	spec, err := modelspec.Load(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	var pops []nma.Population
	if scenario.Populations != "" {
		if pops, err = nma.LoadPopulations(scenario.Populations); err != nil {
			return nil, fmt.Errorf("failed to load populations: %w", err)
		}
	}

	seed := scenario.Seed
	if seed == 0 {
		seed = 1
	}
	aopts := analysis.Options{
		Sampler: sampler.Kind(scenario.Sampler),
		Sampling: sampler.Options{
			Draws:   scenario.Draws,
			Seed:    seed,
			Workers: h.opts.Workers,
		},
		Logger: h.logger,
	}
	if spec.Integration != nil {
		aopts.Integration = *spec.Integration
		aopts.Integration.Workers = h.opts.Workers
	}

	h.logger.Info("fitting scenario", "scenario", scenario.Name, "network", scenario.Network, "model", scenario.Model)
	res, err := analysis.Run(ctx, net, spec.Model, aopts)
	if err != nil {
		return nil, fmt.Errorf("failed to fit: %w", err)
	}

	if len(pops) > 0 && spec.Integration != nil {
		if pops, _, err = integration.IntegratePopulations(res.Network, pops, aopts.Integration); err != nil {
			return nil, fmt.Errorf("failed to integrate populations: %w", err)
		}
	}

	id, err := h.store.WriteFit(ctx, res.Fit)
	if err != nil {
		return nil, fmt.Errorf("failed to store fit: %w", err)
	}
	fit, err := h.store.ReadFit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read fit: %w", err)
	}

	result := NewResult()
	result.FitID = id
	result.Fit = fit
	actx := &AssertionContext{Ctx: ctx, Fit: fit, Populations: pops, Workers: h.opts.Workers}
	for _, c := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddCheck(c)
	}
	h.logger.Info("scenario complete", "scenario", scenario.Name, "pass", result.Pass)
	return result, nil
}
