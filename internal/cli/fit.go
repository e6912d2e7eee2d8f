package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jSoboil/multinma/internal/analysis"
	"github.com/jSoboil/multinma/internal/posterior"
	"github.com/jSoboil/multinma/internal/sampler"
	"github.com/jSoboil/multinma/internal/store"
)

// FitCommandOptions holds flags for the fit command.
type FitCommandOptions struct {
	InputOptions
	Database string
	Sampler  string
	Draws    int
	Chains   int
	Warmup   int
	PlugIn   bool

	// IDGenerator allows overriding the fit ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator store.IDGenerator
}

// FitResult is the output of the fit command.
type FitResult struct {
	ID         string                   `json:"id"`
	Sampler    string                   `json:"sampler"`
	Draws      int                      `json:"draws"`
	ModelHash  string                   `json:"model_hash"`
	Parameters []posterior.ParamSummary `json:"parameters"`
}

// NewFitCommand creates the fit command.
func NewFitCommand(rootOpts *RootOptions) *cobra.Command {
	return newFitCommand(rootOpts, &FitCommandOptions{})
}

func newFitCommand(rootOpts *RootOptions, opts *FitCommandOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit <network.yaml>",
		Short: "Fit a model and store the posterior draws",
		Long: `Attach integration points, build the design, sample the posterior and
store the draws in the SQLite database. Prints a parameter summary and the
fit ID used by effects, predict, ranks and rankprobs.

Example:
  mlnmr fit network.yaml --model model.cue
  mlnmr fit network.yaml --model model.cue --sampler metropolis --draws 4000 --db fits.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(rootOpts, opts, args[0], cmd)
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (env MLNMR_DB)")
	cmd.Flags().StringVar(&opts.Sampler, "sampler", "", "sampler backend: laplace|metropolis (env MLNMR_SAMPLER)")
	cmd.Flags().IntVar(&opts.Draws, "draws", 0, "number of retained draws (env MLNMR_DRAWS)")
	cmd.Flags().IntVar(&opts.Chains, "chains", 4, "number of chains (metropolis)")
	cmd.Flags().IntVar(&opts.Warmup, "warmup", 0, "warmup iterations per chain (metropolis; default: as many as retained)")
	cmd.Flags().BoolVar(&opts.PlugIn, "plug-in", false, "evaluate aggregate arms at their covariate means instead of integrating")

	return cmd
}

func runFit(rootOpts *RootOptions, opts *FitCommandOptions, networkPath string, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)
	cfg, err := rootOpts.settings()
	if err != nil {
		return out.Fail("invalid configuration", err)
	}
	net, spec, err := loadInputs(cmd, cfg, networkPath, &opts.InputOptions)
	if err != nil {
		return out.Fail("failed to load inputs", err)
	}

	kind := strings.ToLower(opts.Sampler)
	if kind == "" {
		kind = cfg.Sampler
	}
	draws := opts.Draws
	if draws <= 0 {
		draws = cfg.Draws
	}
	seed := cfg.Seed
	if cmd.Flags().Changed("seed") {
		seed = opts.Seed
	}

	aopts := analysis.Options{
		Integration: integrationOptions(spec),
		Sampler:     sampler.Kind(kind),
		Sampling: sampler.Options{
			Draws:   draws,
			Chains:  opts.Chains,
			Warmup:  opts.Warmup,
			Seed:    seed,
			Workers: cfg.Workers,
		},
		PlugIn: opts.PlugIn,
		Logger: slog.Default(),
	}
	res, err := analysis.Run(cmd.Context(), net, spec.Model, aopts)
	if err != nil {
		return out.Fail("fit failed", err)
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.DB
	}
	var storeOpts []store.Option
	if opts.IDGenerator != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDGenerator))
	}
	st, err := store.Open(dbPath, storeOpts...)
	if err != nil {
		return out.Fail("failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	id, err := st.WriteFit(cmd.Context(), res.Fit)
	if err != nil {
		return out.Fail("failed to store fit", err)
	}
	slog.Info("fit stored", "id", id, "db", dbPath)

	result := FitResult{
		ID:         id,
		Sampler:    res.Fit.Sampler,
		Draws:      res.Fit.Draws.Len(),
		ModelHash:  res.Fit.Meta.Hash,
		Parameters: res.Fit.Summary(),
	}
	return out.Result(result, res.Fit.Diagnostics, func(w io.Writer) error {
		if err := writeParamTable(w, result.Parameters); err != nil {
			return err
		}
		fmt.Fprintf(w, "\nFit %s stored (%s, %d draws)\n", result.ID, result.Sampler, result.Draws)
		return nil
	})
}

func writeParamTable(w io.Writer, params []posterior.ParamSummary) error {
	rows := make([][]string, len(params))
	for i, p := range params {
		rows[i] = append([]string{p.Parameter}, summaryCells(p.Summary)...)
	}
	return writeTable(w, append([]string{"parameter"}, summaryHeader...), rows)
}

var summaryHeader = []string{"mean", "sd", "q2.5", "q50", "q97.5"}

func summaryCells(s posterior.Summary) []string {
	return []string{num(s.Mean), num(s.SD), num(s.Lower), num(s.Median), num(s.Upper)}
}
