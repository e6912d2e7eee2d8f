package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jSoboil/multinma/internal/config"
	"github.com/jSoboil/multinma/internal/integration"
	"github.com/jSoboil/multinma/internal/modelspec"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/posterior"
	"github.com/jSoboil/multinma/internal/store"
)

// InputOptions are the flags shared by commands that read a network and a
// model file.
type InputOptions struct {
	Model string
	NInt  int
	Seed  uint64
}

func (o *InputOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Model, "model", "m", "", "path to CUE model file (required)")
	cmd.Flags().IntVar(&o.NInt, "n-int", 0, "integration points per arm (overrides the model file; env MLNMR_N_INT)")
	cmd.Flags().Uint64Var(&o.Seed, "seed", 0, "random seed (env MLNMR_SEED)")
	_ = cmd.MarkFlagRequired("model")
}

// loadInputs reads a network and a model file and resolves integration
// options. The point count and seed come from the model file unless the
// flag was given or the MLNMR_* variable is set.
func loadInputs(cmd *cobra.Command, cfg config.Config, networkPath string, o *InputOptions) (*nma.Network, *modelspec.Spec, error) {
	net, err := nma.LoadNetwork(networkPath)
	if err != nil {
		return nil, nil, err
	}
	spec, err := modelspec.Load(o.Model)
	if err != nil {
		return nil, nil, err
	}
	if spec.Integration != nil {
		iopts := spec.Integration
		if n, ok := intSetting(cmd, "n-int", o.NInt, "MLNMR_N_INT", cfg.NInt); ok {
			iopts.N = n
		}
		if s, ok := seedSetting(cmd, o.Seed, cfg.Seed); ok {
			iopts.Seed = s
		}
		iopts.Workers = cfg.Workers
	}
	return net, spec, nil
}

// integrationOptions returns the model's integration options, or zero
// options when the model has none.
func integrationOptions(spec *modelspec.Spec) integration.Options {
	if spec.Integration == nil {
		return integration.Options{}
	}
	return *spec.Integration
}

func intSetting(cmd *cobra.Command, flag string, value int, envKey string, envValue int) (int, bool) {
	if cmd.Flags().Changed(flag) {
		return value, true
	}
	if _, ok := os.LookupEnv(envKey); ok {
		return envValue, true
	}
	return 0, false
}

func seedSetting(cmd *cobra.Command, value, envValue uint64) (uint64, bool) {
	if cmd.Flags().Changed("seed") {
		return value, true
	}
	if _, ok := os.LookupEnv("MLNMR_SEED"); ok {
		return envValue, true
	}
	return 0, false
}

// FitOptions are the flags shared by commands that read a stored fit.
type FitOptions struct {
	Database   string
	FitID      string
	Population string
	// Network and Model integrate the target populations when both are
	// given; otherwise populations are used at their means.
	Network string
	Model   string
}

func (o *FitOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite database (env MLNMR_DB)")
	cmd.Flags().StringVar(&o.FitID, "fit", store.Latest, "fit ID, or \"latest\"")
	cmd.Flags().StringVar(&o.Population, "population", "", "YAML file of target populations (default: study populations)")
	cmd.Flags().StringVar(&o.Network, "network", "", "network file used to integrate target populations")
	cmd.Flags().StringVar(&o.Model, "model", "", "model file used to integrate target populations")
}

func (o *FitOptions) database(cfg config.Config) string {
	if o.Database != "" {
		return o.Database
	}
	return cfg.DB
}

// loadFit opens the store and reads the selected fit.
func loadFit(ctx context.Context, cfg config.Config, o *FitOptions) (*posterior.Fit, error) {
	path := o.database(cfg)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.ReadFit(ctx, o.FitID)
}

// loadTargets reads the --population file. With --network and --model the
// populations are given integration points.
func loadTargets(o *FitOptions) ([]nma.Population, nma.Diagnostics, error) {
	if o.Population == "" {
		return nil, nil, nil
	}
	pops, err := nma.LoadPopulations(o.Population)
	if err != nil {
		return nil, nil, err
	}
	if o.Network == "" || o.Model == "" {
		return pops, nil, nil
	}
	net, err := nma.LoadNetwork(o.Network)
	if err != nil {
		return nil, nil, err
	}
	spec, err := modelspec.Load(o.Model)
	if err != nil {
		return nil, nil, err
	}
	if spec.Integration == nil {
		return pops, nil, nil
	}
	return integration.IntegratePopulations(net, pops, *spec.Integration)
}
