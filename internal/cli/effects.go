package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/jSoboil/multinma/internal/posterior"
)

// EffectsOptions holds flags for the effects command.
type EffectsOptions struct {
	FitOptions
	AllContrasts bool
}

// NewEffectsCommand creates the effects command.
func NewEffectsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EffectsOptions{}

	cmd := &cobra.Command{
		Use:   "effects",
		Short: "Population-adjusted relative effects",
		Long: `Summarise relative effects on the linear predictor scale for each target
population. Without --population the study populations stored with the
fit are used.

Example:
  mlnmr effects --fit latest
  mlnmr effects --fit 0192... --population targets.yaml --all-contrasts`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEffects(rootOpts, opts, cmd)
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.AllContrasts, "all-contrasts", false, "report every pairwise contrast")
	return cmd
}

func runEffects(rootOpts *RootOptions, opts *EffectsOptions, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)
	cfg, err := rootOpts.settings()
	if err != nil {
		return out.Fail("invalid configuration", err)
	}
	fit, err := loadFit(cmd.Context(), cfg, &opts.FitOptions)
	if err != nil {
		return out.Fail("failed to load fit", err)
	}
	pops, diags, err := loadTargets(&opts.FitOptions)
	if err != nil {
		return out.Fail("failed to load populations", err)
	}

	effects, err := fit.RelativeEffects(cmd.Context(), posterior.EffectOptions{
		Populations:  pops,
		AllContrasts: opts.AllContrasts,
		Workers:      cfg.Workers,
	})
	if err != nil {
		return out.Fail("relative effects failed", err)
	}

	return out.Result(effects, diags, func(w io.Writer) error {
		named := false
		for _, e := range effects {
			named = named || e.Population != ""
		}
		header := append([]string{"treatment", "comparator"}, summaryHeader...)
		if named {
			header = append([]string{"population"}, header...)
		}
		rows := make([][]string, len(effects))
		for i, e := range effects {
			row := append([]string{e.Treatment, e.Comparator}, summaryCells(e.Summary)...)
			if named {
				row = append([]string{e.Population}, row...)
			}
			rows[i] = row
		}
		return writeTable(w, header, rows)
	})
}
