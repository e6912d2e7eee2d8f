package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jSoboil/multinma/internal/integration"
	"github.com/jSoboil/multinma/internal/nma"
)

// ArmPoints summarises the integration points attached to one AgD arm.
type ArmPoints struct {
	Study     string             `json:"study"`
	Treatment string             `json:"treatment"`
	N         int                `json:"n"`
	Means     map[string]float64 `json:"means"`
}

// IntegrateResult is the output of the integrate command.
type IntegrateResult struct {
	Covariates []string    `json:"covariates"`
	Arms       []ArmPoints `json:"arms"`
	// Correlation is the latent correlation used, row-major.
	Correlation []float64 `json:"correlation"`
}

// NewIntegrateCommand creates the integrate command.
func NewIntegrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InputOptions{}

	cmd := &cobra.Command{
		Use:   "integrate <network.yaml>",
		Short: "Attach integration points to aggregate arms",
		Long: `Generate integration points for every aggregate-data arm using the
covariate distributions and correlation declared in the model file, and
report the per-arm covariate means of the generated points.

Example:
  mlnmr integrate network.yaml --model model.cue
  mlnmr integrate network.yaml --model model.cue --n-int 4000 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntegrate(rootOpts, opts, args[0], cmd)
		},
	}
	opts.bind(cmd)
	return cmd
}

func runIntegrate(rootOpts *RootOptions, opts *InputOptions, networkPath string, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)
	cfg, err := rootOpts.settings()
	if err != nil {
		return out.Fail("invalid configuration", err)
	}
	net, spec, err := loadInputs(cmd, cfg, networkPath, opts)
	if err != nil {
		return out.Fail("failed to load inputs", err)
	}
	if spec.Integration == nil {
		return out.Fail("nothing to integrate", nma.SchemaErrorf("model file has no integration block"))
	}

	iopts := *spec.Integration
	iopts.Logger = slog.Default()
	withPoints, diags, err := integration.AddIntegration(cmd.Context(), net, iopts)
	if err != nil {
		return out.Fail("integration failed", err)
	}

	res := IntegrateResult{Covariates: iopts.Names(), Arms: []ArmPoints{}, Correlation: withPoints.IntCor}
	for _, s := range withPoints.Studies {
		for _, a := range s.Arms {
			if a.Points == nil {
				continue
			}
			ap := ArmPoints{Study: s.Name, Treatment: a.Treatment, N: a.Points.N(), Means: map[string]float64{}}
			for j, m := range a.Points.Means() {
				ap.Means[a.Points.Covariates[j]] = m
			}
			res.Arms = append(res.Arms, ap)
		}
	}
	out.VerboseLog("attached %d points to %d arms", iopts.N, len(res.Arms))

	return out.Result(res, diags, func(w io.Writer) error {
		header := append([]string{"study", "treatment", "n"}, res.Covariates...)
		rows := make([][]string, 0, len(res.Arms))
		for _, a := range res.Arms {
			row := []string{a.Study, a.Treatment, strconv.Itoa(a.N)}
			for _, c := range res.Covariates {
				row = append(row, num(a.Means[c]))
			}
			rows = append(rows, row)
		}
		if err := writeTable(w, header, rows); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%d arms integrated with %d points each\n", len(res.Arms), iopts.N)
		return nil
	})
}
