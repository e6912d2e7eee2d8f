package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jSoboil/multinma/internal/integration"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/store"
)

// DiagnoseOptions holds flags for the diagnose command.
type DiagnoseOptions struct {
	InputOptions
	Database string
	FitID    string
	Tol      float64
	Reps     int
}

// DiagnoseResult is the output of the diagnose command.
type DiagnoseResult struct {
	FitID   string                 `json:"fit_id"`
	Tol     float64                `json:"tol"`
	Arms    []integration.ArmError `json:"arms"`
	Flagged int                    `json:"flagged"`
}

// NewDiagnoseCommand creates the diagnose command.
func NewDiagnoseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiagnoseOptions{}

	cmd := &cobra.Command{
		Use:   "diagnose <network.yaml>",
		Short: "Estimate numerical integration error per aggregate arm",
		Long: `Regenerate each aggregate arm's integration points with independently
scrambled sequences and compare the integrated response at the posterior
mean of a stored fit. Arms whose replicates disagree by more than --tol
are flagged; increase --n-int for those.

Exit codes:
  0 - No arm exceeds the tolerance
  1 - One or more arms flagged
  2 - Command error

Example:
  mlnmr diagnose network.yaml --model model.cue --fit latest --tol 0.005`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(rootOpts, opts, args[0], cmd)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (env MLNMR_DB)")
	cmd.Flags().StringVar(&opts.FitID, "fit", store.Latest, "fit ID, or \"latest\"")
	cmd.Flags().Float64Var(&opts.Tol, "tol", 0, "flag arms whose error exceeds this (env MLNMR_INT_TOL)")
	cmd.Flags().IntVar(&opts.Reps, "reps", 2, "number of independently scrambled point sets")
	return cmd
}

func runDiagnose(rootOpts *RootOptions, opts *DiagnoseOptions, networkPath string, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)
	cfg, err := rootOpts.settings()
	if err != nil {
		return out.Fail("invalid configuration", err)
	}
	net, spec, err := loadInputs(cmd, cfg, networkPath, &opts.InputOptions)
	if err != nil {
		return out.Fail("failed to load inputs", err)
	}
	if spec.Integration == nil {
		return out.Fail("nothing to diagnose", nma.SchemaErrorf("model file has no integration block"))
	}
	fit, err := loadFit(cmd.Context(), cfg, &FitOptions{Database: opts.Database, FitID: opts.FitID})
	if err != nil {
		return out.Fail("failed to load fit", err)
	}

	tol := opts.Tol
	if tol <= 0 {
		tol = cfg.IntTol
	}
	iopts := *spec.Integration
	iopts.Logger = slog.Default()
	f, err := fit.Integrand(iopts.Names())
	if err != nil {
		return out.Fail("failed to build integrand", err)
	}
	arms, diags, err := integration.IntegrationError(cmd.Context(), net, iopts, f, opts.Reps, tol)
	if err != nil {
		return out.Fail("integration error estimate failed", err)
	}

	res := DiagnoseResult{FitID: fit.ID, Tol: tol, Arms: arms}
	for _, a := range arms {
		if a.Flagged {
			res.Flagged++
		}
	}
	if err := out.Result(res, diags, func(w io.Writer) error {
		rows := make([][]string, len(arms))
		for i, a := range arms {
			flag := ""
			if a.Flagged {
				flag = "*"
			}
			rows[i] = []string{a.Study, a.Treatment, strconv.Itoa(a.N), fmt.Sprintf("%.2e", a.Estimate), flag}
		}
		if err := writeTable(w, []string{"study", "treatment", "n", "error", "flagged"}, rows); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%d of %d arms exceed tolerance %g\n", res.Flagged, len(arms), tol)
		return nil
	}); err != nil {
		return err
	}
	if res.Flagged > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d arm(s) exceed integration tolerance", res.Flagged))
	}
	return nil
}
