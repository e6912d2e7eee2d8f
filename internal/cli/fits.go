package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jSoboil/multinma/internal/store"
)

// NewFitsCommand creates the fits command.
func NewFitsCommand(rootOpts *RootOptions) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:   "fits",
		Short: "List stored fits",
		Long: `List fits stored in the database, newest first.

Example:
  mlnmr fits --db fits.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFits(rootOpts, database, cmd)
		},
	}
	cmd.Flags().StringVar(&database, "db", "", "path to SQLite database (env MLNMR_DB)")
	return cmd
}

func runFits(rootOpts *RootOptions, database string, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)
	cfg, err := rootOpts.settings()
	if err != nil {
		return out.Fail("invalid configuration", err)
	}
	if database == "" {
		database = cfg.DB
	}
	if _, err := os.Stat(database); err != nil {
		return out.Fail("database not found", err)
	}
	st, err := store.Open(database)
	if err != nil {
		return out.Fail("failed to open database", err)
	}
	defer st.Close()

	fits, err := st.ListFits(cmd.Context())
	if err != nil {
		return out.Fail("failed to list fits", err)
	}
	return out.Result(fits, nil, func(w io.Writer) error {
		if len(fits) == 0 {
			fmt.Fprintln(w, "No fits stored.")
			return nil
		}
		rows := make([][]string, len(fits))
		for i, f := range fits {
			rows[i] = []string{f.ID, f.Sampler, strconv.Itoa(f.Draws), f.CreatedAt.UTC().Format(time.RFC3339), shortHash(f.ModelHash)}
		}
		return writeTable(w, []string{"id", "sampler", "draws", "created", "model"}, rows)
	})
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
