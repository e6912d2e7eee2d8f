package cli

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jSoboil/multinma/internal/posterior"
)

// RanksOptions holds flags for the ranks and rankprobs commands.
type RanksOptions struct {
	FitOptions
	LowerBetter bool
	Cumulative  bool
}

// NewRanksCommand creates the ranks command.
func NewRanksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RanksOptions{}

	cmd := &cobra.Command{
		Use:   "ranks",
		Short: "Posterior treatment ranks",
		Long: `Summarise the posterior rank of each treatment in each target population.
Rank 1 is the largest effect unless --lower-better is given.

Example:
  mlnmr ranks --fit latest --lower-better`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRanks(rootOpts, opts, cmd)
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.LowerBetter, "lower-better", false, "rank smaller effects first")
	return cmd
}

// NewRankProbsCommand creates the rankprobs command.
func NewRankProbsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RanksOptions{}

	cmd := &cobra.Command{
		Use:   "rankprobs",
		Short: "Posterior rank probabilities",
		Long: `Report the probability that each treatment takes each rank in each target
population. With --cumulative the probabilities are of achieving that rank
or better.

Example:
  mlnmr rankprobs --fit latest --lower-better --cumulative`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRankProbs(rootOpts, opts, cmd)
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.LowerBetter, "lower-better", false, "rank smaller effects first")
	cmd.Flags().BoolVar(&opts.Cumulative, "cumulative", false, "report cumulative rank probabilities")
	return cmd
}

func (o *RanksOptions) rankOptions(cmd *cobra.Command, rootOpts *RootOptions) (*posterior.Fit, posterior.RankOptions, error) {
	cfg, err := rootOpts.settings()
	if err != nil {
		return nil, posterior.RankOptions{}, err
	}
	fit, err := loadFit(cmd.Context(), cfg, &o.FitOptions)
	if err != nil {
		return nil, posterior.RankOptions{}, err
	}
	pops, _, err := loadTargets(&o.FitOptions)
	if err != nil {
		return nil, posterior.RankOptions{}, err
	}
	return fit, posterior.RankOptions{
		Populations: pops,
		LowerBetter: o.LowerBetter,
		Cumulative:  o.Cumulative,
		Workers:     cfg.Workers,
	}, nil
}

func runRanks(rootOpts *RootOptions, opts *RanksOptions, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)
	fit, ro, err := opts.rankOptions(cmd, rootOpts)
	if err != nil {
		return out.Fail("failed to load inputs", err)
	}
	ranks, err := fit.Ranks(cmd.Context(), ro)
	if err != nil {
		return out.Fail("ranking failed", err)
	}

	return out.Result(ranks, nil, func(w io.Writer) error {
		named := false
		for _, r := range ranks {
			named = named || r.Population != ""
		}
		header := append([]string{"treatment"}, summaryHeader...)
		if named {
			header = append([]string{"population"}, header...)
		}
		rows := make([][]string, len(ranks))
		for i, r := range ranks {
			row := append([]string{r.Treatment}, summaryCells(r.Summary)...)
			if named {
				row = append([]string{r.Population}, row...)
			}
			rows[i] = row
		}
		return writeTable(w, header, rows)
	})
}

func runRankProbs(rootOpts *RootOptions, opts *RanksOptions, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)
	fit, ro, err := opts.rankOptions(cmd, rootOpts)
	if err != nil {
		return out.Fail("failed to load inputs", err)
	}
	probs, err := fit.RankProbs(cmd.Context(), ro)
	if err != nil {
		return out.Fail("ranking failed", err)
	}

	return out.Result(probs, nil, func(w io.Writer) error {
		named := false
		for _, p := range probs {
			named = named || p.Population != ""
		}
		header := []string{"treatment"}
		if named {
			header = append([]string{"population"}, header...)
		}
		if len(probs) > 0 {
			for k := range probs[0].Probs {
				header = append(header, "p[rank "+strconv.Itoa(k+1)+"]")
			}
		}
		rows := make([][]string, len(probs))
		for i, p := range probs {
			row := []string{p.Treatment}
			if named {
				row = append([]string{p.Population}, row...)
			}
			for _, v := range p.Probs {
				row = append(row, num(v))
			}
			rows[i] = row
		}
		return writeTable(w, header, rows)
	})
}
