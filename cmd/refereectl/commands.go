package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/refbench/internal/seed"
	"github.com/okian/refbench/pkg/logger"
)

func (c *cli) seedCmd() *cobra.Command {
	var (
		referees int
		rngSeed  uint64
		workers  int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write synthetic referees and review histories into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sum, err := seed.New(
				seed.WithReferees(referees),
				seed.WithSeed(rngSeed),
				seed.WithWorkers(workers),
				seed.WithLogger(logger.Get().Named("seed")),
			).Seed(cmd.Context(), c.svc.Store())
			if err != nil {
				return err
			}
			return c.print(sum)
		},
	}
	cmd.Flags().IntVar(&referees, "referees", 50, "number of referees to generate")
	cmd.Flags().Uint64Var(&rngSeed, "seed", 1, "random seed; equal seeds give equal datasets")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent writers")
	return cmd
}

func (c *cli) metricsCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "metrics <referee-id>",
		Short: "Print a referee's metrics snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.svc.GetMetrics(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			return c.print(snap)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "recompute even when the cached snapshot is fresh")
	return cmd
}

func (c *cli) trendCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "trend <referee-id>",
		Short: "Print a referee's daily history and trend direction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trend, err := c.svc.GetTrend(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}
			return c.print(trend)
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "window in days")
	return cmd
}

func (c *cli) rankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank <referee-id>",
		Short: "Print a referee's percentile ranks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rank, err := c.svc.Rank(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(rank)
		},
	}
}

func (c *cli) peersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers <referee-id>",
		Short: "Print a referee's peer group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peers, err := c.svc.FindPeers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(peers)
		},
	}
}

func (c *cli) compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <referee-id>",
		Short: "Print a referee's peer, field and journal comparison",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmp, err := c.svc.PeerComparison(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmp)
		},
	}
}

func (c *cli) topCmd() *cobra.Command {
	var (
		limit    int
		category string
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Print the top performers in a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			top, err := c.svc.TopPerformers(cmd.Context(), limit, category)
			if err != nil {
				return err
			}
			return c.print(top)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of referees")
	cmd.Flags().StringVar(&category, "category", "overall", "speed, quality, reliability, expertise or overall")
	return cmd
}

func (c *cli) distributionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distribution <metric>",
		Short: "Print the population distribution of one score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dist, err := c.svc.Distribution(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(dist)
		},
	}
}

func (c *cli) benchmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Journal and expertise benchmarks",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "journal <journal-id>",
			Short: "Print a journal benchmark",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rec, err := c.svc.BenchmarkByJournal(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(rec)
			},
		},
		&cobra.Command{
			Use:   "expertise <area>",
			Short: "Print an expertise-area benchmark",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rec, err := c.svc.BenchmarkByExpertise(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(rec)
			},
		},
		&cobra.Command{
			Use:   "invalidate [category]",
			Short: "Drop one cached benchmark, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				category := ""
				if len(args) == 1 {
					category = args[0]
				}
				return c.svc.InvalidateBenchmark(cmd.Context(), category)
			},
		},
	)
	return cmd
}
