package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	app "github.com/okian/refbench/internal/app"
	"github.com/okian/refbench/internal/config"
	"github.com/okian/refbench/pkg/logger"
)

// cli holds the flags and the service shared by every subcommand.
type cli struct {
	out    io.Writer
	errOut io.Writer

	configFile string
	driver     string
	dsn        string
	logFormat  string
	logLevel   string

	svc *app.Service
}

// run executes one command line and always releases the service.
func run(ctx context.Context, args []string, out, errOut io.Writer) error {
	c := &cli{out: out, errOut: errOut}
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if stopErr := c.stop(ctx); err == nil {
		err = stopErr
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "refereectl",
		Short: "Query referee metrics and benchmarks",
		Long: `refereectl opens the configured store and runs engine operations directly,
without the HTTP server. Results are printed as JSON on stdout; logs go to stderr.

Configuration follows the server: defaults, then the YAML file named by --config
or REFBENCH_CONFIG, then REFBENCH_* environment variables, then flags.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.start,
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "YAML config file")
	flags.StringVar(&c.driver, "driver", "", "store driver: memory, sqlite, mysql or postgres")
	flags.StringVar(&c.dsn, "dsn", "", "store DSN")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: text or json")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		c.seedCmd(),
		c.metricsCmd(),
		c.trendCmd(),
		c.rankCmd(),
		c.peersCmd(),
		c.compareCmd(),
		c.topCmd(),
		c.distributionCmd(),
		c.benchmarkCmd(),
	)
	return root
}

func (c *cli) start(cmd *cobra.Command, _ []string) error {
	path := c.configFile
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if c.driver != "" {
		cfg.DBDriver = c.driver
	}
	if c.dsn != "" {
		cfg.DBDSN = c.dsn
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	if err := logger.InitWith(c.errOut, cfg.LogFormat); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}

	c.svc = app.New(app.WithConfig(cfg), app.WithLogger(logger.Get().Named("refereectl")))
	return c.svc.Start(cmd.Context())
}

func (c *cli) stop(ctx context.Context) error {
	if c.svc == nil {
		return nil
	}
	err := c.svc.Stop(context.WithoutCancel(ctx))
	c.svc = nil
	return err
}

// print writes v as indented JSON.
func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
