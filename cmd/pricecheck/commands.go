package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pricelens/backend/config"
	"github.com/pricelens/backend/internal/app"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/observability"
	"github.com/spf13/cobra"
)

// priceFinder is what lookup needs from the engine
type priceFinder interface {
	FindBestPrice(ctx context.Context, req domain.PriceRequest) *domain.PriceResult
}

// engineFactory builds the engine; replaced in tests
var engineFactory = func(verbose bool) (priceFinder, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	} else if level == "info" {
		level = "warn"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: "console",
		Output: os.Stderr,
	})

	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a.Engine, a.Close, nil
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "pricecheck",
		Short:         "Replacement-cost price lookups from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine decisions to stderr")
	root.AddCommand(newLookupCmd(&verbose))
	return root
}

func newLookupCmd(verbose *bool) *cobra.Command {
	var (
		target    float64
		tolerance float64
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "lookup <description>",
		Short: "Find the best replacement price for an item description",
		Example: `  pricecheck lookup "KitchenAid Artisan stand mixer 5 qt" --target 300 --tolerance 15
  pricecheck lookup "large plastic storage bin"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.PriceRequest{Query: strings.Join(args, " ")}
			if cmd.Flags().Changed("target") {
				req.TargetPrice = &target
			}
			if cmd.Flags().Changed("tolerance") {
				req.TolerancePercent = &tolerance
			}

			engine, closeFn, err := engineFactory(*verbose)
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runLookup(ctx, engine, req, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Float64VarP(&target, "target", "t", 0, "target price in USD")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "tolerance percent around the target (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Second, "overall lookup deadline")
	return cmd
}

func runLookup(ctx context.Context, engine priceFinder, req domain.PriceRequest, out io.Writer) error {
	result := engine.FindBestPrice(ctx, req)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
