package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"BTCSentinel/internal/app"
	"BTCSentinel/internal/config"
	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/model"
	"BTCSentinel/internal/source"
)

var (
	cfgPath  string
	year     int
	fromYear int
	fromDate string
	toDate   string
)

var rootCmd = &cobra.Command{
	Use:   "collector",
	Short: "Maintain the local per-year BTCUSDT 15m store",
	Long: `Append closed 15m bars from the venue chain into one SQLite file per year.

Examples:
  collector push
  collector refresh --year 2021
  collector backfill --from-year 2013
  collector coverage`,
	SilenceUsage: true,
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Append the latest closed bars to the current year",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Collector.AppendLatest(ctx)
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Resume one year from its latest stored bar",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Collector.RefreshYear(ctx, year)
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Refresh every year from --from-year through the current one",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Collector.BackfillFrom(ctx, fromYear)
		})
	},
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Report stored years, row count and time range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Store.Coverage(ctx)
		})
	},
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Print daily bars resampled from the local store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, err := time.Parse(time.DateOnly, fromDate)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to := time.Now().UTC()
		if toDate != "" {
			if to, err = time.Parse(time.DateOnly, toDate); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
		}
		return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Local.FetchBars(ctx, source.Request{
				Symbol:      a.Config.Symbol,
				Granularity: model.GranularityDay,
				Start:       from,
				End:         to,
			})
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to the YAML config")

	refreshCmd.Flags().IntVar(&year, "year", time.Now().UTC().Year(), "year to refresh")
	backfillCmd.Flags().IntVar(&fromYear, "from-year", 2017, "first year to backfill")
	_ = backfillCmd.MarkFlagRequired("from-year")
	dailyCmd.Flags().StringVar(&fromDate, "from", "2017-08-17", "first day (YYYY-MM-DD)")
	dailyCmd.Flags().StringVar(&toDate, "to", "", "last day (YYYY-MM-DD), default today")

	rootCmd.AddCommand(pushCmd, refreshCmd, backfillCmd, coverageCmd, dailyCmd, signalCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// withApp loads config, wires the application and prints fn's result as JSON.
func withApp(ctx context.Context, record bool, fn func(ctx context.Context, a *app.App) (interface{}, error)) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := logger.GetLogger().Configure(cfg.Log.Level, cfg.Log.Format, "stderr", 0); err != nil {
		return err
	}

	a, err := app.Build(cfg, record)
	if err != nil {
		return err
	}
	defer a.Close()

	out, runErr := fn(ctx, a)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return runErr
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.GetLogger().WithComponent("collector").WithError(err).Error("command failed")
		os.Exit(1)
	}
}
