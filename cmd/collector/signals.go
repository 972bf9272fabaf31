package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"BTCSentinel/internal/app"
	"BTCSentinel/internal/model"
	"BTCSentinel/internal/option"
	"BTCSentinel/internal/swing"
)

var (
	product       string
	ladderProduct string
	strike        float64
	days          float64
	recent        int
	dualTier      int
	dualCooldown  int
)

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Run the scoring, forecast, swing and option engines on demand",
	Long: `Run the signal engines against the resolved daily history.

Available subcommands:
  snapshot  - score the latest closed day
  forecast  - project the halving-cycle target
  backtest  - backtest the swing strategy with the configured params
  optimize  - grid-search the swing entry filters
  size      - Kelly position size at the latest close
  quote     - price one dual-investment strike
  ladder    - suggest a three-strike ladder
  dual      - backtest rolling dual-investment subscriptions
  aux       - latest print of every aux metric
  inflation - CPI year-over-year and its trend
  history   - score every day of the history
  corridor  - power-law corridor for the next year
  rate      - current discount rate and its source
  health    - venue health after one daily resolve
  recent    - recorded snapshots, newest first`,
}

func signalSub(use, short string, fn func(ctx context.Context, a *app.App) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), true, fn)
		},
	}
}

func parseProduct(s string) (model.ProductType, error) {
	switch p := model.ProductType(strings.ToUpper(s)); p {
	case model.SellHigh, model.BuyLow:
		return p, nil
	}
	return "", fmt.Errorf("product %q not one of %s, %s", s, model.SellHigh, model.BuyLow)
}

func init() {
	quoteCmd := signalSub("quote", "Price one strike", func(ctx context.Context, a *app.App) (interface{}, error) {
		p, err := parseProduct(product)
		if err != nil {
			return nil, err
		}
		return a.Pipeline.OptionQuote(ctx, p, strike, days)
	})
	quoteCmd.Flags().StringVar(&product, "product", string(model.SellHigh), "SELL_HIGH or BUY_LOW")
	quoteCmd.Flags().Float64Var(&strike, "strike", 0, "strike price")
	quoteCmd.Flags().Float64Var(&days, "days", 7, "tenor in days")
	_ = quoteCmd.MarkFlagRequired("strike")

	ladderCmd := signalSub("ladder", "Suggest strikes", func(ctx context.Context, a *app.App) (interface{}, error) {
		if ladderProduct == "" {
			return a.Pipeline.Suggest(ctx)
		}
		p, err := parseProduct(ladderProduct)
		if err != nil {
			return nil, err
		}
		return a.Pipeline.Ladder(ctx, p)
	})
	ladderCmd.Flags().StringVar(&ladderProduct, "product", "", "SELL_HIGH or BUY_LOW; both with filters when empty")

	dualCmd := signalSub("dual", "Dual-investment backtest", func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Pipeline.DualBacktest(ctx, option.BacktestParams{Tier: dualTier, CooldownDays: dualCooldown})
	})
	dualCmd.Flags().IntVar(&dualTier, "tier", option.DefaultBacktestParams.Tier, "ladder rung to subscribe (1-3)")
	dualCmd.Flags().IntVar(&dualCooldown, "cooldown", option.DefaultBacktestParams.CooldownDays, "idle days after each settlement")

	recentCmd := signalSub("recent", "Recorded snapshots", func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Pipeline.RecentScores(ctx, recent)
	})
	recentCmd.Flags().IntVar(&recent, "n", 10, "number of snapshots")

	signalCmd.AddCommand(
		signalSub("snapshot", "Score the latest closed day", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Pipeline.Snapshot(ctx)
		}),
		signalSub("forecast", "Season forecast", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Pipeline.Forecast(ctx)
		}),
		signalSub("backtest", "Swing backtest", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Pipeline.Backtest(ctx, a.Config.Swing)
		}),
		signalSub("optimize", "Swing grid search", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Pipeline.Optimize(ctx, a.Config.Swing, a.Config.Grid, swing.Objective(a.Config.Objective))
		}),
		signalSub("size", "Kelly position size", func(ctx context.Context, a *app.App) (interface{}, error) {
			k := a.Config.Kelly
			return a.Pipeline.PositionSize(ctx, k.Equity, k.Risk, k.MaxLeverage)
		}),
		signalSub("aux", "Latest aux metrics", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Pipeline.AuxLatest(ctx)
		}),
		signalSub("inflation", "CPI year-over-year", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Pipeline.Inflation(ctx)
		}),
		signalSub("history", "Score every day of the history", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Pipeline.History(ctx)
		}),
		signalSub("corridor", "Power-law corridor for the next year", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Pipeline.Corridor(365), nil
		}),
		signalSub("rate", "Current discount rate", func(ctx context.Context, a *app.App) (interface{}, error) {
			return a.Pipeline.Rate(ctx), nil
		}),
		signalSub("health", "Venue health after one daily resolve", func(ctx context.Context, a *app.App) (interface{}, error) {
			_, err := a.Pipeline.DailySeries(ctx)
			return a.Pipeline.SourceHealth(), err
		}),
		quoteCmd,
		ladderCmd,
		dualCmd,
		recentCmd,
	)
}
