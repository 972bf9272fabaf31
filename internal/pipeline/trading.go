package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"BTCSentinel/internal/cache"
	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/model"
	"BTCSentinel/internal/option"
	"BTCSentinel/internal/recorder"
	"BTCSentinel/internal/swing"
)

// auxLookback is how far back AuxLatest searches for each metric's last print.
const auxLookback = 62 * day

// Funding returns funding prints from `from` through now, cached under the
// aux key class. The source chain falls back from Binance to Bybit.
func (p *Pipeline) Funding(ctx context.Context, from time.Time) ([]model.AuxMetric, error) {
	return p.auxRange(ctx, model.MetricFundingRate, from.UTC(), p.now().UTC().Truncate(time.Hour))
}

func (p *Pipeline) auxRange(ctx context.Context, name string, from, to time.Time) ([]model.AuxMetric, error) {
	key := cache.Key{Class: cache.ClassAux, Symbol: p.opts.Symbol, From: from, To: to, Extra: name}
	return cache.GetOrLoad(ctx, p.cache, key, func(ctx context.Context) ([]model.AuxMetric, error) {
		ms, _, err := p.aux.Resolve(ctx, name, from, to)
		if err != nil {
			return nil, err
		}
		return model.SortMetrics(ms), nil
	})
}

// cpiLookback covers the 14 monthly prints Inflation needs.
const cpiLookback = 450 * day

// Inflation derives CPI year-over-year from the macro metric chain.
func (p *Pipeline) Inflation(ctx context.Context) (model.Inflation, error) {
	to := p.now().UTC().Truncate(time.Hour)
	ms, err := p.auxRange(ctx, model.MetricCPI, to.Add(-cpiLookback), to)
	if err != nil {
		return model.Inflation{}, err
	}
	return model.CPIYoY(ms)
}

// AuxLatest returns the most recent print of every registered aux metric.
// Metrics whose chains are exhausted are left out and logged.
func (p *Pipeline) AuxLatest(ctx context.Context) (map[string]model.AuxMetric, error) {
	to := p.now().UTC().Truncate(time.Hour)
	from := to.Add(-auxLookback)

	var (
		mu  sync.Mutex
		out = make(map[string]model.AuxMetric)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range p.aux.Names() {
		name := name
		g.Go(func() error {
			ms, err := p.auxRange(gctx, name, from, to)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.log.WithField("metric", name).WithError(err).Warn("aux metric unavailable")
				return nil
			}
			if len(ms) == 0 {
				return nil
			}
			mu.Lock()
			out[name] = ms[len(ms)-1]
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fundingFor aligns funding onto the frame's bar times. A failing funding
// chain yields an all-NaN column and the params' NaN policy decides.
func (p *Pipeline) fundingFor(ctx context.Context, f *calculator.Frame) []float64 {
	if f.Len() == 0 {
		return nil
	}
	from := f.Times[0]
	if p.opts.FundingLookback > 0 {
		if floor := p.now().UTC().Add(-p.opts.FundingLookback); floor.After(from) {
			from = floor
		}
	}
	ms, err := p.Funding(ctx, from)
	if err != nil {
		p.log.WithError(err).Warn("funding unavailable, backtest runs without it")
	}
	return swing.AlignFunding(f.Times, ms, model.NativeRefresh[model.MetricFundingRate]*3)
}

// Backtest runs the swing strategy over the daily history and records it.
func (p *Pipeline) Backtest(ctx context.Context, params swing.Params) (model.BacktestResult, error) {
	if err := params.Validate(); err != nil {
		return model.BacktestResult{}, err
	}
	f, err := p.frame(ctx)
	if err != nil {
		return model.BacktestResult{}, err
	}
	start := time.Now()
	res, err := swing.Backtest(f, p.fundingFor(ctx, f), params)
	if err != nil {
		return model.BacktestResult{}, err
	}
	logger.LogPerformanceEntry(p.log, "backtest", time.Since(start), logger.Fields{
		"bars":   res.Bars,
		"trades": len(res.Trades),
		"roi":    res.ROI,
	})
	p.recordBacktest(ctx, params, res)
	return res, nil
}

// Optimize grid-searches the entry filters and records the winner.
func (p *Pipeline) Optimize(ctx context.Context, base swing.Params, grid swing.Grid, obj swing.Objective) ([]model.GridResult, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	f, err := p.frame(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := swing.Optimize(f, p.fundingFor(ctx, f), base, grid, obj)
	if err != nil {
		return nil, err
	}
	logger.LogPerformanceEntry(p.log, "optimize", time.Since(start), logger.Fields{
		"combinations": len(results),
		"objective":    obj,
	})
	best := results[0]
	params := base
	params.BandLow, params.BandHigh = best.BandLow, best.BandHigh
	params.RSIMin, params.ADXMin = best.RSIMin, best.ADXMin
	p.recordBacktest(ctx, params, best.Result)
	return results, nil
}

func (p *Pipeline) recordBacktest(ctx context.Context, params swing.Params, res model.BacktestResult) {
	run := recorder.BacktestRun{ID: uuid.New().String(), At: p.now().UTC(), Params: params, Result: res}
	if err := p.recorder.RecordBacktest(ctx, run); err != nil {
		p.log.WithError(err).Error("record backtest failed")
	}
}

// PositionSize sizes an entry at the latest close with the stop one ATR away.
func (p *Pipeline) PositionSize(ctx context.Context, equity, risk, maxLeverage float64) (model.PositionPlan, error) {
	f, err := p.frame(ctx)
	if err != nil {
		return model.PositionPlan{}, err
	}
	spot, atr, err := lastSpot(f)
	if err != nil {
		return model.PositionPlan{}, err
	}
	return swing.Size(spot, spot-atr, equity, risk, maxLeverage)
}

// Rate resolves the current discount rate.
func (p *Pipeline) Rate(ctx context.Context) model.RateQuote {
	return p.rates.Resolve(ctx)
}

// OptionQuote prices one strike at the latest close with ATR volatility.
func (p *Pipeline) OptionQuote(ctx context.Context, product model.ProductType, strike, days float64) (model.OptionQuote, error) {
	f, err := p.frame(ctx)
	if err != nil {
		return model.OptionQuote{}, err
	}
	spot, atr, err := lastSpot(f)
	if err != nil {
		return model.OptionQuote{}, err
	}
	return option.Quote(product, spot, strike, days, option.Sigma(atr, spot), p.rates.Resolve(ctx), 0)
}

// Ladder suggests three strikes for product at the default tenor.
func (p *Pipeline) Ladder(ctx context.Context, product model.ProductType) ([]model.LadderRung, error) {
	f, err := p.frame(ctx)
	if err != nil {
		return nil, err
	}
	return option.Ladder(f, product, p.rates.Resolve(ctx), p.opts.OptionDays)
}

// Suggest builds both ladders with the weekend and trend filters applied.
func (p *Pipeline) Suggest(ctx context.Context) (option.Suggestion, error) {
	f, err := p.frame(ctx)
	if err != nil {
		return option.Suggestion{}, err
	}
	return option.Suggest(f, p.rates.Resolve(ctx), p.opts.OptionDays)
}

// DualBacktest rolls dual-investment products over the daily history.
func (p *Pipeline) DualBacktest(ctx context.Context, params option.BacktestParams) (model.DualBacktestResult, error) {
	f, err := p.frame(ctx)
	if err != nil {
		return model.DualBacktestResult{}, err
	}
	return option.Backtest(f, p.rates.Resolve(ctx), params)
}

func lastSpot(f *calculator.Frame) (spot, atr float64, err error) {
	n := f.Len()
	if n == 0 {
		return 0, 0, fmt.Errorf("empty frame: %w", model.ErrInsufficientHistory)
	}
	spot, atr = f.Close[n-1], f.ATR14[n-1]
	if math.IsNaN(atr) {
		return 0, 0, fmt.Errorf("ATR14 not yet defined: %w", model.ErrInsufficientHistory)
	}
	return spot, atr, nil
}
