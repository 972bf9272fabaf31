package option

import (
	"errors"
	"fmt"
	"math"
	"time"

	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/model"
)

// BacktestParams tunes the rolling product backtest.
type BacktestParams struct {
	Tier         int // ladder rung to subscribe, 1..3
	CooldownDays int // idle days after each settlement
}

func (p BacktestParams) withDefaults() BacktestParams {
	if p.Tier < 1 || p.Tier > len(ladderMultiples) {
		p.Tier = 1
	}
	if p.CooldownDays < 0 {
		p.CooldownDays = 0
	}
	return p
}

// DefaultBacktestParams subscribes the nearest rung and rests one day between
// positions.
var DefaultBacktestParams = BacktestParams{Tier: 1, CooldownDays: 1}

type position struct {
	product model.ProductType
	strike  float64
	apy     float64
	days    int
	end     time.Time
}

// Backtest rolls dual-currency products over a daily frame starting from one
// BTC. Holding BTC subscribes sell-high, holding USDT subscribes buy-low at the
// chosen ladder rung. A position settles at the close of the bar its term ends
// on: exercised products convert the principal plus yield at the strike,
// expired ones keep the asset and add the yield. No position opens on a
// weekend, inside the cooldown, or when its settlement would fall past the
// last bar. Friday subscriptions run three days.
func Backtest(f *calculator.Frame, rate model.RateQuote, p BacktestParams) (model.DualBacktestResult, error) {
	p = p.withDefaults()
	n := f.Len()
	if n < 2 {
		return model.DualBacktestResult{}, fmt.Errorf("backtest needs at least 2 bars, have %d: %w", n, model.ErrInsufficientHistory)
	}
	last := f.Times[n-1]
	res := model.DualBacktestResult{Start: f.Times[0], End: last}
	asset, balance := model.AssetBTC, 1.0
	var (
		open     *position
		cooldown time.Time
	)
	equity := func(i int) float64 {
		if asset == model.AssetBTC {
			return balance
		}
		return balance / f.Close[i]
	}

	for i := 0; i < n; i++ {
		t, spot := f.Times[i], f.Close[i]

		if open != nil && !t.Before(open.end) {
			total := balance * (1 + open.apy*float64(open.days)/daysPerYear)
			exercised := false
			switch open.product {
			case model.SellHigh:
				exercised = spot >= open.strike
				if exercised {
					asset, total = model.AssetUSDT, total*open.strike
				}
			case model.BuyLow:
				exercised = spot <= open.strike
				if exercised {
					asset, total = model.AssetBTC, total/open.strike
				}
			}
			balance = total
			if exercised {
				res.Exercised++
			}
			res.Events = append(res.Events, model.DualEvent{
				Action: "settle", Time: t, Product: open.product, Spot: spot, Strike: open.strike,
				Days: open.days, APY: open.apy, Exercised: exercised,
				Asset: asset, Balance: balance, EquityBTC: equity(i),
			})
			open = nil
			cooldown = t.AddDate(0, 0, p.CooldownDays)
		}

		if open != nil || t.Before(cooldown) {
			continue
		}
		wd := t.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			continue
		}
		days := 1
		if wd == time.Friday {
			days = 3
		}
		end := t.AddDate(0, 0, days)
		if end.After(last) {
			continue
		}
		product := model.SellHigh
		if asset == model.AssetUSDT {
			if f.EMA20[i] < f.SMA50[i] {
				continue
			}
			product = model.BuyLow
		}
		rungs, err := LadderAt(f, i, product, rate, float64(days))
		if errors.Is(err, model.ErrInsufficientHistory) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("ladder at %s: %w", t.Format(time.DateOnly), err)
		}
		strike := rungs[p.Tier-1].Quote.Strike
		q, err := Quote(product, spot, strike, float64(days), Sigma(f.ATR14[i], spot), rate, 0)
		if err != nil {
			return res, fmt.Errorf("quote at %s: %w", t.Format(time.DateOnly), err)
		}
		open = &position{product: product, strike: strike, apy: q.APY, days: days, end: end}
		res.Opened++
		res.Events = append(res.Events, model.DualEvent{
			Action: "open", Time: t, Product: product, Spot: spot, Strike: strike,
			Days: days, APY: q.APY, Asset: asset, Balance: balance, EquityBTC: equity(i),
		})
	}

	res.FinalAsset, res.Balance = asset, balance
	res.EquityBTC = equity(n - 1)
	res.ReturnBTC = res.EquityBTC - 1
	if f.Close[0] > 0 && !math.IsNaN(f.Close[0]) {
		res.HoldReturn = f.Close[n-1]/f.Close[0] - 1
	}
	return res, nil
}
