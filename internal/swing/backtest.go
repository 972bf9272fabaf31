package swing

import (
	"math"

	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/model"
)

// Backtest runs the rules over the frame with all-in sizing. Fees and slippage
// apply on both legs. A position still held on the last bar is marked to
// market and reported as Open.
func Backtest(f *calculator.Frame, funding []float64, p Params) (model.BacktestResult, error) {
	if err := p.Validate(); err != nil {
		return model.BacktestResult{}, err
	}
	s, err := newSeries(f, funding, p)
	if err != nil {
		return model.BacktestResult{}, err
	}
	return run(s, p), nil
}

func run(s *series, p Params) model.BacktestResult {
	n := len(s.close)
	res := model.BacktestResult{InitialEquity: p.InitialEquity, Bars: n, Trades: []model.Trade{}}
	equity := make([]float64, n)

	cash := p.InitialEquity
	var (
		inPos      bool
		units      float64
		entryPx    float64
		entryIdx   int
		costBefore float64
	)
	for i := 0; i < n; i++ {
		c := s.close[i]
		switch {
		case inPos && s.exitSignal(i):
			px := c * (1 - p.Slippage)
			proceeds := units * px
			cash = proceeds - proceeds*p.FeeRate
			pnl := cash - costBefore
			res.Trades = append(res.Trades, model.Trade{
				EntryTime:  s.times[entryIdx],
				EntryPrice: entryPx,
				ExitTime:   s.times[i],
				ExitPrice:  px,
				PnL:        pnl,
				PnLPct:     pnl / costBefore * 100,
				ExitReason: model.ExitTrendBreak,
			})
			inPos, units = false, 0
		case !inPos && s.entry(i, p):
			px := c * (1 + p.Slippage)
			notional := cash / (1 + p.FeeRate)
			costBefore = cash
			units = notional / px
			entryPx, entryIdx = px, i
			cash = 0
			inPos = true
		}
		if inPos {
			equity[i] = units * c
		} else {
			equity[i] = cash
		}
	}

	res.FinalEquity = p.InitialEquity
	if n > 0 {
		res.FinalEquity = equity[n-1]
	}
	if inPos {
		res.Open = &model.OpenPosition{
			EntryTime:  s.times[entryIdx],
			EntryPrice: entryPx,
			MarkPrice:  s.close[n-1],
			Units:      units,
		}
	}
	res.ROI = res.FinalEquity/p.InitialEquity - 1
	res.Sharpe = sharpe(equity, p.PeriodsPerYear)
	res.MaxDrawdown = maxDrawdown(equity)
	summarizeTrades(&res)
	return res
}

func summarizeTrades(res *model.BacktestResult) {
	var wins, losses int
	var gain, loss float64
	for _, t := range res.Trades {
		if t.PnL > 0 {
			wins++
			gain += t.PnL
		} else {
			losses++
			loss += t.PnL
		}
	}
	if len(res.Trades) > 0 {
		res.WinRate = float64(wins) / float64(len(res.Trades))
	}
	if wins > 0 {
		res.AvgProfit = gain / float64(wins)
	}
	if losses > 0 {
		res.AvgLoss = loss / float64(losses)
	}
}

// sharpe annualizes the mean per-bar return over its sample deviation.
func sharpe(equity []float64, periodsPerYear float64) float64 {
	if len(equity) < 3 || periodsPerYear <= 0 {
		return 0
	}
	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			continue
		}
		rets = append(rets, equity[i]/equity[i-1]-1)
	}
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	ss := 0.0
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(ss / float64(len(rets)-1))
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(periodsPerYear)
}

// maxDrawdown is the largest peak-to-trough fall as a fraction of the peak.
func maxDrawdown(equity []float64) float64 {
	peak, mdd := 0.0, 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak; dd > mdd {
				mdd = dd
			}
		}
	}
	return mdd
}
