package swing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/model"
)

var day0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func frameFromCloses(closes []float64) *calculator.Frame {
	s := model.Series{Symbol: "BTCUSDT", Granularity: model.GranularityDay}
	for i, c := range closes {
		s.Bars = append(s.Bars, model.Bar{
			Time: day0.AddDate(0, 0, i), Open: c, High: c * 1.005, Low: c * 0.995, Close: c, Volume: 1,
		})
	}
	return calculator.Compute(s, calculator.Options{})
}

// vShape falls 0.1% a day for 150 bars then rises 0.1% a day.
func vShape() []float64 {
	closes := make([]float64, 300)
	closes[0] = 30000
	for i := 1; i < len(closes); i++ {
		if i <= 150 {
			closes[i] = closes[i-1] * 0.999
		} else {
			closes[i] = closes[i-1] * 1.001
		}
	}
	return closes
}

func zeros(n int) []float64 { return make([]float64, n) }

func scenarioParams() Params {
	p := DefaultParams()
	p.TrendWindow = 50
	return p
}

func TestEntrySignals_TrendReversal(t *testing.T) {
	f := frameFromCloses(vShape())
	sig, err := EntrySignals(f, zeros(f.Len()), scenarioParams())
	require.NoError(t, err)

	first := -1
	for i, ok := range sig {
		if ok {
			first = i
			break
		}
	}
	require.NotEqual(t, -1, first, "expected an entry after the turn")
	assert.GreaterOrEqual(t, first, 150)
	assert.LessOrEqual(t, first, 200)

	res, err := Backtest(f, zeros(f.Len()), scenarioParams())
	require.NoError(t, err)
	require.NotNil(t, res.Open, "uptrend position should still be open")
	assert.Equal(t, f.Times[first], res.Open.EntryTime)
	assert.Empty(t, res.Trades)
	assert.Greater(t, res.ROI, 0.0)
}

func TestEntrySignals_FundingPolicy(t *testing.T) {
	f := frameFromCloses(vShape())

	blocked, err := EntrySignals(f, nil, scenarioParams())
	require.NoError(t, err)
	assert.NotContains(t, blocked, true, "unknown funding must block entries")

	p := scenarioParams()
	p.FundingPolicy = FundingMissingPasses
	passed, err := EntrySignals(f, nil, p)
	require.NoError(t, err)
	withZeros, err := EntrySignals(f, zeros(f.Len()), scenarioParams())
	require.NoError(t, err)
	assert.Equal(t, withZeros, passed)

	crowded := make([]float64, f.Len())
	for i := range crowded {
		crowded[i] = 0.001
	}
	hot, err := EntrySignals(f, crowded, scenarioParams())
	require.NoError(t, err)
	assert.NotContains(t, hot, true, "funding above the cap must block entries")
}

// forced builds rule columns where every filter passes, so only the exit
// column decides.
func forced(closes, exit []float64) *series {
	n := len(closes)
	s := &series{close: closes, exit: exit}
	for i := 0; i < n; i++ {
		s.times = append(s.times, day0.AddDate(0, 0, i))
		s.trend = append(s.trend, 0)
		s.short = append(s.short, closes[i])
		s.rsi = append(s.rsi, 100)
		s.macd = append(s.macd, 1)
		s.signal = append(s.signal, 0)
		s.adx = append(s.adx, 100)
		s.funding = append(s.funding, 0)
	}
	return s
}

func TestRun_ClosedTrade(t *testing.T) {
	p := DefaultParams()
	p.FeeRate, p.Slippage = 0, 0
	s := forced([]float64{100, 110, 121, 105}, []float64{0, 0, 0, 200})

	res := run(s, p)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 105.0, tr.ExitPrice)
	assert.InDelta(t, 500, tr.PnL, 1e-9)
	assert.Equal(t, model.ExitTrendBreak, tr.ExitReason)
	assert.Nil(t, res.Open)
	assert.InDelta(t, 0.05, res.ROI, 1e-12)
	assert.Equal(t, 1.0, res.WinRate)
	assert.InDelta(t, (12100.0-10500.0)/12100.0, res.MaxDrawdown, 1e-12)
}

func TestRun_FeesAndSlippageBothLegs(t *testing.T) {
	p := DefaultParams()
	p.FeeRate, p.Slippage = 0.001, 0.0005
	s := forced([]float64{100, 105}, []float64{0, 200})

	res := run(s, p)
	require.Len(t, res.Trades, 1)
	units := (10000 / 1.001) / (100 * 1.0005)
	want := units*105*0.9995*0.999 - 10000
	assert.InDelta(t, want, res.Trades[0].PnL, 1e-6)
	assert.InDelta(t, 10000+want, res.FinalEquity, 1e-6)
}

func TestRun_OpenPositionMarkedToMarket(t *testing.T) {
	p := DefaultParams()
	p.FeeRate, p.Slippage = 0, 0
	s := forced([]float64{100, 120}, []float64{0, 0})

	res := run(s, p)
	assert.Empty(t, res.Trades)
	require.NotNil(t, res.Open)
	assert.Equal(t, 120.0, res.Open.MarkPrice)
	assert.InDelta(t, 12000, res.FinalEquity, 1e-9)
	assert.InDelta(t, 0.2, res.ROI, 1e-12)
}

func TestOptimize_Deterministic(t *testing.T) {
	f := frameFromCloses(vShape())
	g := Grid{
		BandLow:  []float64{0, 1},
		BandHigh: []float64{1, 2},
		RSIMin:   []float64{45, 55},
		ADXMin:   []float64{15, 25},
	}
	a, err := Optimize(f, zeros(f.Len()), scenarioParams(), g, ObjectiveROI)
	require.NoError(t, err)
	b, err := Optimize(f, zeros(f.Len()), scenarioParams(), g, ObjectiveROI)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 3*2*2, "band pairs with low >= high are skipped")
	for i := 1; i < len(a); i++ {
		assert.GreaterOrEqual(t, a[i-1].Result.ROI, a[i].Result.ROI)
	}
}

func TestOptimize_TiesKeepEnumerationOrder(t *testing.T) {
	f := frameFromCloses(vShape())
	g := Grid{
		BandLow:  []float64{0, 0.5},
		BandHigh: []float64{1.5},
		RSIMin:   []float64{50, 60},
		ADXMin:   []float64{20},
	}
	// Missing funding blocks every entry, so every combination ties.
	res, err := Optimize(f, nil, scenarioParams(), g, ObjectiveWinRate)
	require.NoError(t, err)
	require.Len(t, res, 4)
	want := [][2]float64{{0, 50}, {0, 60}, {0.5, 50}, {0.5, 60}}
	for i, w := range want {
		assert.Equal(t, w[0], res[i].BandLow)
		assert.Equal(t, w[1], res[i].RSIMin)
	}
}

func TestOptimize_Errors(t *testing.T) {
	f := frameFromCloses(vShape())
	_, err := Optimize(f, nil, scenarioParams(), DefaultGrid(), Objective("sharpe"))
	assert.Error(t, err)

	_, err = Optimize(f, nil, scenarioParams(), Grid{BandLow: []float64{2}, BandHigh: []float64{1}, RSIMin: []float64{50}, ADXMin: []float64{20}}, ObjectiveROI)
	assert.ErrorIs(t, err, errEmptyGrid)
}

func TestSize(t *testing.T) {
	plan, err := Size(100, 95, 10000, 0.02, 3)
	require.NoError(t, err)
	assert.InDelta(t, 40, plan.Units, 1e-9)
	assert.InDelta(t, 4000, plan.Notional, 1e-9)
	assert.InDelta(t, 0.4, plan.Leverage, 1e-12)
	assert.False(t, plan.Capped)

	capped, err := Size(100, 99.5, 10000, 0.02, 2)
	require.NoError(t, err)
	assert.True(t, capped.Capped)
	assert.InDelta(t, 20000, capped.Notional, 1e-9)
	assert.InDelta(t, 200, capped.Units, 1e-9)
	assert.InDelta(t, 2, capped.Leverage, 1e-12)

	_, err = Size(100, 95, 10000, 0.1, 2)
	assert.Error(t, err)
	_, err = Size(95, 100, 10000, 0.02, 2)
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.BandLow, p.BandHigh = 2, 1
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.ExitMA = "EMA50"
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.FundingPolicy = "ignore"
	assert.Error(t, p.Validate())
}

func TestSharpeAndDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, sharpe([]float64{1, 1, 1, 1}, 365))
	assert.Greater(t, sharpe([]float64{100, 101, 103, 104, 106}, 365), 0.0)
	assert.InDelta(t, 0.5, maxDrawdown([]float64{100, 200, 100, 150}), 1e-12)
	assert.False(t, math.IsNaN(sharpe(nil, 365)))
}
