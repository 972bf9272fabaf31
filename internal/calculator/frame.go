package calculator

import (
	"time"

	"BTCSentinel/internal/model"
)

// Lookback windows of the valuation indicators, in daily bars.
const (
	WindowSMA200  = 200
	WindowPiShort = 111
	WindowPiLong  = 350
	WindowPuell   = 365
	WindowMayer   = 730
	Window200W    = 1400

	SlopeLag = 20
)

// Frame is a daily series with every indicator column aligned to its bars.
// Columns hold NaN wherever their lookback is not yet satisfied.
type Frame struct {
	Series model.Series
	Times  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64

	EMA20   []float64
	SMA50   []float64
	SMA100  []float64
	SMA200  []float64
	SMA111  []float64
	SMA350  []float64
	SMA365  []float64
	SMA730  []float64
	SMA1400 []float64
	Std200  []float64

	// SMA200Slope is the change of SMA200 over SlopeLag bars.
	SMA200Slope []float64

	RSI14      []float64
	RSIWeekly  []float64
	RSIMonthly []float64
	MACD       MACDResult
	ADX        ADXResult
	KDJ        KDJResult
	ATR14      []float64
	Bands      BandResult
	Pivots     PivotResult

	AHR999        []float64
	MVRVZ         []float64
	PiGap         []float64
	SMA200WRatio  []float64
	Puell         []float64
	PowerLaw      PowerLaw
	PLSupport     []float64
	PowerLawRatio []float64
	Mayer         []float64
}

// Options tunes Compute.
type Options struct {
	PowerLaw PowerLaw
}

// Compute derives every indicator column from a daily series.
func Compute(s model.Series, opts Options) *Frame {
	pl := opts.PowerLaw
	if pl == (PowerLaw{}) {
		pl = DefaultPowerLaw
	}
	f := &Frame{
		Series:   s,
		Times:    s.Times(),
		High:     s.Highs(),
		Low:      s.Lows(),
		Close:    s.Closes(),
		PowerLaw: pl,
	}
	f.Open = make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		f.Open[i] = b.Open
	}
	c := f.Close

	f.EMA20 = EMA(c, 20)
	f.SMA50 = SMA(c, 50)
	f.SMA100 = SMA(c, 100)
	f.SMA200 = SMA(c, WindowSMA200)
	f.SMA111 = SMA(c, WindowPiShort)
	f.SMA350 = SMA(c, WindowPiLong)
	f.SMA365 = SMA(c, WindowPuell)
	f.SMA730 = SMA(c, WindowMayer)
	f.SMA1400 = SMA(c, Window200W)
	f.Std200 = RollingStd(c, WindowSMA200)
	f.SMA200Slope = Diff(f.SMA200, SlopeLag)

	f.RSI14 = RSI(c, 14)
	f.RSIWeekly = PeriodicRSI(f.Times, c, WeekKey, 14)
	f.RSIMonthly = PeriodicRSI(f.Times, c, MonthKey, 14)
	f.MACD = MACD(c, 12, 26, 9)
	f.ADX = ADX(f.High, f.Low, c, 14)
	f.ATR14 = ATR(f.High, f.Low, c, 14)
	f.KDJ = KDJ(f.High, f.Low, c, 9, 3)
	f.Bands = Bollinger(c, 20, 2)
	f.Pivots = Pivots(f.High, f.Low, c)

	f.AHR999 = AHR999(f.Times, c, f.SMA200)
	f.MVRVZ = MVRVZ(c, f.SMA200, f.Std200)
	f.PiGap = PiCycleGap(f.SMA111, f.SMA350)
	f.SMA200WRatio = Ratio(c, f.SMA1400)
	f.Puell = Ratio(c, f.SMA365)
	f.PLSupport = PowerLawSupport(f.Times, pl)
	f.PowerLawRatio = Ratio(c, f.PLSupport)
	f.Mayer = Ratio(c, f.SMA730)
	return f
}

// Len is the number of bars.
func (f *Frame) Len() int { return len(f.Close) }

// Row returns the valuation indicators at bar i.
func (f *Frame) Row(i int) model.IndicatorRow {
	return model.IndicatorRow{
		Time:     f.Times[i],
		Close:    f.Close[i],
		AHR999:   f.AHR999[i],
		MVRVZ:    f.MVRVZ[i],
		PiGap:    f.PiGap[i],
		SMA200W:  f.SMA200WRatio[i],
		Puell:    f.Puell[i],
		RSIM:     f.RSIMonthly[i],
		PowerLaw: f.PowerLawRatio[i],
		Mayer:    f.Mayer[i],
	}
}

// Latest returns the row of the last bar.
func (f *Frame) Latest() (model.IndicatorRow, bool) {
	if f.Len() == 0 {
		return model.IndicatorRow{}, false
	}
	return f.Row(f.Len() - 1), true
}
