package option

import (
	"fmt"
	"math"
	"time"

	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/model"
)

// Ladder tuning.
const (
	LadderMinAPY = 0.05
	minSigma     = 0.3
	// above this ATR/close ratio the strike buffers widen by 20%
	highVolATR = 0.02
)

var (
	ladderMultiples = []float64{1, 2, 3.5}
	ladderWeights   = []float64{0.3, 0.3, 0.4}
)

// Sigma annualizes ATR/close, floored at 30%.
func Sigma(atr, price float64) float64 {
	return math.Max(atr/price*math.Sqrt(daysPerYear), minSigma)
}

// Ladder suggests three strikes for a product from the last bar of the frame.
// Sell-high strikes step up from max(upper band, R1); buy-low strikes step
// down from min(lower band, S1).
func Ladder(f *calculator.Frame, product model.ProductType, rate model.RateQuote, days float64) ([]model.LadderRung, error) {
	if f.Len() == 0 {
		return nil, fmt.Errorf("ladder on empty frame: %w", model.ErrInsufficientHistory)
	}
	return LadderAt(f, f.Len()-1, product, rate, days)
}

// LadderAt builds the ladder as of bar i.
func LadderAt(f *calculator.Frame, i int, product model.ProductType, rate model.RateQuote, days float64) ([]model.LadderRung, error) {
	if i < 0 || i >= f.Len() {
		return nil, fmt.Errorf("ladder bar %d outside frame of %d: %w", i, f.Len(), model.ErrInsufficientHistory)
	}
	spot, atr := f.Close[i], f.ATR14[i]
	upper, lower := f.Bands.Upper[i], f.Bands.Lower[i]
	if math.IsNaN(atr) || math.IsNaN(upper) || math.IsNaN(lower) {
		return nil, fmt.Errorf("ladder needs ATR and bands: %w", model.ErrInsufficientHistory)
	}
	volFactor := 1.0
	if atr/spot > highVolATR {
		volFactor = 1.2
	}
	sigma := Sigma(atr, spot)

	strikes := make([]float64, len(ladderMultiples))
	switch product {
	case model.SellHigh:
		base := upper
		if r1 := f.Pivots.R1[i]; r1 > base {
			base = r1
		}
		for k, m := range ladderMultiples {
			s := base + atr*m*volFactor
			switch k {
			case 0:
				s = math.Max(s, spot*1.015)
			case 1:
				s = math.Max(s, strikes[0]*1.01)
				if r2 := f.Pivots.R2[i]; !math.IsNaN(r2) {
					s = math.Max(s, r2)
				}
			default:
				s = math.Max(s, strikes[k-1]*1.01)
			}
			strikes[k] = s
		}
	case model.BuyLow:
		base := lower
		if s1 := f.Pivots.S1[i]; s1 < base {
			base = s1
		}
		for k, m := range ladderMultiples {
			s := base - atr*m*volFactor
			switch k {
			case 0:
				s = math.Min(s, spot*0.985)
			case 1:
				s = math.Min(s, strikes[0]*0.99)
				if s2 := f.Pivots.S2[i]; !math.IsNaN(s2) {
					s = math.Min(s, s2)
				}
			default:
				s = math.Min(s, strikes[k-1]*0.99)
			}
			strikes[k] = s
		}
	default:
		return nil, fmt.Errorf("unknown product %q", product)
	}

	rungs := make([]model.LadderRung, 0, len(strikes))
	for k, strike := range strikes {
		if strike <= 0 {
			return nil, fmt.Errorf("strike %d non-positive (%.2f)", k+1, strike)
		}
		q, err := Quote(product, spot, strike, days, sigma, rate, LadderMinAPY)
		if err != nil {
			return nil, err
		}
		dist := (strike/spot - 1) * 100
		if product == model.BuyLow {
			dist = (spot/strike - 1) * 100
		}
		rungs = append(rungs, model.LadderRung{Tier: k + 1, Quote: q, Weight: ladderWeights[k], Distance: dist})
	}
	return rungs, nil
}

// Suggestion is the current ladder advice with the filters that shaped it.
type Suggestion struct {
	Time    time.Time          `json:"time"`
	Close   float64            `json:"close"`
	Sell    []model.LadderRung `json:"sell"`
	Buy     []model.LadderRung `json:"buy"`
	Reasons []string           `json:"reasons"`
}

// Suggest builds both ladders for the last bar. Weekends suppress both, and a
// short EMA below the longer SMA suppresses buy-low.
func Suggest(f *calculator.Frame, rate model.RateQuote, days float64) (s Suggestion, err error) {
	n := f.Len()
	if n == 0 {
		return Suggestion{}, fmt.Errorf("suggest on empty frame: %w", model.ErrInsufficientHistory)
	}
	i := n - 1
	s = Suggestion{Time: f.Times[i], Close: f.Close[i]}
	defer func() { s.Reasons = append(s.Reasons, readings(f, i)...) }()

	if wd := f.Times[i].UTC().Weekday(); wd == time.Saturday || wd == time.Sunday {
		s.Reasons = append(s.Reasons, "weekend: thin liquidity, no new products")
		return s, nil
	}
	sell, err := Ladder(f, model.SellHigh, rate, days)
	if err != nil {
		return s, err
	}
	s.Sell = sell

	if f.EMA20[i] < f.SMA50[i] {
		s.Reasons = append(s.Reasons, fmt.Sprintf("trend: EMA20 %.0f below SMA50 %.0f, buy-low disabled", f.EMA20[i], f.SMA50[i]))
		return s, nil
	}
	buy, err := Ladder(f, model.BuyLow, rate, days)
	if err != nil {
		return s, err
	}
	s.Buy = buy
	return s, nil
}

// readings lists the momentum context shown next to a suggestion. Columns
// still inside their warmup are left out.
func readings(f *calculator.Frame, i int) []string {
	var out []string
	add := func(v float64, format string, args ...interface{}) {
		if !math.IsNaN(v) {
			out = append(out, fmt.Sprintf(format, args...))
		}
	}
	add(f.RSI14[i], "RSI14 %.1f", f.RSI14[i])
	add(f.KDJ.J[i], "KDJ J %.1f", f.KDJ.J[i])
	if adx := f.ADX.ADX[i]; !math.IsNaN(adx) {
		regime := "ranging"
		if adx > 25 {
			regime = "trending"
		}
		out = append(out, fmt.Sprintf("ADX %.1f (%s)", adx, regime))
	}
	if slope := f.SMA200Slope[i]; !math.IsNaN(slope) {
		dir := "falling"
		if slope > 0 {
			dir = "rising"
		}
		out = append(out, fmt.Sprintf("SMA200 %s (%+.0f over %d days)", dir, slope, calculator.SlopeLag))
	}
	return out
}
