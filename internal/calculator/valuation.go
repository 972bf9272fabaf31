package calculator

import (
	"fmt"
	"math"
	"time"

	"BTCSentinel/internal/model"
)

// Genesis is the Bitcoin genesis block date.
var Genesis = time.Date(2009, 1, 3, 0, 0, 0, 0, time.UTC)

// DaysSinceGenesis returns whole days since Genesis, at least 1.
func DaysSinceGenesis(t time.Time) float64 {
	d := math.Floor(t.UTC().Sub(Genesis).Hours() / 24)
	if d < 1 {
		return 1
	}
	return d
}

// PowerLaw is log10(price) = Intercept + Slope*log10(days since genesis).
type PowerLaw struct {
	Intercept float64 `yaml:"intercept" json:"intercept"`
	Slope     float64 `yaml:"slope" json:"slope"`
}

// DefaultPowerLaw is the long-run support fit.
var DefaultPowerLaw = PowerLaw{Intercept: -17.01467, Slope: 5.84}

// Price returns the model price at t.
func (p PowerLaw) Price(t time.Time) float64 {
	return math.Pow(10, p.Intercept+p.Slope*math.Log10(DaysSinceGenesis(t)))
}

// FitPowerLaw fits the log-log regression of close against days since genesis
// by ordinary least squares.
func FitPowerLaw(times []time.Time, closes []float64) (PowerLaw, error) {
	var n, sx, sy, sxx, sxy float64
	for i, c := range closes {
		if math.IsNaN(c) || c <= 0 {
			continue
		}
		x := math.Log10(DaysSinceGenesis(times[i]))
		y := math.Log10(c)
		n++
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if n < 2 || den == 0 {
		return PowerLaw{}, fmt.Errorf("fit power law on %d points: %w", int(n), model.ErrInsufficientHistory)
	}
	slope := (n*sxy - sx*sy) / den
	return PowerLaw{Intercept: (sy - slope*sx) / n, Slope: slope}, nil
}

// AHR999 = (price/SMA200) * (price/10^(2.68+0.00057*days)).
func AHR999(times []time.Time, closes, sma200 []float64) []float64 {
	out := nanSlice(len(closes))
	for i, c := range closes {
		if math.IsNaN(sma200[i]) || sma200[i] == 0 {
			continue
		}
		fair := math.Pow(10, 2.68+0.00057*DaysSinceGenesis(times[i]))
		out[i] = (c / sma200[i]) * (c / fair)
	}
	return out
}

// MVRVZ approximates the MVRV Z-score as (price - SMA200) / rolling-200 std.
func MVRVZ(closes, sma200, std200 []float64) []float64 {
	out := nanSlice(len(closes))
	for i, c := range closes {
		if math.IsNaN(sma200[i]) || math.IsNaN(std200[i]) || std200[i] == 0 {
			continue
		}
		out[i] = (c - sma200[i]) / std200[i]
	}
	return out
}

// PiCycleGap is (SMA111 / (2*SMA350) - 1) * 100.
func PiCycleGap(sma111, sma350 []float64) []float64 {
	out := nanSlice(len(sma111))
	for i := range sma111 {
		if math.IsNaN(sma111[i]) || math.IsNaN(sma350[i]) || sma350[i] == 0 {
			continue
		}
		out[i] = (sma111[i]/(2*sma350[i]) - 1) * 100
	}
	return out
}

// PowerLawSupport evaluates the model price at every timestamp.
func PowerLawSupport(times []time.Time, p PowerLaw) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = p.Price(t)
	}
	return out
}
