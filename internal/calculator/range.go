package calculator

import (
	"math"
	"time"

	"BTCSentinel/internal/model"
)

// BandResult holds Bollinger bands.
type BandResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes SMA(period) ± k population standard deviations.
func Bollinger(closes []float64, period int, k float64) BandResult {
	mid := SMA(closes, period)
	res := BandResult{Upper: nanSlice(len(closes)), Middle: mid, Lower: nanSlice(len(closes))}
	for i := range closes {
		if math.IsNaN(mid[i]) {
			continue
		}
		ss := 0.0
		for _, v := range closes[i-period+1 : i+1] {
			ss += (v - mid[i]) * (v - mid[i])
		}
		sd := math.Sqrt(ss / float64(period))
		res.Upper[i] = mid[i] + k*sd
		res.Lower[i] = mid[i] - k*sd
	}
	return res
}

// PivotResult holds classic floor-trader pivots derived from the prior bar.
type PivotResult struct {
	P, R1, S1, R2, S2 []float64
}

// Pivots computes P=(H+L+C)/3 of the previous bar, R1=2P-L, S1=2P-H,
// R2=P+(H-L), S2=P-(H-L).
func Pivots(high, low, close []float64) PivotResult {
	n := len(close)
	res := PivotResult{P: nanSlice(n), R1: nanSlice(n), S1: nanSlice(n), R2: nanSlice(n), S2: nanSlice(n)}
	for i := 1; i < n; i++ {
		h, l, c := high[i-1], low[i-1], close[i-1]
		p := (h + l + c) / 3
		res.P[i] = p
		res.R1[i] = 2*p - l
		res.S1[i] = 2*p - h
		res.R2[i] = p + (h - l)
		res.S2[i] = p - (h - l)
	}
	return res
}

// HighestClose scans bars with from <= t < to and returns the highest close.
func HighestClose(bars []model.Bar, from, to time.Time) (float64, bool) {
	high := math.Inf(-1)
	found := false
	for _, b := range bars {
		if b.Time.Before(from) || !b.Time.Before(to) {
			continue
		}
		if b.Close > high {
			high = b.Close
			found = true
		}
	}
	return high, found
}

// CloseOnOrAfter returns the first close at or after t.
func CloseOnOrAfter(bars []model.Bar, t time.Time) (float64, bool) {
	for _, b := range bars {
		if !b.Time.Before(t) {
			return b.Close, true
		}
	}
	return 0, false
}
