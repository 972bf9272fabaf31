package calculator

import "math"

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// MACD computes EMA(fast) - EMA(slow) and its EMA(signal).
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	f := EMA(closes, fast)
	s := EMA(closes, slow)
	line := nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(f[i]) && !math.IsNaN(s[i]) {
			line[i] = f[i] - s[i]
		}
	}
	sig := EMA(line, signal)
	hist := nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(line[i]) && !math.IsNaN(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return MACDResult{MACD: line, Signal: sig, Hist: hist}
}

// TrueRange is max(h-l, |h-prevClose|, |l-prevClose|). The first slot is NaN.
func TrueRange(high, low, close []float64) []float64 {
	out := nanSlice(len(close))
	for i := 1; i < len(close); i++ {
		pc := close[i-1]
		out[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-pc), math.Abs(low[i]-pc)))
	}
	return out
}

// wilderAverage smooths x with Wilder's method, seeded by the mean of the
// first `period` values starting at index start.
func wilderAverage(x []float64, start, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 || start+period > len(x) {
		return out
	}
	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += x[i]
	}
	prev := sum / float64(period)
	out[start+period-1] = prev
	for i := start + period; i < len(x); i++ {
		prev = (prev*float64(period-1) + x[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// ATR is the Wilder average of the true range. First value at index period.
func ATR(high, low, close []float64, period int) []float64 {
	return wilderAverage(TrueRange(high, low, close), 1, period)
}

// ADXResult holds ADX and the directional indicators.
type ADXResult struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX computes Wilder's average directional index. DI values start at index
// period, ADX at 2*period-1.
func ADX(high, low, close []float64, period int) ADXResult {
	n := len(close)
	res := ADXResult{ADX: nanSlice(n), PlusDI: nanSlice(n), MinusDI: nanSlice(n)}
	if period <= 0 || n <= period {
		return res
	}
	tr := TrueRange(high, low, close)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	var sTR, sPlus, sMinus float64
	for i := 1; i <= period; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}
	dx := nanSlice(n)
	p := float64(period)
	for i := period; i < n; i++ {
		if i > period {
			sTR = sTR - sTR/p + tr[i]
			sPlus = sPlus - sPlus/p + plusDM[i]
			sMinus = sMinus - sMinus/p + minusDM[i]
		}
		if sTR == 0 {
			continue
		}
		pdi := 100 * sPlus / sTR
		mdi := 100 * sMinus / sTR
		res.PlusDI[i] = pdi
		res.MinusDI[i] = mdi
		if pdi+mdi == 0 {
			dx[i] = 0
		} else {
			dx[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
		}
	}

	if 2*period-1 >= n {
		return res
	}
	sum := 0.0
	for i := period; i < 2*period; i++ {
		if math.IsNaN(dx[i]) {
			return res
		}
		sum += dx[i]
	}
	prev := sum / p
	res.ADX[2*period-1] = prev
	for i := 2 * period; i < n; i++ {
		if math.IsNaN(dx[i]) {
			continue
		}
		prev = (prev*(p-1) + dx[i]) / p
		res.ADX[i] = prev
	}
	return res
}

// KDJResult holds the stochastic K and D lines and J = 3K - 2D.
type KDJResult struct {
	K []float64
	D []float64
	J []float64
}

// KDJ computes the raw stochastic over `period` bars and smooths it twice with
// alpha 1/signal. K and D start from 50 at the first full window.
func KDJ(high, low, close []float64, period, signal int) KDJResult {
	n := len(close)
	res := KDJResult{K: nanSlice(n), D: nanSlice(n), J: nanSlice(n)}
	if period <= 0 || signal <= 0 {
		return res
	}
	alpha := 1 / float64(signal)
	k, d := 50.0, 50.0
	for i := period - 1; i < n; i++ {
		hh, ll := math.Inf(-1), math.Inf(1)
		for j := i - period + 1; j <= i; j++ {
			hh = math.Max(hh, high[j])
			ll = math.Min(ll, low[j])
		}
		rsv := 50.0
		if hh > ll {
			rsv = (close[i] - ll) / (hh - ll) * 100
		}
		k = (1-alpha)*k + alpha*rsv
		d = (1-alpha)*d + alpha*k
		res.K[i], res.D[i], res.J[i] = k, d, 3*k-2*d
	}
	return res
}
