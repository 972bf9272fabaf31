package calculator

import (
	"math"
	"time"
)

// wilder carries Wilder-smoothed RSI state. Steps return a new value so a
// committed state can be evaluated with a provisional close.
type wilder struct {
	period  int
	prev    float64
	hasPrev bool
	count   int
	avgGain float64
	avgLoss float64
}

func (w wilder) step(v float64) (wilder, float64) {
	if math.IsNaN(v) {
		return wilder{period: w.period}, math.NaN()
	}
	if !w.hasPrev {
		w.prev, w.hasPrev = v, true
		return w, math.NaN()
	}
	change := v - w.prev
	w.prev = v
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	p := float64(w.period)

	// Initial average gain/loss over the first `period` changes
	if w.count < w.period {
		w.avgGain += gain
		w.avgLoss += loss
		w.count++
		if w.count < w.period {
			return w, math.NaN()
		}
		w.avgGain /= p
		w.avgLoss /= p
		return w, rsiValue(w.avgGain, w.avgLoss)
	}

	w.avgGain = (w.avgGain*(p-1) + gain) / p
	w.avgLoss = (w.avgLoss*(p-1) + loss) / p
	return w, rsiValue(w.avgGain, w.avgLoss)
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// RSI computes the Wilder-smoothed RSI. The first `period` slots are NaN.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 {
		return out
	}
	w := wilder{period: period}
	for i, c := range closes {
		w, out[i] = w.step(c)
	}
	return out
}

// PeriodKey buckets a timestamp into a coarser period.
type PeriodKey func(time.Time) int

// WeekKey buckets by ISO week.
func WeekKey(t time.Time) int {
	y, w := t.UTC().ISOWeek()
	return y*100 + w
}

// MonthKey buckets by calendar month.
func MonthKey(t time.Time) int {
	u := t.UTC()
	return u.Year()*12 + int(u.Month())
}

// PeriodicRSI computes RSI over period closes (last close of each week or
// month) and projects it back onto every bar. Completed periods use their final
// close; the in-progress period uses the bar's own close, so no value ever
// depends on a later bar.
func PeriodicRSI(times []time.Time, closes []float64, key PeriodKey, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(times) != len(closes) {
		return out
	}
	committed := wilder{period: period}
	for i := range closes {
		if i > 0 && key(times[i]) != key(times[i-1]) {
			committed, _ = committed.step(closes[i-1])
		}
		_, out[i] = committed.step(closes[i])
	}
	return out
}
