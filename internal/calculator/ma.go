package calculator

import (
	"fmt"
	"math"
	"strings"
)

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA computes the simple moving average. The first period-1 slots, and any
// window touching a NaN, are NaN.
func SMA(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 {
		return out
	}
	var sum float64
	nans := 0
	for i, v := range x {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}
		if i >= period {
			if old := x[i-period]; math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if i >= period-1 && nans == 0 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average seeded with the SMA of the first
// full window. A NaN input restarts the seed.
func EMA(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	run := 0
	seeded := false
	var prev float64
	for i, v := range x {
		if math.IsNaN(v) {
			run, seeded = 0, false
			continue
		}
		if !seeded {
			run++
			if run == period {
				sum := 0.0
				for _, w := range x[i-period+1 : i+1] {
					sum += w
				}
				prev = sum / float64(period)
				seeded = true
				out[i] = prev
			}
			continue
		}
		prev = alpha*v + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// MovingAverage dispatches on a name such as "EMA20" or "SMA50".
func MovingAverage(name string, x []float64) ([]float64, error) {
	kind, period, err := ParseMA(name)
	if err != nil {
		return nil, err
	}
	if kind == "EMA" {
		return EMA(x, period), nil
	}
	return SMA(x, period), nil
}

// ParseMA splits "EMA20" into ("EMA", 20).
func ParseMA(name string) (string, int, error) {
	up := strings.ToUpper(strings.TrimSpace(name))
	for _, kind := range []string{"EMA", "SMA"} {
		if strings.HasPrefix(up, kind) {
			var period int
			if _, err := fmt.Sscanf(up[len(kind):], "%d", &period); err != nil || period <= 0 {
				return "", 0, fmt.Errorf("bad moving average %q", name)
			}
			return kind, period, nil
		}
	}
	return "", 0, fmt.Errorf("bad moving average %q", name)
}

// RollingStd is the sample standard deviation over a trailing window.
func RollingStd(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period < 2 {
		return out
	}
outer:
	for i := period - 1; i < len(x); i++ {
		win := x[i-period+1 : i+1]
		mean := 0.0
		for _, v := range win {
			if math.IsNaN(v) {
				continue outer
			}
			mean += v
		}
		mean /= float64(period)
		ss := 0.0
		for _, v := range win {
			ss += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(ss / float64(period-1))
	}
	return out
}

// Diff is x[i] - x[i-lag], NaN where either side is missing.
func Diff(x []float64, lag int) []float64 {
	out := nanSlice(len(x))
	for i := lag; i < len(x); i++ {
		if lag > 0 && !math.IsNaN(x[i]) && !math.IsNaN(x[i-lag]) {
			out[i] = x[i] - x[i-lag]
		}
	}
	return out
}

// Ratio divides a by b element-wise, propagating NaN.
func Ratio(a, b []float64) []float64 {
	out := nanSlice(len(a))
	for i := range a {
		if i >= len(b) || math.IsNaN(a[i]) || math.IsNaN(b[i]) || b[i] == 0 {
			continue
		}
		out[i] = a[i] / b[i]
	}
	return out
}

// Last returns the final element of x, or NaN when x is empty.
func Last(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return x[len(x)-1]
}
