package model

import (
	"fmt"
	"math"
)

// inflationDrift is the YoY move, in percentage points, that counts as a change
// of direction between consecutive prints.
const inflationDrift = 0.15

// Inflation trend labels.
const (
	InflationRising  = "rising"
	InflationFalling = "falling"
	InflationStable  = "stable"
)

// Inflation is the latest CPI print expressed as year-over-year and
// month-over-month percentage changes.
type Inflation struct {
	Month   string  `json:"month"`
	CPI     float64 `json:"cpi"`
	YoY     float64 `json:"yoy_pct"`
	PrevYoY float64 `json:"prev_yoy_pct"`
	MoM     float64 `json:"mom_pct"`
	Trend   string  `json:"trend"`
}

// CPIYoY derives inflation from monthly CPI prints sorted by time. YoY compares
// the last print with the one twelve prints earlier, and Trend compares it
// with the previous month's YoY.
func CPIYoY(prints []AuxMetric) (Inflation, error) {
	n := len(prints)
	if n < 13 {
		return Inflation{}, fmt.Errorf("cpi yoy needs 13 monthly prints, have %d: %w", n, ErrInsufficientHistory)
	}
	pct := func(i, lag int) float64 {
		if i-lag < 0 || prints[i-lag].Value == 0 {
			return math.NaN()
		}
		return (prints[i].Value/prints[i-lag].Value - 1) * 100
	}
	last := n - 1
	in := Inflation{
		Month:   prints[last].Time.UTC().Format("2006-01"),
		CPI:     prints[last].Value,
		YoY:     pct(last, 12),
		PrevYoY: pct(last-1, 12),
		MoM:     pct(last, 1),
		Trend:   InflationStable,
	}
	if math.IsNaN(in.PrevYoY) {
		in.PrevYoY = in.YoY
	}
	switch {
	case in.YoY > in.PrevYoY+inflationDrift:
		in.Trend = InflationRising
	case in.YoY < in.PrevYoY-inflationDrift:
		in.Trend = InflationFalling
	}
	return in, nil
}
