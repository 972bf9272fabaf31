package swing

import (
	"errors"
	"fmt"
	"sort"

	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/model"
)

// Objective selects the grid ranking metric.
type Objective string

const (
	ObjectiveWinRate Objective = "win_rate"
	ObjectiveROI     Objective = "roi"
)

// Grid lists candidate values for the entry filters.
type Grid struct {
	BandLow  []float64 `yaml:"band_low" json:"band_low"`
	BandHigh []float64 `yaml:"band_high" json:"band_high"`
	RSIMin   []float64 `yaml:"rsi_min" json:"rsi_min"`
	ADXMin   []float64 `yaml:"adx_min" json:"adx_min"`
}

// DefaultGrid is a small grid around the defaults.
func DefaultGrid() Grid {
	return Grid{
		BandLow:  []float64{0, 0.5},
		BandHigh: []float64{1, 1.5, 3},
		RSIMin:   []float64{45, 50, 55},
		ADXMin:   []float64{15, 20, 25},
	}
}

var errEmptyGrid = errors.New("grid has no valid combinations")

// Optimize backtests every grid combination, skipping BandLow >= BandHigh, and
// returns the results ranked best first. Enumeration runs BandLow, BandHigh,
// RSIMin, ADXMin from outer to inner loop, and ties keep that order.
func Optimize(f *calculator.Frame, funding []float64, base Params, g Grid, obj Objective) ([]model.GridResult, error) {
	var key func(model.BacktestResult) float64
	switch obj {
	case ObjectiveWinRate:
		key = func(r model.BacktestResult) float64 { return r.WinRate }
	case ObjectiveROI:
		key = func(r model.BacktestResult) float64 { return r.ROI }
	default:
		return nil, fmt.Errorf("unknown objective %q", obj)
	}

	// Only the thresholds vary, so the columns are built once.
	check := base
	check.BandLow, check.BandHigh = 0, 1
	if err := check.Validate(); err != nil {
		return nil, err
	}
	s, err := newSeries(f, funding, base)
	if err != nil {
		return nil, err
	}

	var out []model.GridResult
	for _, lo := range g.BandLow {
		for _, hi := range g.BandHigh {
			if lo >= hi {
				continue
			}
			for _, rsi := range g.RSIMin {
				for _, adx := range g.ADXMin {
					p := base
					p.BandLow, p.BandHigh, p.RSIMin, p.ADXMin = lo, hi, rsi, adx
					out = append(out, model.GridResult{
						BandLow:  lo,
						BandHigh: hi,
						RSIMin:   rsi,
						ADXMin:   adx,
						Result:   run(s, p),
					})
				}
			}
		}
	}
	if len(out) == 0 {
		return nil, errEmptyGrid
	}
	sort.SliceStable(out, func(i, j int) bool { return key(out[i].Result) > key(out[j].Result) })
	return out, nil
}
