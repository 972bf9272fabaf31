package model

import "time"

// Season is the halving-cycle phase.
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

// Bullish reports whether the season targets a cycle top.
func (s Season) Bullish() bool { return s == SeasonSpring || s == SeasonSummer }

// ForecastResult is the season model output. The interval bounds the 25th to
// 75th percentile of the historical cycle outcomes; the corridor is the
// power-law band at ExpectedDate.
type ForecastResult struct {
	AsOf         time.Time `json:"as_of"`
	Season       Season    `json:"season"`
	Mode         string    `json:"mode"`
	MonthInCycle int       `json:"month_in_cycle"`
	CycleIndex   int       `json:"cycle_index"`
	HalvingDate  time.Time `json:"halving_date"`
	NextHalving  time.Time `json:"next_halving"`
	HalvingPrice float64   `json:"halving_price"`
	ReferenceATH float64   `json:"reference_ath,omitempty"`
	CurrentPrice float64   `json:"current_price"`
	TargetLow    float64   `json:"target_low"`
	TargetMedian float64   `json:"target_median"`
	TargetHigh   float64   `json:"target_high"`
	IntervalLow  float64   `json:"interval_low"`
	IntervalHigh float64   `json:"interval_high"`
	CorridorLow  float64   `json:"corridor_low"`
	CorridorHigh float64   `json:"corridor_high"`
	ExpectedDate time.Time `json:"expected_date"`
	DaysToTarget int       `json:"days_to_target"`
	Confidence   int       `json:"confidence"`
}

// CorridorPoint is one day of the power-law corridor.
type CorridorPoint struct {
	Time    time.Time `json:"time"`
	Support float64   `json:"support"`
	Median  float64   `json:"median"`
	Upper   float64   `json:"upper"`
}
