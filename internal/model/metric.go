package model

import (
	"math"
	"sort"
	"time"
)

// Aux metric names.
const (
	MetricFundingRate      = "funding_rate"
	MetricOpenInterest     = "open_interest"
	MetricTVL              = "tvl"
	MetricStablecoinSupply = "stablecoin_supply"
	MetricFearGreed        = "fear_greed"
	MetricM2               = "m2"
	MetricCPI              = "cpi"
	MetricUSDJPY           = "usdjpy"
)

// NativeRefresh is the publishing cadence of each metric. A joined value older
// than this is reported as NaN.
var NativeRefresh = map[string]time.Duration{
	MetricFundingRate:      8 * time.Hour,
	MetricOpenInterest:     time.Hour,
	MetricTVL:              24 * time.Hour,
	MetricStablecoinSupply: 24 * time.Hour,
	MetricFearGreed:        24 * time.Hour,
	MetricM2:               7 * 24 * time.Hour,
	MetricCPI:              31 * 24 * time.Hour,
	MetricUSDJPY:           24 * time.Hour,
}

// AuxMetric is one timestamped reading of a non-price series.
type AuxMetric struct {
	Time  time.Time `json:"time"`
	Name  string    `json:"name"`
	Value float64   `json:"value"`
}

// SortMetrics orders metrics by time and drops duplicate timestamps, keeping
// the first occurrence.
func SortMetrics(ms []AuxMetric) []AuxMetric {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Time.Before(ms[j].Time) })
	out := ms[:0]
	for i, m := range ms {
		if i > 0 && m.Time.Equal(out[len(out)-1].Time) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// AlignNearestPrior joins metrics onto bar timestamps. Each bar takes the latest
// metric at or before its time; if that metric is older than maxAge the slot is
// NaN. Metrics must be sorted by time.
func AlignNearestPrior(times []time.Time, metrics []AuxMetric, maxAge time.Duration) []float64 {
	out := make([]float64, len(times))
	j := -1
	for i, t := range times {
		for j+1 < len(metrics) && !metrics[j+1].Time.After(t) {
			j++
		}
		if j < 0 || (maxAge > 0 && t.Sub(metrics[j].Time) > maxAge) {
			out[i] = math.NaN()
			continue
		}
		out[i] = metrics[j].Value
	}
	return out
}
