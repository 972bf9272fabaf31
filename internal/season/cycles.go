// Package season forecasts cycle targets from the position inside the
// four-year halving cycle.
package season

import (
	"math"
	"sort"
	"time"
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

// Halvings lists the block-subsidy halvings. The last one is an estimate.
var Halvings = []time.Time{
	date(2012, 11, 28),
	date(2016, 7, 9),
	date(2020, 5, 11),
	date(2024, 4, 19),
	date(2028, 4, 17),
}

// Cycle is one completed halving cycle.
type Cycle struct {
	Halving        time.Time
	HalvingPrice   float64
	ATH            float64
	ATHDate        time.Time
	Low            float64
	LowDate        time.Time
	PeakMultiple   float64 // ATH / halving price
	BottomMultiple float64 // low / ATH
	PeakDays       int
	BottomDays     int
}

// History holds the completed cycles.
var History = []Cycle{
	{
		Halving: date(2012, 11, 28), HalvingPrice: 12.35,
		ATH: 1163, ATHDate: date(2013, 11, 29),
		Low: 152.40, LowDate: date(2015, 1, 14),
		PeakMultiple: 94.2, BottomMultiple: 0.131, PeakDays: 366, BottomDays: 777,
	},
	{
		Halving: date(2016, 7, 9), HalvingPrice: 650,
		ATH: 19891, ATHDate: date(2017, 12, 17),
		Low: 3122, LowDate: date(2018, 12, 15),
		PeakMultiple: 30.6, BottomMultiple: 0.157, PeakDays: 526, BottomDays: 889,
	},
	{
		Halving: date(2020, 5, 11), HalvingPrice: 8571,
		ATH: 68789, ATHDate: date(2021, 11, 10),
		Low: 15476, LowDate: date(2022, 11, 21),
		PeakMultiple: 8.03, BottomMultiple: 0.225, PeakDays: 549, BottomDays: 925,
	},
}

// Stats are the cycle-table aggregates the forecast draws on. Peak multiples
// are aggregated in log space.
type Stats struct {
	PeakMedian   float64
	PeakP25      float64
	PeakP75      float64
	BottomMedian float64
	BottomP25    float64
	BottomP75    float64
	PeakDays     int
	BottomDays   int
}

// ComputeStats aggregates a cycle table.
func ComputeStats(history []Cycle) Stats {
	var logPeak, bottom, peakDays, bottomDays []float64
	for _, c := range history {
		logPeak = append(logPeak, math.Log(c.PeakMultiple))
		bottom = append(bottom, c.BottomMultiple)
		peakDays = append(peakDays, float64(c.PeakDays))
		bottomDays = append(bottomDays, float64(c.BottomDays))
	}
	return Stats{
		PeakMedian:   math.Exp(percentile(logPeak, 50)),
		PeakP25:      math.Exp(percentile(logPeak, 25)),
		PeakP75:      math.Exp(percentile(logPeak, 75)),
		BottomMedian: percentile(bottom, 50),
		BottomP25:    percentile(bottom, 25),
		BottomP75:    percentile(bottom, 75),
		PeakDays:     int(percentile(peakDays, 50)),
		BottomDays:   int(percentile(bottomDays, 50)),
	}
}

// percentile uses linear interpolation between closest ranks.
func percentile(x []float64, q float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	pos := q / 100 * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (pos-float64(lo))*(s[hi]-s[lo])
}
