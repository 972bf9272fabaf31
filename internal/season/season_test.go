package season

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/model"
)

func TestComputeStats(t *testing.T) {
	s := ComputeStats(History)
	assert.InDelta(t, 30.6, s.PeakMedian, 1e-9)
	assert.InDelta(t, math.Sqrt(8.03*30.6), s.PeakP25, 1e-9)
	assert.InDelta(t, math.Sqrt(30.6*94.2), s.PeakP75, 1e-9)
	assert.InDelta(t, 0.157, s.BottomMedian, 1e-12)
	assert.InDelta(t, 0.144, s.BottomP25, 1e-12)
	assert.InDelta(t, 0.191, s.BottomP75, 1e-12)
	assert.Equal(t, 526, s.PeakDays)
	assert.Equal(t, 889, s.BottomDays)
}

func TestPercentile(t *testing.T) {
	assert.InDelta(t, 1.75, percentile([]float64{4, 1, 3, 2}, 25), 1e-12)
	assert.Equal(t, 3.0, percentile([]float64{3}, 90))
	assert.True(t, math.IsNaN(percentile(nil, 50)))
}

func TestLocate(t *testing.T) {
	tests := []struct {
		asOf   time.Time
		season model.Season
		idx    int
	}{
		{date(2024, 10, 1), model.SeasonSpring, 3},
		{date(2025, 10, 1), model.SeasonSummer, 3},
		{date(2026, 10, 16), model.SeasonAutumn, 3},
		{date(2027, 12, 1), model.SeasonWinter, 3},
		{date(2016, 7, 9), model.SeasonSpring, 1},
	}
	for _, tt := range tests {
		info, err := Locate(tt.asOf)
		require.NoError(t, err)
		assert.Equal(t, tt.season, info.Season, tt.asOf.Format(time.DateOnly))
		assert.Equal(t, tt.idx, info.CycleIndex)
	}

	last, err := Locate(date(2029, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, date(2028, 4, 17).AddDate(0, 0, cycleDays), last.NextHalving)

	_, err = Locate(date(2011, 1, 1))
	assert.ErrorIs(t, err, model.ErrInsufficientHistory)
}

func TestForecast_BullWithoutHistory(t *testing.T) {
	e := NewEngine(nil, calculator.PowerLaw{})
	asOf := date(2025, 1, 1)
	res, err := e.Forecast(asOf, 60000, model.Series{})
	require.NoError(t, err)

	assert.Equal(t, ModeBullPeak, res.Mode)
	assert.Equal(t, model.SeasonSpring, res.Season)
	assert.Equal(t, 60000.0, res.HalvingPrice)
	assert.InDelta(t, math.Round(60000*30.6/3.5), res.TargetMedian, 1)
	assert.LessOrEqual(t, res.TargetLow, res.TargetMedian)
	assert.LessOrEqual(t, res.TargetMedian, res.TargetHigh)
	assert.Equal(t, 40, res.Confidence)

	since := int(asOf.Sub(date(2024, 4, 19)).Hours() / 24)
	assert.Equal(t, 526-since, res.DaysToTarget)
	assert.Equal(t, asOf.AddDate(0, 0, 526-since), res.ExpectedDate)

	// log-space quartiles of 8.03, 30.6, 94.2 interpolate to geometric means
	assert.InDelta(t, math.Round(60000/3.5*math.Sqrt(8.03*30.6)), res.IntervalLow, 1)
	assert.InDelta(t, math.Round(60000/3.5*math.Sqrt(30.6*94.2)), res.IntervalHigh, 1)
	band := CorridorAt(calculator.DefaultPowerLaw, res.ExpectedDate)
	assert.Equal(t, math.Round(band.Support), res.CorridorLow)
	assert.Equal(t, math.Round(band.Upper), res.CorridorHigh)
}

func TestForecast_BullAlreadyPastMedian(t *testing.T) {
	e := NewEngine(nil, calculator.PowerLaw{})
	daily := model.Series{Granularity: model.GranularityDay, Bars: []model.Bar{
		{Time: date(2024, 4, 19), Open: 10000, High: 10000, Low: 10000, Close: 10000},
	}}
	res, err := e.Forecast(date(2025, 3, 1), 100000, daily)
	require.NoError(t, err)

	s := e.Stats()
	med := math.Round(100000 * s.PeakP75 / s.PeakMedian)
	assert.InDelta(t, med, res.TargetMedian, 1)
	assert.InDelta(t, med*1.3, res.TargetHigh, 2)
	assert.InDelta(t, med*0.75, res.TargetLow, 2)
	assert.Equal(t, 10000.0, res.HalvingPrice)
	for _, v := range []float64{res.TargetLow, res.TargetMedian, res.TargetHigh} {
		assert.GreaterOrEqual(t, v, 100000.0)
	}
}

func TestForecast_BearUsesPreviousCycleTop(t *testing.T) {
	e := NewEngine(nil, calculator.PowerLaw{})
	daily := model.Series{Granularity: model.GranularityDay, Bars: []model.Bar{
		{Time: date(2021, 11, 10), Close: 69000},
		{Time: date(2024, 3, 14), Close: 73000},
		{Time: date(2024, 4, 19), Close: 64000},
		{Time: date(2025, 10, 6), Close: 124000},
	}}
	res, err := e.Forecast(date(2026, 10, 16), 60000, daily)
	require.NoError(t, err)

	assert.Equal(t, ModeBearBottom, res.Mode)
	assert.Equal(t, model.SeasonAutumn, res.Season)
	assert.Equal(t, 73000.0, res.ReferenceATH)
	assert.Equal(t, 64000.0, res.HalvingPrice)
	assert.InDelta(t, math.Round(73000*0.157), res.TargetMedian, 1)
	assert.Equal(t, minLeadDays, res.DaysToTarget)
	assert.Equal(t, 75, res.Confidence)
	for _, v := range []float64{res.TargetLow, res.TargetMedian, res.TargetHigh} {
		assert.LessOrEqual(t, v, 60000.0)
	}
	assert.InDelta(t, math.Round(73000*math.Sqrt(0.131*0.157)), res.IntervalLow, 1)
	assert.InDelta(t, math.Round(73000*math.Sqrt(0.157*0.225)), res.IntervalHigh, 1)
}

func TestForecast_BearFallsBackToTable(t *testing.T) {
	e := NewEngine(nil, calculator.PowerLaw{})
	res, err := e.Forecast(date(2027, 6, 1), 50000, model.Series{})
	require.NoError(t, err)
	assert.Equal(t, 68789.0, res.ReferenceATH)
	assert.GreaterOrEqual(t, res.Confidence, 35)
	assert.LessOrEqual(t, res.Confidence, 80)
}

func TestForecast_RejectsBadPrice(t *testing.T) {
	_, err := NewEngine(nil, calculator.PowerLaw{}).Forecast(date(2025, 1, 1), 0, model.Series{})
	assert.Error(t, err)
}

func TestCorridor(t *testing.T) {
	pts := Corridor(calculator.DefaultPowerLaw, time.Date(2025, 1, 1, 15, 0, 0, 0, time.UTC), 3)
	require.Len(t, pts, 3)
	assert.Equal(t, date(2025, 1, 1), pts[0].Time)
	for i, p := range pts {
		assert.InDelta(t, math.Pow(10, CorridorWidth), p.Upper/p.Median, 1e-9)
		assert.InDelta(t, math.Pow(10, CorridorWidth), p.Median/p.Support, 1e-9)
		if i > 0 {
			assert.Greater(t, p.Median, pts[i-1].Median)
		}
	}
	assert.Nil(t, Corridor(calculator.DefaultPowerLaw, date(2025, 1, 1), 0))
}
