package model

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(t time.Time, o, h, l, c, v float64) Bar {
	return Bar{Time: t, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func TestResample_15mToDaily(t *testing.T) {
	s := Series{Symbol: "BTCUSDT", Granularity: Granularity15m}
	// two full days, then four bars of a day still forming
	for d := 0; d < 3; d++ {
		n := 96
		if d == 2 {
			n = 4
		}
		for i := 0; i < n; i++ {
			ts := day0.AddDate(0, 0, d).Add(time.Duration(i) * 15 * time.Minute)
			p := float64(100 + d*1000 + i)
			s.Bars = append(s.Bars, bar(ts, p, p+2, p-1, p+1, 1))
		}
	}
	daily, err := s.Resample(GranularityDay)
	require.NoError(t, err)
	require.Len(t, daily.Bars, 2)

	first := daily.Bars[0]
	assert.Equal(t, day0, first.Time)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 197.0, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 196.0, first.Close)
	assert.Equal(t, 96.0, first.Volume)
	assert.Equal(t, 1100.0, daily.Bars[1].Open)
	assert.Equal(t, day0.AddDate(0, 0, 1), daily.Bars[1].Time)
}

func TestResample_DropsBucketWithHole(t *testing.T) {
	s := Series{Granularity: Granularity15m}
	for i := 0; i < 96; i++ {
		if i == 40 {
			continue
		}
		p := float64(100 + i)
		s.Bars = append(s.Bars, bar(day0.Add(time.Duration(i)*15*time.Minute), p, p+1, p-1, p, 1))
	}
	daily, err := s.Resample(GranularityDay)
	require.NoError(t, err)
	assert.Empty(t, daily.Bars)
}

func TestResample_RejectsFinerTarget(t *testing.T) {
	s := Series{Granularity: GranularityDay}
	_, err := s.Resample(Granularity15m)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := Series{Symbol: "x", Granularity: GranularityDay, Bars: []Bar{
		bar(day0, 10, 11, 9, 10.5, 1),
		bar(day0.AddDate(0, 0, 1), 10.5, 12, 10, 11, 1),
	}}
	require.NoError(t, good.Validate())

	dup := good
	dup.Bars = append([]Bar{}, good.Bars...)
	dup.Bars[1].Time = day0
	err := dup.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataIntegrity))

	bad := good
	bad.Bars = []Bar{bar(day0, 10, 9, 8, 10, 1)}
	assert.ErrorIs(t, bad.Validate(), ErrDataIntegrity)

	misaligned := good
	misaligned.Bars = []Bar{bar(day0.Add(time.Hour), 10, 11, 9, 10, 1)}
	assert.ErrorIs(t, misaligned.Validate(), ErrDataIntegrity)
}

func TestGaps(t *testing.T) {
	s := Series{Granularity: GranularityDay, Bars: []Bar{
		bar(day0, 1, 1, 1, 1, 0),
		bar(day0.AddDate(0, 0, 1), 1, 1, 1, 1, 0),
		bar(day0.AddDate(0, 0, 4), 1, 1, 1, 1, 0),
	}}
	gaps := s.Gaps()
	require.Len(t, gaps, 1)
	assert.Equal(t, 2, gaps[0].Missing)
}

func TestMerge_AppendsOnlyNewer(t *testing.T) {
	head := Series{Granularity: GranularityDay, Bars: []Bar{
		bar(day0, 1, 1, 1, 1, 0),
		bar(day0.AddDate(0, 0, 1), 2, 2, 2, 2, 0),
	}}
	tail := Series{Granularity: GranularityDay, Bars: []Bar{
		bar(day0.AddDate(0, 0, 1), 9, 9, 9, 9, 0),
		bar(day0.AddDate(0, 0, 2), 3, 3, 3, 3, 0),
	}}
	out := head.Merge(tail)
	require.Len(t, out.Bars, 3)
	assert.Equal(t, 2.0, out.Bars[1].Close)
	assert.Equal(t, 3.0, out.Bars[2].Close)
}

func TestAlignNearestPrior_MarksStale(t *testing.T) {
	metrics := []AuxMetric{
		{Time: day0, Name: MetricFundingRate, Value: 0.0001},
		{Time: day0.Add(8 * time.Hour), Name: MetricFundingRate, Value: 0.0002},
	}
	times := []time.Time{
		day0.Add(-time.Hour),
		day0.Add(4 * time.Hour),
		day0.Add(9 * time.Hour),
		day0.Add(30 * time.Hour),
	}
	got := AlignNearestPrior(times, metrics, 8*time.Hour)
	assert.True(t, math.IsNaN(got[0]))
	assert.Equal(t, 0.0001, got[1])
	assert.Equal(t, 0.0002, got[2])
	assert.True(t, math.IsNaN(got[3]))
}

func TestSourceError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewSourceError("binance", ErrPermanentSource, cause)
	assert.ErrorIs(t, err, ErrPermanentSource)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrPermanentSource, KindOf(err))
}
