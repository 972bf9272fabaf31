package model

import (
	"fmt"
	"math"
	"time"
)

// Granularity is the fixed bar interval of a Series.
type Granularity string

const (
	Granularity15m Granularity = "15m"
	GranularityDay Granularity = "1d"
)

// Interval returns the native bar spacing.
func (g Granularity) Interval() time.Duration {
	switch g {
	case Granularity15m:
		return 15 * time.Minute
	case GranularityDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether g is a supported granularity.
func (g Granularity) Valid() bool { return g.Interval() > 0 }

// Bar represents a single OHLCV candle. Time is the UTC open time.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Equal reports whether two bars carry the same timestamp and payload.
func (b Bar) Equal(o Bar) bool {
	return b.Time.Equal(o.Time) &&
		b.Open == o.Open && b.High == o.High && b.Low == o.Low &&
		b.Close == o.Close && b.Volume == o.Volume
}

// Series is an ordered sequence of bars for one symbol and granularity.
type Series struct {
	Symbol      string      `json:"symbol"`
	Granularity Granularity `json:"granularity"`
	Bars        []Bar       `json:"bars"`
}

// Gap describes a hole wider than one native interval between two bars.
type Gap struct {
	After  time.Time `json:"after"`
	Before time.Time `json:"before"`
	Missing int      `json:"missing"`
}

func (s Series) Len() int { return len(s.Bars) }

func (s Series) Empty() bool { return len(s.Bars) == 0 }

// First returns the earliest bar. The series must be non-empty.
func (s Series) First() Bar { return s.Bars[0] }

// Last returns the latest bar. The series must be non-empty.
func (s Series) Last() Bar { return s.Bars[len(s.Bars)-1] }

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high column.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low column.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Times extracts the timestamp column.
func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Time
	}
	return out
}

// Between returns the bars with from <= t <= to. A zero bound is open.
func (s Series) Between(from, to time.Time) Series {
	out := Series{Symbol: s.Symbol, Granularity: s.Granularity}
	for _, b := range s.Bars {
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		if !to.IsZero() && b.Time.After(to) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}

// After returns the bars strictly later than t.
func (s Series) After(t time.Time) Series {
	out := Series{Symbol: s.Symbol, Granularity: s.Granularity}
	for _, b := range s.Bars {
		if b.Time.After(t) {
			out.Bars = append(out.Bars, b)
		}
	}
	return out
}

// Validate checks ordering, alignment and OHLC consistency.
func (s Series) Validate() error {
	step := s.Granularity.Interval()
	if step == 0 {
		return NewSourceError(s.Symbol, ErrDataIntegrity, fmt.Errorf("unknown granularity %q", s.Granularity))
	}
	for i, b := range s.Bars {
		if b.Time.UnixMilli()%step.Milliseconds() != 0 {
			return NewSourceError(s.Symbol, ErrDataIntegrity, fmt.Errorf("bar %s not aligned to %s", b.Time.UTC().Format(time.RFC3339), s.Granularity))
		}
		if i > 0 && !b.Time.After(s.Bars[i-1].Time) {
			return NewSourceError(s.Symbol, ErrDataIntegrity, fmt.Errorf("bar %d at %s is not after %s", i, b.Time.UTC().Format(time.RFC3339), s.Bars[i-1].Time.UTC().Format(time.RFC3339)))
		}
		if err := checkOHLC(b); err != nil {
			return NewSourceError(s.Symbol, ErrDataIntegrity, err)
		}
	}
	return nil
}

func checkOHLC(b Bar) error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bar %s has non-finite value", b.Time.UTC().Format(time.RFC3339))
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 || b.Volume < 0 {
		return fmt.Errorf("bar %s has non-positive price", b.Time.UTC().Format(time.RFC3339))
	}
	if b.Low > math.Min(b.Open, b.Close) || b.High < math.Max(b.Open, b.Close) {
		return fmt.Errorf("bar %s has inconsistent range (o=%g h=%g l=%g c=%g)",
			b.Time.UTC().Format(time.RFC3339), b.Open, b.High, b.Low, b.Close)
	}
	return nil
}

// Gaps lists holes wider than one native interval.
func (s Series) Gaps() []Gap {
	step := s.Granularity.Interval()
	if step == 0 {
		return nil
	}
	var gaps []Gap
	for i := 1; i < len(s.Bars); i++ {
		d := s.Bars[i].Time.Sub(s.Bars[i-1].Time)
		if d > step {
			gaps = append(gaps, Gap{
				After:   s.Bars[i-1].Time,
				Before:  s.Bars[i].Time,
				Missing: int(d/step) - 1,
			})
		}
	}
	return gaps
}

// Resample aggregates bars into a coarser granularity: open first, high max,
// low min, close last, volume sum. Buckets are aligned to UTC boundaries.
// A bucket missing any of its source bars is dropped, which covers both the
// bucket still forming and one cut by a hole.
func (s Series) Resample(target Granularity) (Series, error) {
	if target == s.Granularity {
		return s, nil
	}
	step := target.Interval()
	if step == 0 || step < s.Granularity.Interval() {
		return Series{}, fmt.Errorf("cannot resample %s to %s", s.Granularity, target)
	}
	need := int(step / s.Granularity.Interval())
	out := Series{Symbol: s.Symbol, Granularity: target}
	counts := make([]int, 0, len(s.Bars)/need+1)
	for _, b := range s.Bars {
		bucket := b.Time.UTC().Truncate(step)
		n := len(out.Bars)
		if n > 0 && out.Bars[n-1].Time.Equal(bucket) {
			agg := &out.Bars[n-1]
			agg.High = math.Max(agg.High, b.High)
			agg.Low = math.Min(agg.Low, b.Low)
			agg.Close = b.Close
			agg.Volume += b.Volume
			counts[n-1]++
			continue
		}
		out.Bars = append(out.Bars, Bar{
			Time:   bucket,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
		counts = append(counts, 1)
	}
	complete := out.Bars[:0]
	for i, b := range out.Bars {
		if counts[i] == need {
			complete = append(complete, b)
		}
	}
	out.Bars = complete
	return out, nil
}

// Merge appends tail bars that are strictly later than the last bar of s.
func (s Series) Merge(tail Series) Series {
	out := Series{Symbol: s.Symbol, Granularity: s.Granularity}
	out.Bars = append(out.Bars, s.Bars...)
	if s.Empty() {
		out.Bars = append(out.Bars, tail.Bars...)
		return out
	}
	out.Bars = append(out.Bars, tail.After(s.Last().Time).Bars...)
	return out
}
