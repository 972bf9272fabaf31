package strategy

import (
	"math"
	"time"

	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/model"
)

// Tiers maps the cycle score to a stance, highest first.
var Tiers = []struct {
	MinScore float64
	Tier     model.Tier
}{
	{60, model.Tier{Label: "Overheated", Stance: "take profit"}},
	{30, model.Tier{Label: "Hot", Stance: "reduce exposure"}},
	{10, model.Tier{Label: "Warm", Stance: "hold"}},
	{-10, model.Tier{Label: "Neutral", Stance: "regular accumulation"}},
	{-30, model.Tier{Label: "Cool", Stance: "accumulate"}},
	{-60, model.Tier{Label: "Bottoming", Stance: "heavy accumulation"}},
}

// DefaultTier is the tier for cycle scores below -60.
var DefaultTier = model.Tier{Label: "Deep bottom", Stance: "maximum accumulation"}

// NoDataTier labels snapshots built without any market data.
var NoDataTier = model.Tier{Label: "No data", Stance: "wait"}

func mapTier(cycle float64) model.Tier {
	for _, t := range Tiers {
		if cycle >= t.MinScore {
			return t.Tier
		}
	}
	return DefaultTier
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EvaluateRow scores one indicator row. Every slot is present in both panels.
func EvaluateRow(row model.IndicatorRow) model.ScoreSnapshot {
	snap := model.ScoreSnapshot{
		Time:   row.Time,
		Close:  row.Close,
		Bottom: make([]model.SubScore, 0, len(factors)),
		Heat:   make([]model.SubScore, 0, len(factors)),
	}
	var bottom, heat float64
	for _, f := range factors {
		v := row.Value(f.Slot)
		b := scoreBottom(f, v)
		h := scoreHeat(f, v)
		if !b.Available {
			snap.Unavailable++
		}
		bottom += b.Points
		heat += h.Points
		snap.Bottom = append(snap.Bottom, b)
		snap.Heat = append(snap.Heat, h)
	}
	snap.BearBottom = clip(bottom, 0, 100)
	snap.BullHeat = clip(heat, 0, 100)
	snap.RawCycle = snap.BullHeat - snap.BearBottom
	snap.Cycle = clip(snap.RawCycle, -100, 100)
	snap.Tier = mapTier(snap.Cycle)
	return snap
}

// Evaluate scores the latest bar of the frame. An empty frame yields a
// no-data snapshot stamped at the zero time.
func Evaluate(f *calculator.Frame) model.ScoreSnapshot {
	row, ok := f.Latest()
	if !ok {
		return NoData(time.Time{})
	}
	return EvaluateRow(row)
}

// ScoreSeries scores every bar of the frame.
func ScoreSeries(f *calculator.Frame) []model.ScoreSnapshot {
	out := make([]model.ScoreSnapshot, f.Len())
	for i := range out {
		out[i] = EvaluateRow(f.Row(i))
	}
	return out
}

// NoData builds an all-unavailable snapshot.
func NoData(at time.Time) model.ScoreSnapshot {
	nan := math.NaN()
	snap := EvaluateRow(model.IndicatorRow{
		Time:     at,
		AHR999:   nan,
		MVRVZ:    nan,
		PiGap:    nan,
		SMA200W:  nan,
		Puell:    nan,
		RSIM:     nan,
		PowerLaw: nan,
		Mayer:    nan,
	})
	snap.NoData = true
	snap.Tier = NoDataTier
	return snap
}
