package strategy

import (
	"fmt"
	"math"

	"BTCSentinel/internal/model"
)

// step awards Points once a reading crosses Threshold.
type step struct {
	Threshold float64
	Points    float64
}

// factor is one valuation sub-indicator with its bottom and heat ladders.
// Bottom steps fire on value < Threshold, heat steps on value >= Threshold.
// Both ladders are ordered from the strongest step down.
type factor struct {
	Slot   string
	Needs  string
	Bottom []step
	Heat   []step
}

var factors = []factor{
	{
		Slot:   model.SlotAHR999,
		Needs:  "needs 200 daily bars",
		Bottom: []step{{0.45, 20}, {0.8, 13}, {1.2, 5}},
		Heat:   []step{{2, 20}, {1.5, 13}, {1.2, 5}},
	},
	{
		Slot:   model.SlotMVRVZ,
		Needs:  "needs 200 daily bars",
		Bottom: []step{{0, 18}, {1, 12}, {2, 4}},
		Heat:   []step{{5, 18}, {3.5, 12}, {2, 4}},
	},
	{
		Slot:   model.SlotPiGap,
		Needs:  "needs 350 daily bars",
		Bottom: []step{{-5, 15}, {0, 10}, {5, 4}},
		Heat:   []step{{15, 15}, {10, 10}, {5, 4}},
	},
	{
		Slot:   model.SlotSMA200W,
		Needs:  "needs 1400 daily bars",
		Bottom: []step{{1, 15}, {1.3, 11}, {2, 5}, {4, 1}},
		Heat:   []step{{5, 15}, {4, 11}, {3, 5}, {2, 1}},
	},
	{
		Slot:   model.SlotPuell,
		Needs:  "needs 365 daily bars",
		Bottom: []step{{0.5, 12}, {0.8, 8}, {1.5, 3}},
		Heat:   []step{{4, 12}, {2, 8}, {1.5, 3}},
	},
	{
		Slot:   model.SlotRSIM,
		Needs:  "needs 15 monthly closes",
		Bottom: []step{{30, 10}, {40, 7}, {55, 2}},
		Heat:   []step{{75, 10}, {65, 7}, {55, 2}},
	},
	{
		Slot:   model.SlotPowerLaw,
		Needs:  "needs a power-law fit",
		Bottom: []step{{2, 5}, {5, 3}, {10, 1}},
		Heat:   []step{{15, 5}, {10, 3}, {7, 1}},
	},
	{
		Slot:   model.SlotMayer,
		Needs:  "needs 730 daily bars",
		Bottom: []step{{0.8, 5}, {1, 3}, {1.5, 1}},
		Heat:   []step{{2.4, 5}, {2, 3}, {1.5, 1}},
	},
}

func maxPoints(steps []step) float64 {
	if len(steps) == 0 {
		return 0
	}
	return steps[0].Points
}

// scoreBottom walks the ladder and awards the first step the value is below.
func scoreBottom(f factor, v float64) model.SubScore {
	s := model.SubScore{Name: f.Slot, Value: v, MaxPoints: maxPoints(f.Bottom)}
	if math.IsNaN(v) {
		s.Note = "unavailable: " + f.Needs
		return s
	}
	s.Available = true
	for _, st := range f.Bottom {
		if v < st.Threshold {
			s.Points = st.Points
			s.Note = fmt.Sprintf("%.2f < %g", v, st.Threshold)
			return s
		}
	}
	s.Note = fmt.Sprintf("%.2f above bottom range", v)
	return s
}

// scoreHeat is the mirror of scoreBottom for the bull-heat panel.
func scoreHeat(f factor, v float64) model.SubScore {
	s := model.SubScore{Name: f.Slot, Value: v, MaxPoints: maxPoints(f.Heat)}
	if math.IsNaN(v) {
		s.Note = "unavailable: " + f.Needs
		return s
	}
	s.Available = true
	for _, st := range f.Heat {
		if v >= st.Threshold {
			s.Points = st.Points
			s.Note = fmt.Sprintf("%.2f >= %g", v, st.Threshold)
			return s
		}
	}
	s.Note = fmt.Sprintf("%.2f below heat range", v)
	return s
}
