package season

import (
	"math"
	"time"

	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/model"
)

// CorridorWidth is the half-width of the power-law channel in log10 units.
const CorridorWidth = 0.45

// CorridorAt evaluates the channel on one day.
func CorridorAt(pl calculator.PowerLaw, t time.Time) model.CorridorPoint {
	logMed := pl.Intercept + pl.Slope*math.Log10(calculator.DaysSinceGenesis(t))
	return model.CorridorPoint{
		Time:    t,
		Support: math.Pow(10, logMed-CorridorWidth),
		Median:  math.Pow(10, logMed),
		Upper:   math.Pow(10, logMed+CorridorWidth),
	}
}

// Corridor returns n daily channel points starting at from.
func Corridor(pl calculator.PowerLaw, from time.Time, n int) []model.CorridorPoint {
	if n <= 0 {
		return nil
	}
	start := from.UTC().Truncate(24 * time.Hour)
	out := make([]model.CorridorPoint, n)
	for i := range out {
		out[i] = CorridorAt(pl, start.AddDate(0, 0, i))
	}
	return out
}
