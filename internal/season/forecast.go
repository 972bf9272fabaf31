package season

import (
	"fmt"
	"math"
	"time"

	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/model"
)

// Forecast modes.
const (
	ModeBullPeak   = "bull_peak"
	ModeBearBottom = "bear_bottom"
)

const (
	daysPerMonth = 30.44
	// diminishFactor shrinks the peak multiple for every cycle past the table.
	diminishFactor = 3.5
	minLeadDays    = 30
	cycleDays      = 1460
)

// Info locates a date inside its halving cycle.
type Info struct {
	Season       model.Season
	CycleIndex   int
	Halving      time.Time
	NextHalving  time.Time
	DaysSince    int
	DaysToNext   int
	MonthInCycle int
	Progress     float64
}

// Locate finds the halving cycle that contains asOf.
func Locate(asOf time.Time) (Info, error) {
	asOf = asOf.UTC()
	idx := -1
	for i, h := range Halvings {
		if !h.After(asOf) {
			idx = i
		}
	}
	if idx < 0 {
		return Info{}, fmt.Errorf("%s precedes the first halving: %w", asOf.Format(time.DateOnly), model.ErrInsufficientHistory)
	}
	info := Info{CycleIndex: idx, Halving: Halvings[idx]}
	if idx+1 < len(Halvings) {
		info.NextHalving = Halvings[idx+1]
	} else {
		info.NextHalving = info.Halving.AddDate(0, 0, cycleDays)
	}
	info.DaysSince = int(asOf.Sub(info.Halving).Hours() / 24)
	info.DaysToNext = int(info.NextHalving.Sub(asOf).Hours() / 24)
	total := info.NextHalving.Sub(info.Halving).Hours() / 24
	info.Progress = math.Min(float64(info.DaysSince)/total, 1)
	info.MonthInCycle = int(float64(info.DaysSince) / daysPerMonth)

	switch {
	case info.MonthInCycle < 12:
		info.Season = model.SeasonSpring
	case info.MonthInCycle < 24:
		info.Season = model.SeasonSummer
	case info.MonthInCycle < 36:
		info.Season = model.SeasonAutumn
	default:
		info.Season = model.SeasonWinter
	}
	return info, nil
}

// Engine produces season forecasts from a cycle table.
type Engine struct {
	history  []Cycle
	stats    Stats
	powerLaw calculator.PowerLaw
	log      *logger.Entry
}

// NewEngine builds an engine over history. A nil history uses History.
func NewEngine(history []Cycle, pl calculator.PowerLaw) *Engine {
	if len(history) == 0 {
		history = History
	}
	if pl == (calculator.PowerLaw{}) {
		pl = calculator.DefaultPowerLaw
	}
	return &Engine{
		history:  history,
		stats:    ComputeStats(history),
		powerLaw: pl,
		log:      logger.GetLogger().WithComponent("season"),
	}
}

// Stats returns the aggregates in use.
func (e *Engine) Stats() Stats { return e.stats }

func (e *Engine) diminish(mult float64, cycleIdx int) float64 {
	delta := cycleIdx - (len(e.history) - 1)
	if delta <= 0 {
		return mult
	}
	return mult / math.Pow(diminishFactor, float64(delta))
}

// Forecast projects the cycle target for asOf. daily supplies the halving-day
// close and the previous cycle's top; with no history the current price and
// the cycle table stand in.
func (e *Engine) Forecast(asOf time.Time, price float64, daily model.Series) (model.ForecastResult, error) {
	if !(price > 0) {
		return model.ForecastResult{}, fmt.Errorf("price %.2f must be positive", price)
	}
	info, err := Locate(asOf)
	if err != nil {
		return model.ForecastResult{}, err
	}

	halvingPrice := price
	if c, ok := calculator.CloseOnOrAfter(daily.Bars, info.Halving); ok {
		halvingPrice = c
	}
	res := model.ForecastResult{
		AsOf:         asOf.UTC(),
		Season:       info.Season,
		MonthInCycle: info.MonthInCycle,
		CycleIndex:   info.CycleIndex,
		HalvingDate:  info.Halving,
		NextHalving:  info.NextHalving,
		HalvingPrice: math.Round(halvingPrice),
		CurrentPrice: price,
	}

	var lead int
	if info.Season.Bullish() {
		res.Mode = ModeBullPeak
		med := e.diminish(e.stats.PeakMedian, info.CycleIndex)
		p25 := e.diminish(e.stats.PeakP25, info.CycleIndex)
		p75 := e.diminish(e.stats.PeakP75, info.CycleIndex)

		tMed, tLow, tHigh := halvingPrice*med, halvingPrice*p25, halvingPrice*p75
		if price > tMed {
			// Already through the median: extend from the current price.
			tMed = price * p75 / med
			tHigh = tMed * 1.3
			tLow = tMed * 0.75
		}
		res.TargetMedian = math.Max(tMed, price)
		res.TargetLow = math.Max(tLow, price)
		res.TargetHigh = math.Max(tHigh, price)

		lead = e.stats.PeakDays - info.DaysSince
		res.Confidence = clampInt(int(80-math.Abs(float64(info.DaysSince-e.stats.PeakDays))/5), 40, 85)
	} else {
		res.Mode = ModeBearBottom
		ath := e.referenceATH(info, daily, price)
		res.ReferenceATH = math.Round(ath)
		res.TargetMedian = math.Min(ath*e.stats.BottomMedian, price)
		res.TargetLow = math.Min(ath*e.stats.BottomP25, price)
		res.TargetHigh = math.Min(ath*e.stats.BottomP75, price)

		lead = e.stats.BottomDays - info.DaysSince
		res.Confidence = clampInt(int(80-math.Abs(float64(info.DaysSince-e.stats.BottomDays))/5), 35, 80)
	}
	if lead < minLeadDays {
		lead = minLeadDays
	}
	res.DaysToTarget = lead
	res.ExpectedDate = res.AsOf.AddDate(0, 0, lead)
	res.TargetMedian = math.Round(res.TargetMedian)
	res.TargetLow = math.Round(res.TargetLow)
	res.TargetHigh = math.Round(res.TargetHigh)

	base := halvingPrice
	if res.Mode == ModeBearBottom {
		base = res.ReferenceATH
	}
	res.IntervalLow, res.IntervalHigh = e.interval(info, base)
	band := CorridorAt(e.powerLaw, res.ExpectedDate)
	res.CorridorLow, res.CorridorHigh = math.Round(band.Support), math.Round(band.Upper)

	e.log.WithFields(logger.Fields{
		"season":     res.Season,
		"mode":       res.Mode,
		"target":     res.TargetMedian,
		"confidence": res.Confidence,
	}).Debug("season forecast computed")
	return res, nil
}

// interval is the 25th to 75th percentile band of the per-cycle outcomes
// applied to base, aggregated in log space. Peak multiples are diminished for
// the current cycle first.
func (e *Engine) interval(info Info, base float64) (lo, hi float64) {
	logs := make([]float64, 0, len(e.history))
	for _, c := range e.history {
		mult := c.BottomMultiple
		if info.Season.Bullish() {
			mult = e.diminish(c.PeakMultiple, info.CycleIndex)
		}
		logs = append(logs, math.Log(base*mult))
	}
	return math.Round(math.Exp(percentile(logs, 25))), math.Round(math.Exp(percentile(logs, 75)))
}

// referenceATH is the highest close of the previous cycle, falling back to
// the last table ATH and then to 1.5x the current price.
func (e *Engine) referenceATH(info Info, daily model.Series, price float64) float64 {
	if info.CycleIndex > 0 {
		prev := Halvings[info.CycleIndex-1]
		if high, ok := calculator.HighestClose(daily.Bars, prev, info.Halving); ok {
			return high
		}
	}
	if len(e.history) > 0 {
		return e.history[len(e.history)-1].ATH
	}
	return price * 1.5
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
