package swing

import (
	"math"
	"time"

	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/model"
)

// series holds the per-bar columns the rules read. Columns that depend only on
// windows are built once and shared across grid evaluations.
type series struct {
	times   []time.Time
	close   []float64
	trend   []float64
	short   []float64
	exit    []float64
	rsi     []float64
	macd    []float64
	signal  []float64
	adx     []float64
	funding []float64
}

func newSeries(f *calculator.Frame, funding []float64, p Params) (*series, error) {
	exit, err := calculator.MovingAverage(p.ExitMA, f.Close)
	if err != nil {
		return nil, err
	}
	fr := funding
	if len(fr) != f.Len() {
		fr = make([]float64, f.Len())
		for i := range fr {
			fr[i] = math.NaN()
			if i < len(funding) {
				fr[i] = funding[i]
			}
		}
	}
	return &series{
		times:   f.Times,
		close:   f.Close,
		trend:   calculator.SMA(f.Close, p.TrendWindow),
		short:   calculator.EMA(f.Close, p.ShortWindow),
		exit:    exit,
		rsi:     f.RSI14,
		macd:    f.MACD.MACD,
		signal:  f.MACD.Signal,
		adx:     f.ADX.ADX,
		funding: fr,
	}, nil
}

// fundingOK is the crowding filter.
func fundingOK(rate float64, p Params) bool {
	if math.IsNaN(rate) {
		return p.FundingPolicy == FundingMissingPasses
	}
	return rate < p.FundingCap
}

// entry evaluates the entry conjunction at bar i. NaN readings fail every
// comparison they take part in.
func (s *series) entry(i int, p Params) bool {
	c := s.close[i]
	if !(c > s.trend[i]) {
		return false
	}
	if !(s.rsi[i] > p.RSIMin) {
		return false
	}
	if !(s.macd[i] > s.signal[i]) {
		return false
	}
	if !(s.adx[i] > p.ADXMin) {
		return false
	}
	if !fundingOK(s.funding[i], p) {
		return false
	}
	ema := s.short[i]
	if !(c >= ema) || ema <= 0 {
		return false
	}
	dist := (c - ema) / ema * 100
	return dist >= p.BandLow && dist <= p.BandHigh
}

// exitSignal reports a close below the defensive MA.
func (s *series) exitSignal(i int) bool {
	return s.close[i] < s.exit[i]
}

// EntrySignals evaluates the entry rule on every bar.
func EntrySignals(f *calculator.Frame, funding []float64, p Params) ([]bool, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s, err := newSeries(f, funding, p)
	if err != nil {
		return nil, err
	}
	out := make([]bool, f.Len())
	for i := range out {
		out[i] = s.entry(i, p)
	}
	return out, nil
}

// AlignFunding joins funding prints to bar times, nearest prior, dropping
// prints older than maxAge.
func AlignFunding(times []time.Time, funding []model.AuxMetric, maxAge time.Duration) []float64 {
	return model.AlignNearestPrior(times, funding, maxAge)
}
