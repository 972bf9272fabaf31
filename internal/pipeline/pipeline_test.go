package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BTCSentinel/internal/model"
	"BTCSentinel/internal/option"
	"BTCSentinel/internal/recorder"
	"BTCSentinel/internal/resolver"
	"BTCSentinel/internal/source"
	"BTCSentinel/internal/store"
	"BTCSentinel/internal/strategy"
	"BTCSentinel/internal/swing"
)

var testNow = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

type memRecorder struct {
	recorder.NoopRecorder
	mu        sync.Mutex
	snaps     []model.ScoreSnapshot
	forecasts []model.ForecastResult
	runs      []recorder.BacktestRun
}

func (m *memRecorder) RecordSnapshot(_ context.Context, s model.ScoreSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, s)
	return nil
}

func (m *memRecorder) RecordForecast(_ context.Context, f model.ForecastResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts = append(m.forecasts, f)
	return nil
}

func (m *memRecorder) RecordBacktest(_ context.Context, r recorder.BacktestRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

type fixedMetrics struct {
	name string
	ms   []model.AuxMetric
	err  error
}

func (f *fixedMetrics) Name() string { return f.name }

func (f *fixedMetrics) FetchMetrics(_ context.Context, from, to time.Time) ([]model.AuxMetric, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.AuxMetric
	for _, m := range f.ms {
		if !m.Time.Before(from) && !m.Time.After(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func newPipeline(t *testing.T, mock *source.MockSource, aux *resolver.MetricChain) (*Pipeline, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	opts := DefaultOptions()
	opts.HistoryStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New(opts, resolver.New(nil, nil, mock), aux, nil, nil, rec)
	p.now = func() time.Time { return testNow }
	return p, rec
}

func TestDailySeries_CachedPerDay(t *testing.T) {
	ctx := context.Background()
	mock := &source.MockSource{SourceName: source.NameBinance, Price: 40000}
	p, _ := newPipeline(t, mock, nil)

	s, err := p.DailySeries(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.GranularityDay, s.Granularity)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), s.Bars[0].Time)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), s.Last().Time)

	again, err := p.DailySeries(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Len(), again.Len())
	assert.Len(t, mock.Requests(), 1)
}

func TestDailySeries_LastDayAggregatesEveryStoredBar(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(t.TempDir(), "BTCUSDT", model.Granularity15m)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	from := time.Date(2024, 5, 25, 0, 0, 0, 0, time.UTC)
	native, err := (&source.MockSource{Price: 40000}).FetchBars(ctx, source.Request{
		Granularity: model.Granularity15m, Start: from, End: testNow.Add(-15 * time.Minute),
	})
	require.NoError(t, err)
	_, err = st.Upsert(ctx, native.Bars)
	require.NoError(t, err)

	remote := &source.MockSource{SourceName: source.NameBinance, Price: 40000}
	opts := DefaultOptions()
	opts.HistoryStart = from
	p := New(opts, resolver.New(st, nil, remote), nil, nil, nil, nil)
	p.now = func() time.Time { return testNow }

	s, err := p.DailySeries(ctx)
	require.NoError(t, err)
	require.Len(t, s.Bars, 9)
	assert.Empty(t, remote.Requests())

	lastDay := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	closing := native.Between(lastDay.Add(day-15*time.Minute), lastDay.Add(day-15*time.Minute))
	require.Len(t, closing.Bars, 1)

	last := s.Last()
	assert.Equal(t, lastDay, last.Time)
	assert.Equal(t, 96*1000.0, last.Volume)
	assert.Equal(t, closing.Bars[0].Close, last.Close)
	assert.Equal(t, s.Bars[len(s.Bars)-2].Volume, last.Volume)
}

func TestSnapshot_ScoresAndRecords(t *testing.T) {
	ctx := context.Background()
	p, rec := newPipeline(t, &source.MockSource{Price: 40000}, nil)

	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.NoData)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), snap.Time)
	assert.GreaterOrEqual(t, snap.Cycle, -100.0)
	assert.LessOrEqual(t, snap.Cycle, 100.0)
	require.Len(t, rec.snaps, 1)
	assert.Equal(t, snap.ID, rec.snaps[0].ID)
}

func TestSnapshot_DegradesWithoutData(t *testing.T) {
	ctx := context.Background()
	mock := &source.MockSource{Err: model.NewSourceError(source.NameMock, model.ErrPermanentSource, errors.New("451"))}
	p, rec := newPipeline(t, mock, nil)

	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.NoData)
	assert.Equal(t, strategy.NoDataTier, snap.Tier)
	assert.Equal(t, len(model.Slots), snap.Unavailable)
	assert.Zero(t, countAvailable(snap))
	require.Len(t, rec.snaps, 1)

	_, err = p.Forecast(ctx)
	assert.ErrorIs(t, err, model.ErrAllSourcesExhausted)
}

func countAvailable(s model.ScoreSnapshot) int {
	n := 0
	for _, sub := range append(append([]model.SubScore{}, s.Bottom...), s.Heat...) {
		if sub.Available {
			n++
		}
	}
	return n
}

func TestForecast_Records(t *testing.T) {
	ctx := context.Background()
	p, rec := newPipeline(t, &source.MockSource{Price: 40000}, nil)

	f, err := p.Forecast(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SeasonSpring, f.Season)
	assert.InDelta(t, 40000, f.CurrentPrice, 40000*0.06)
	assert.Greater(t, f.IntervalHigh, f.IntervalLow)
	require.Len(t, rec.forecasts, 1)
}

func TestBacktestAndOptimize_Record(t *testing.T) {
	ctx := context.Background()
	p, rec := newPipeline(t, &source.MockSource{Price: 40000}, nil)

	res, err := p.Backtest(ctx, swing.DefaultParams())
	require.NoError(t, err)
	assert.Greater(t, res.Bars, 0)
	require.Len(t, rec.runs, 1)
	assert.NotEmpty(t, rec.runs[0].ID)

	grid := swing.Grid{BandLow: []float64{0}, BandHigh: []float64{1.5, 3}, RSIMin: []float64{50}, ADXMin: []float64{20}}
	results, err := p.Optimize(ctx, swing.DefaultParams(), grid, swing.ObjectiveROI)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	require.Len(t, rec.runs, 2)
	best := rec.runs[1].Params.(swing.Params)
	assert.Equal(t, results[0].BandHigh, best.BandHigh)

	bad := swing.DefaultParams()
	bad.BandLow, bad.BandHigh = 2, 1
	_, err = p.Backtest(ctx, bad)
	assert.Error(t, err)
}

func TestOptionQuote_UsesFallbackRate(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(t, &source.MockSource{Price: 40000}, nil)

	s, err := p.DailySeries(ctx)
	require.NoError(t, err)
	spot := s.Last().Close

	q, err := p.OptionQuote(ctx, model.BuyLow, spot*0.9, 7)
	require.NoError(t, err)
	assert.Equal(t, model.RateSourceFallback, q.Rate.Source)
	assert.InDelta(t, spot, q.Spot, 1e-9)
	assert.GreaterOrEqual(t, q.Volatility, 0.3)

	rungs, err := p.Ladder(ctx, model.SellHigh)
	require.NoError(t, err)
	require.Len(t, rungs, 3)
	assert.Greater(t, rungs[1].Quote.Strike, rungs[0].Quote.Strike)
}

func TestDualBacktest_OverDailyHistory(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(t, &source.MockSource{Price: 40000}, nil)

	res, err := p.DualBacktest(ctx, option.DefaultBacktestParams)
	require.NoError(t, err)
	require.Greater(t, res.Opened, 0)
	assert.Contains(t, []string{model.AssetBTC, model.AssetUSDT}, res.FinalAsset)
	assert.LessOrEqual(t, res.Exercised, res.Opened)
	for k, ev := range res.Events {
		want := "open"
		if k%2 == 1 {
			want = "settle"
		}
		assert.Equal(t, want, ev.Action)
	}
}

func TestFundingAndAuxLatest(t *testing.T) {
	ctx := context.Background()
	health := source.NewHealthTracker(0, 0)
	aux := resolver.NewMetricChain(health)

	prints := []model.AuxMetric{
		{Time: testNow.Add(-16 * time.Hour).Truncate(time.Hour), Name: model.MetricFundingRate, Value: 0.0001},
		{Time: testNow.Add(-8 * time.Hour).Truncate(time.Hour), Name: model.MetricFundingRate, Value: 0.0002},
	}
	aux.Register(model.MetricFundingRate,
		&fixedMetrics{name: source.NameBinanceFund, err: model.NewSourceError(source.NameBinanceFund, model.ErrPermanentSource, errors.New("451"))},
		&fixedMetrics{name: source.NameBybitFund, ms: prints},
	)
	aux.Register(model.MetricTVL, &fixedMetrics{name: source.NameDefiLlamaTVL, err: errors.New("down")})

	p, _ := newPipeline(t, &source.MockSource{Price: 40000}, aux)

	got, err := p.Funding(ctx, testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.0002, got[1].Value)

	latest, err := p.AuxLatest(ctx)
	require.NoError(t, err)
	require.Contains(t, latest, model.MetricFundingRate)
	assert.NotContains(t, latest, model.MetricTVL)
	assert.Equal(t, 0.0002, latest[model.MetricFundingRate].Value)
}

func TestInflation_FromCPIChain(t *testing.T) {
	aux := resolver.NewMetricChain(source.NewHealthTracker(0, 0))
	var prints []model.AuxMetric
	for k := 14; k >= 1; k-- {
		prints = append(prints, model.AuxMetric{
			Time:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -k, 0),
			Name:  model.MetricCPI,
			Value: 300 + float64(14-k),
		})
	}
	aux.Register(model.MetricCPI, &fixedMetrics{name: source.NameFREDPrefix + "CPIAUCSL", ms: prints})
	p, _ := newPipeline(t, &source.MockSource{Price: 40000}, aux)

	in, err := p.Inflation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-05", in.Month)
	assert.InDelta(t, (313.0/301-1)*100, in.YoY, 1e-9)
	assert.Equal(t, model.InflationStable, in.Trend)
}
