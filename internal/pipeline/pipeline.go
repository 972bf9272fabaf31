// Package pipeline joins the resolver, the cache and the numeric engines into
// the operations the binaries expose.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"BTCSentinel/internal/cache"
	"BTCSentinel/internal/calculator"
	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/model"
	"BTCSentinel/internal/option"
	"BTCSentinel/internal/recorder"
	"BTCSentinel/internal/resolver"
	"BTCSentinel/internal/season"
	"BTCSentinel/internal/source"
	"BTCSentinel/internal/strategy"
)

const day = 24 * time.Hour

// Options tunes the pipeline.
type Options struct {
	Symbol       string
	HistoryStart time.Time
	PowerLaw     calculator.PowerLaw
	// OptionDays is the default tenor of ladder suggestions.
	OptionDays float64
	// FundingLookback bounds how far back the backtest funding join reaches
	// when the daily history is older than the funding venues.
	FundingLookback time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Symbol:       "BTCUSDT",
		HistoryStart: time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC),
		PowerLaw:     calculator.DefaultPowerLaw,
		OptionDays:   7,
	}
}

// Pipeline owns the long-lived collaborators and exposes the signal
// operations on top of them.
type Pipeline struct {
	opts     Options
	bars     *resolver.Resolver
	aux      *resolver.MetricChain
	cache    *cache.Service
	rates    *option.RateResolver
	season   *season.Engine
	recorder recorder.Recorder
	now      func() time.Time
	log      *logger.Entry
}

// New wires a pipeline. aux, rates and rec may be nil.
func New(opts Options, bars *resolver.Resolver, aux *resolver.MetricChain, svc *cache.Service, rates *option.RateResolver, rec recorder.Recorder) *Pipeline {
	def := DefaultOptions()
	if opts.Symbol == "" {
		opts.Symbol = def.Symbol
	}
	if opts.HistoryStart.IsZero() {
		opts.HistoryStart = def.HistoryStart
	}
	if opts.PowerLaw == (calculator.PowerLaw{}) {
		opts.PowerLaw = def.PowerLaw
	}
	if opts.OptionDays <= 0 {
		opts.OptionDays = def.OptionDays
	}
	if svc == nil {
		svc = cache.NewService(cache.NewMemoryStore(), nil)
	}
	if aux == nil {
		aux = resolver.NewMetricChain(bars.Health())
	}
	if rates == nil {
		rates = option.NewRateResolver(svc)
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Pipeline{
		opts:     opts,
		bars:     bars,
		aux:      aux,
		cache:    svc,
		rates:    rates,
		season:   season.NewEngine(season.History, opts.PowerLaw),
		recorder: rec,
		now:      time.Now,
		log:      logger.GetLogger().WithComponent("pipeline"),
	}
}

// lastClosedDay is the open time of the most recent complete daily bar.
func (p *Pipeline) lastClosedDay() time.Time {
	return p.now().UTC().Truncate(day).Add(-day)
}

// closedThrough is the open time of the last native bar of the last closed
// day. Store reads are inclusive, so this ends the range on that day's close.
func (p *Pipeline) closedThrough() time.Time {
	return p.lastClosedDay().Add(day - model.Granularity15m.Interval())
}

// DailySeries returns the daily history from HistoryStart through the last
// closed day. Results are cached under the daily key class; a stale result
// only for the realtime TTL.
func (p *Pipeline) DailySeries(ctx context.Context) (model.Series, error) {
	end := p.closedThrough()
	key := cache.Key{
		Class:       cache.ClassDaily,
		Symbol:      p.opts.Symbol,
		Granularity: string(model.GranularityDay),
		From:        p.opts.HistoryStart,
		To:          end,
	}
	return cache.GetOrLoadTTL(ctx, p.cache, key, func(ctx context.Context) (model.Series, time.Duration, error) {
		res, err := p.bars.Resolve(ctx, source.Request{
			Symbol:      p.opts.Symbol,
			Granularity: model.GranularityDay,
			Start:       p.opts.HistoryStart,
			End:         end,
		})
		if err != nil {
			return model.Series{}, 0, err
		}
		if res.Series.Empty() {
			return model.Series{}, 0, fmt.Errorf("%w: empty daily history", model.ErrAllSourcesExhausted)
		}
		fields := logger.Fields{"bars": res.Series.Len(), "source": res.Source, "stitched": res.Stitched}
		if res.Stale {
			p.log.WithFields(fields).Warn("daily history is stale")
			return res.Series, p.cache.TTL(cache.ClassRealtime), nil
		}
		p.log.WithFields(fields).Debug("daily history resolved")
		return res.Series, 0, nil
	})
}

// frame resolves the daily history and derives its indicator frame.
func (p *Pipeline) frame(ctx context.Context) (*calculator.Frame, error) {
	s, err := p.DailySeries(ctx)
	if err != nil {
		return nil, err
	}
	return calculator.Compute(s, calculator.Options{PowerLaw: p.opts.PowerLaw}), nil
}

// Snapshot scores the latest closed day. When no venue can serve history the
// result is the all-unavailable snapshot with NoData set, not an error.
func (p *Pipeline) Snapshot(ctx context.Context) (model.ScoreSnapshot, error) {
	var snap model.ScoreSnapshot
	f, err := p.frame(ctx)
	switch {
	case errors.Is(err, model.ErrAllSourcesExhausted):
		p.log.WithError(err).Warn("no price history, emitting no-data snapshot")
		snap = strategy.NoData(p.lastClosedDay())
	case err != nil:
		return model.ScoreSnapshot{}, err
	default:
		snap = strategy.Evaluate(f)
	}
	snap.ID = uuid.New().String()

	if err := p.recorder.RecordSnapshot(ctx, snap); err != nil {
		p.log.WithError(err).Error("record snapshot failed")
	}
	p.log.WithFields(logger.Fields{
		"id":          snap.ID,
		"cycle":       snap.Cycle,
		"tier":        snap.Tier.Label,
		"unavailable": snap.Unavailable,
		"no_data":     snap.NoData,
	}).Info("score snapshot")
	return snap, nil
}

// History scores every bar of the daily history.
func (p *Pipeline) History(ctx context.Context) ([]model.ScoreSnapshot, error) {
	f, err := p.frame(ctx)
	if err != nil {
		return nil, err
	}
	return strategy.ScoreSeries(f), nil
}

// Forecast runs the season model against the latest close.
func (p *Pipeline) Forecast(ctx context.Context) (model.ForecastResult, error) {
	s, err := p.DailySeries(ctx)
	if err != nil {
		return model.ForecastResult{}, err
	}
	res, err := p.season.Forecast(p.now().UTC().Truncate(day), s.Last().Close, s)
	if err != nil {
		return model.ForecastResult{}, fmt.Errorf("season forecast: %w", err)
	}
	if err := p.recorder.RecordForecast(ctx, res); err != nil {
		p.log.WithError(err).Error("record forecast failed")
	}
	return res, nil
}

// Corridor returns the power-law corridor for the next n days.
func (p *Pipeline) Corridor(n int) []model.CorridorPoint {
	return season.Corridor(p.opts.PowerLaw, p.now().UTC().Truncate(day), n)
}

// RecentScores reads recorded snapshots, newest first.
func (p *Pipeline) RecentScores(ctx context.Context, n int) ([]model.ScoreSnapshot, error) {
	return p.recorder.RecentScores(ctx, n)
}

// SourceHealth reports the health of every venue asked so far.
func (p *Pipeline) SourceHealth() map[string]model.Health {
	return p.bars.Health().Snapshot()
}
