// Package resolver walks ordered source chains until one serves usable data.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/metrics"
	"BTCSentinel/internal/model"
	"BTCSentinel/internal/source"
	"BTCSentinel/internal/store"
)

// maxPatchedGaps bounds how many internal holes one resolve tries to fill.
const maxPatchedGaps = 20

// Store is the local cache as the resolver sees it.
type Store interface {
	Granularity() model.Granularity
	Read(ctx context.Context, from, to time.Time) (model.Series, error)
	Upsert(ctx context.Context, bars []model.Bar) (store.UpsertStats, error)
}

// Attempt is the outcome of asking one source.
type Attempt struct {
	Source string       `json:"source"`
	Health model.Health `json:"health"`
	Bars   int          `json:"bars"`
	Err    error        `json:"-"`
	Error  string       `json:"error,omitempty"`
}

// Resolution is a resolved series with the trail of attempts behind it.
type Resolution struct {
	Series   model.Series            `json:"series"`
	Source   string                  `json:"source"`
	Attempts []Attempt               `json:"attempts"`
	Health   map[string]model.Health `json:"health"`
	// Stitched counts native bars appended onto the cached tail.
	Stitched int         `json:"stitched"`
	Stale    bool        `json:"stale"`
	NoData   bool        `json:"no_data"`
	Gaps     []model.Gap `json:"gaps,omitempty"`
}

// Resolver serves bars from the local cache first and falls back through the
// remote venues in order.
type Resolver struct {
	store   Store
	remotes []source.BarSource
	health  *source.HealthTracker
	now     func() time.Time
	log     *logger.Entry
}

// New builds a resolver. st may be nil to run without a local cache; health
// may be nil for a private tracker.
func New(st Store, health *source.HealthTracker, remotes ...source.BarSource) *Resolver {
	if health == nil {
		health = source.NewHealthTracker(0, 0)
	}
	return &Resolver{
		store:   st,
		remotes: remotes,
		health:  health,
		now:     time.Now,
		log:     logger.GetLogger().WithComponent("resolver"),
	}
}

// Health exposes the tracker shared by the chain.
func (r *Resolver) Health() *source.HealthTracker { return r.health }

// Resolve returns bars for req. With a cached range the missing head, the
// internal holes and the trailing gap are fetched and stitched on; without one
// the venues are tried in order. When nothing can serve the range the result
// has NoData set and the error wraps model.ErrAllSourcesExhausted.
func (r *Resolver) Resolve(ctx context.Context, req source.Request) (Resolution, error) {
	if !req.Granularity.Valid() {
		return Resolution{}, fmt.Errorf("resolve: unsupported granularity %q", req.Granularity)
	}
	res := Resolution{Health: make(map[string]model.Health)}
	log := r.log.WithFields(logger.Fields{"granularity": req.Granularity, "start": req.Start, "end": req.End})

	if cached, ok := r.readCache(ctx, req, &res); ok {
		cached = r.fillHead(ctx, req, cached, &res)
		cached = r.patch(ctx, cached, 0, &res)
		out, err := r.stitch(ctx, req, cached, &res)
		if err != nil {
			return res, err
		}
		res.Series = out
		res.Gaps = out.Gaps()
		log.WithFields(logger.Fields{"bars": out.Len(), "stitched": res.Stitched, "stale": res.Stale}).Debug("resolved from cache")
		return res, nil
	}

	s, idx, err := r.chain(ctx, req, 0, &res)
	if err != nil {
		res.NoData = true
		log.WithError(err).Warn("no source could serve the range")
		return res, err
	}
	r.writeThrough(ctx, s)
	s = r.patch(ctx, s, idx+1, &res)
	res.Series = s
	res.Gaps = s.Gaps()
	log.WithFields(logger.Fields{"bars": s.Len(), "source": res.Source, "gaps": len(res.Gaps)}).Debug("resolved from remote")
	return res, nil
}

// readCache returns the cached native bars for the range, if any.
func (r *Resolver) readCache(ctx context.Context, req source.Request, res *Resolution) (model.Series, bool) {
	if r.store == nil {
		return model.Series{}, false
	}
	s, err := r.store.Read(ctx, req.Start, req.End)
	att := Attempt{Source: source.NameLocal, Health: model.HealthAvailable, Bars: s.Len()}
	if err != nil {
		att.Health, att.Err, att.Error = model.HealthDegraded, err, err.Error()
		r.log.WithError(err).Warn("local cache read failed")
	}
	res.record(att)
	metrics.FetchAttempts.WithLabelValues(source.NameLocal, outcome(att)).Inc()
	if err != nil || s.Empty() {
		return model.Series{}, false
	}
	return s, true
}

// fillHead fetches the range between req.Start and the first cached bar and
// writes it through.
func (r *Resolver) fillHead(ctx context.Context, req source.Request, cached model.Series, res *Resolution) model.Series {
	step := cached.Granularity.Interval()
	first := cached.First().Time
	if req.Start.IsZero() || first.Add(-step).Before(req.Start) {
		return cached
	}
	defer func(name string) { res.Source = name }(res.Source)
	headReq := source.Request{Symbol: req.Symbol, Granularity: cached.Granularity, Start: req.Start, End: first.Add(-step)}
	head, _, err := r.chain(ctx, headReq, 0, res)
	if err != nil {
		r.log.WithFields(logger.Fields{"start": headReq.Start, "end": headReq.End}).WithError(err).Debug("head before cache unavailable")
		return cached
	}
	r.writeThrough(ctx, head)
	return union(cached, head.Between(req.Start, headReq.End))
}

// stitch fetches the trailing gap after the cached tail, writes its closed
// bars through and returns the result in the requested granularity. A bar
// that is still forming is served but never persisted.
func (r *Resolver) stitch(ctx context.Context, req source.Request, cached model.Series, res *Resolution) (model.Series, error) {
	defer func() { res.Source = source.NameLocal }()
	step := cached.Granularity.Interval()
	now := r.now().UTC()
	target := now
	if !req.End.IsZero() && req.End.Before(now) {
		target = req.End
	}
	last := cached.Last().Time
	merged := cached
	if target.Sub(last) > step {
		gapReq := source.Request{Symbol: req.Symbol, Granularity: cached.Granularity, Start: last.Add(step), End: target}
		tail, _, err := r.chain(ctx, gapReq, 0, res)
		switch {
		case err == nil && !tail.Empty():
			r.writeThrough(ctx, tail)
			merged = cached.Merge(tail.Between(time.Time{}, target))
			res.Stitched = merged.Len() - cached.Len()
			metrics.ResolverStitches.Inc()
		case ctx.Err() != nil:
			return model.Series{}, ctx.Err()
		default:
			res.Stale = true
			r.log.WithFields(logger.Fields{"last": last, "target": target}).Warn("trailing gap unavailable, serving stale cache")
		}
	}
	if req.Granularity == merged.Granularity {
		return merged, nil
	}
	return merged.Resample(req.Granularity)
}

// chain asks remotes[from:] in order and returns the first non-empty,
// internally consistent series with the index of the venue that served it.
func (r *Resolver) chain(ctx context.Context, req source.Request, from int, res *Resolution) (model.Series, int, error) {
	var errs []error
	for i := from; i < len(r.remotes); i++ {
		src := r.remotes[i]
		if ctx.Err() != nil {
			return model.Series{}, -1, ctx.Err()
		}
		s, err := r.attempt(ctx, src, req, res)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if s.Empty() {
			continue
		}
		res.Source = src.Name()
		return s, i, nil
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no source returned bars"))
	}
	return model.Series{}, -1, fmt.Errorf("%w: %w", model.ErrAllSourcesExhausted, errors.Join(errs...))
}

func (r *Resolver) attempt(ctx context.Context, src source.BarSource, req source.Request, res *Resolution) (model.Series, error) {
	var s model.Series
	err := r.health.Do(src.Name(), func() error {
		var err error
		s, err = src.FetchBars(ctx, req)
		if err != nil {
			return err
		}
		return s.Validate()
	})
	att := Attempt{Source: src.Name(), Health: r.health.Health(src.Name()), Bars: s.Len(), Err: err}
	if err != nil {
		att.Bars, att.Error = 0, err.Error()
		r.log.WithFields(logger.Fields{"source": src.Name(), "health": att.Health}).WithError(err).Warn("source attempt failed")
	}
	res.record(att)
	metrics.FetchAttempts.WithLabelValues(src.Name(), outcome(att)).Inc()
	if err != nil {
		return model.Series{}, err
	}
	return s, nil
}

// patch fills internal holes of s from remotes[from:] and writes the fills
// through.
func (r *Resolver) patch(ctx context.Context, s model.Series, from int, res *Resolution) model.Series {
	gaps := s.Gaps()
	if len(gaps) == 0 || from >= len(r.remotes) {
		return s
	}
	defer func(name string) { res.Source = name }(res.Source)
	step := s.Granularity.Interval()
	for i, g := range gaps {
		if i == maxPatchedGaps || ctx.Err() != nil {
			break
		}
		fill, _, err := r.chain(ctx, source.Request{Symbol: s.Symbol, Granularity: s.Granularity, Start: g.After.Add(step), End: g.Before.Add(-step)}, from, res)
		if err != nil {
			continue
		}
		r.writeThrough(ctx, fill)
		s = union(s, fill.Between(g.After, g.Before))
	}
	return s
}

// FetchRemote runs only the remote part of the chain. An empty series with a
// nil error means every venue answered but none had bars for the range.
func (r *Resolver) FetchRemote(ctx context.Context, req source.Request) (model.Series, []Attempt, error) {
	res := Resolution{Health: make(map[string]model.Health)}
	s, _, err := r.chain(ctx, req, 0, &res)
	if err != nil {
		for _, a := range res.Attempts {
			if a.Err != nil {
				return model.Series{}, res.Attempts, err
			}
		}
		return model.Series{Symbol: req.Symbol, Granularity: req.Granularity}, res.Attempts, nil
	}
	return s, res.Attempts, nil
}

// writeThrough persists the closed bars of s when it is in the store's native
// granularity.
func (r *Resolver) writeThrough(ctx context.Context, s model.Series) {
	if r.store == nil || s.Granularity != r.store.Granularity() {
		return
	}
	bars := s.Between(time.Time{}, r.lastClosed(s.Granularity)).Bars
	if len(bars) == 0 {
		return
	}
	stats, err := r.store.Upsert(ctx, bars)
	if err != nil {
		r.log.WithError(err).Warn("write-through failed")
		return
	}
	r.log.WithFields(logger.Fields{"inserted": stats.Inserted, "updated": stats.Updated}).Debug("write-through")
}

// lastClosed is the open time of the latest bar whose interval has ended.
func (r *Resolver) lastClosed(g model.Granularity) time.Time {
	step := g.Interval()
	return r.now().UTC().Truncate(step).Add(-step)
}

func (res *Resolution) record(a Attempt) {
	res.Attempts = append(res.Attempts, a)
	if res.Health != nil {
		res.Health[a.Source] = a.Health
	}
}

func outcome(a Attempt) string {
	switch {
	case a.Err != nil:
		return "error"
	case a.Bars == 0:
		return "empty"
	}
	return "ok"
}

// union merges two series; bars in a win on equal timestamps.
func union(a, b model.Series) model.Series {
	out := model.Series{Symbol: a.Symbol, Granularity: a.Granularity}
	out.Bars = make([]model.Bar, 0, a.Len()+b.Len())
	out.Bars = append(out.Bars, a.Bars...)
	seen := make(map[int64]struct{}, a.Len())
	for _, bar := range a.Bars {
		seen[bar.Time.UnixMilli()] = struct{}{}
	}
	for _, bar := range b.Bars {
		if _, ok := seen[bar.Time.UnixMilli()]; !ok {
			out.Bars = append(out.Bars, bar)
		}
	}
	sort.Slice(out.Bars, func(i, j int) bool { return out.Bars[i].Time.Before(out.Bars[j].Time) })
	return out
}
