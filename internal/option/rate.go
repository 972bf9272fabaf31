package option

import (
	"context"
	"time"

	"BTCSentinel/internal/cache"
	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/model"
)

// Bounds of a plausible lending rate. Readings outside are treated as bad data.
const (
	MinRate     = 0.005
	MaxRate     = 0.20
	DefaultRate = 0.04
)

// RateSource yields an annual rate as a fraction.
type RateSource interface {
	Name() string
	FetchRate(ctx context.Context) (float64, error)
}

// RateResolver walks its sources in order and falls back to DefaultRate. The
// winning quote, fallback included, is cached under the rate key class.
type RateResolver struct {
	sources []RateSource
	cache   *cache.Service
	now     func() time.Time
	log     *logger.Entry
}

// NewRateResolver builds a resolver. svc may be nil to disable caching.
func NewRateResolver(svc *cache.Service, sources ...RateSource) *RateResolver {
	return &RateResolver{
		sources: sources,
		cache:   svc,
		now:     time.Now,
		log:     logger.GetLogger().WithComponent("rate"),
	}
}

var rateKey = cache.Key{Class: cache.ClassRate, Extra: "risk_free"}

// Resolve returns the current discount rate with its provenance.
func (r *RateResolver) Resolve(ctx context.Context) model.RateQuote {
	if r.cache == nil {
		q, _ := r.load(ctx)
		return q
	}
	q, err := cache.GetOrLoad(ctx, r.cache, rateKey, r.load)
	if err != nil {
		// load never fails; keep the static default if the cache path does
		return r.fallback()
	}
	return q
}

func (r *RateResolver) load(ctx context.Context) (model.RateQuote, error) {
	for i, src := range r.sources {
		rate, err := src.FetchRate(ctx)
		entry := r.log.WithField("source", src.Name())
		if err != nil {
			entry.WithError(err).Warn("rate source failed")
			continue
		}
		if rate < MinRate || rate > MaxRate {
			entry.WithField("rate", rate).Warn("rate outside plausible range")
			continue
		}
		return model.RateQuote{Rate: rate, Source: src.Name(), Step: i + 1, FetchedAt: r.now().UTC()}, nil
	}
	r.log.WithField("rate", DefaultRate).Info("using static default rate")
	return r.fallback(), nil
}

func (r *RateResolver) fallback() model.RateQuote {
	return model.RateQuote{
		Rate:      DefaultRate,
		Source:    model.RateSourceFallback,
		Step:      len(r.sources) + 1,
		FetchedAt: r.now().UTC(),
	}
}
