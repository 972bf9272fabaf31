// Package app builds the long-lived object graph shared by the binaries.
package app

import (
	"errors"
	"fmt"

	"BTCSentinel/internal/cache"
	"BTCSentinel/internal/collector"
	"BTCSentinel/internal/config"
	"BTCSentinel/internal/fetch"
	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/model"
	"BTCSentinel/internal/option"
	"BTCSentinel/internal/pipeline"
	"BTCSentinel/internal/recorder"
	"BTCSentinel/internal/resolver"
	"BTCSentinel/internal/source"
	"BTCSentinel/internal/store"
)

// App holds everything a binary needs. Close releases the store, the
// recorder and the cache backend.
type App struct {
	Config    *config.Config
	Store     *store.YearStore
	Local     *source.Local
	Health    *source.HealthTracker
	Resolver  *resolver.Resolver
	Metrics   *resolver.MetricChain
	Collector *collector.Collector
	Pipeline  *pipeline.Pipeline
	Recorder  recorder.Recorder

	closers []func() error
}

// Build wires the store, the venue chains, the cache and the engines from cfg.
// withRecorder opens the SQLite recorder; the collector CLI runs without it.
func Build(cfg *config.Config, withRecorder bool) (*App, error) {
	log := logger.GetLogger().WithComponent("app")
	a := &App{Config: cfg}

	st, err := store.Open(cfg.Store.Dir, cfg.Symbol, model.Granularity15m)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = st
	a.Local = source.NewLocal(st)
	a.closers = append(a.closers, st.Close)

	deps := Deps(cfg)
	a.Health = source.NewHealthTracker(cfg.Health.Failures, cfg.Health.Cooldown)

	remotes := make([]source.BarSource, 0, len(cfg.Sources.Chain))
	for _, name := range cfg.Sources.Chain {
		src, err := barSource(cfg, name, deps)
		if err != nil {
			a.Close()
			return nil, err
		}
		remotes = append(remotes, src)
	}
	a.Resolver = resolver.New(st, a.Health, remotes...)

	var deep source.BarSource
	if cfg.Sources.DeepHistory != "" {
		if deep, err = barSource(cfg, cfg.Sources.DeepHistory, deps); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Collector = collector.NewCollector(st, a.Resolver, deep)

	a.Metrics, err = metricChains(cfg, deps, a.Health)
	if err != nil {
		a.Close()
		return nil, err
	}

	svc := cache.NewService(a.cacheStore(), cfg.CacheTTLs())
	rates := option.NewRateResolver(svc,
		source.NewAaveRate(cfg.Sources.YieldsURL, deps),
		source.NewMakerRate(cfg.Sources.YieldsURL, deps),
	)

	a.Recorder = recorder.NewNoopRecorder()
	if withRecorder && cfg.Recorder.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Recorder.SQLitePath)
		if err != nil {
			log.WithError(err).Warn("init sqlite recorder failed, using noop")
		} else {
			a.Recorder = sr
			a.closers = append(a.closers, sr.Close)
		}
	}

	a.Pipeline = pipeline.New(pipeline.Options{
		Symbol:       cfg.Symbol,
		HistoryStart: cfg.Store.HistoryStart,
		OptionDays:   cfg.Option.Days,
	}, a.Resolver, a.Metrics, svc, rates, a.Recorder)

	log.WithFields(logger.Fields{
		"store":   cfg.Store.Dir,
		"chain":   cfg.Sources.Chain,
		"metrics": a.Metrics.Names(),
		"cache":   cfg.Cache.Backend,
	}).Info("application wired")
	return a, nil
}

// Deps builds the shared HTTP client and retry policy.
func Deps(cfg *config.Config) source.Deps {
	var lim *fetch.HostLimiter
	if cfg.HTTP.RequestsPerSecond > 0 {
		lim = fetch.NewHostLimiter(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst)
	}
	return source.Deps{
		HTTP: fetch.NewHTTPClient(fetch.Options{
			ProxyURL: cfg.Proxy,
			Timeout:  cfg.HTTP.Timeout,
			Limiter:  lim,
		}),
		Policy: fetch.Policy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay,
			Retryable:  fetch.IsTransient,
		},
	}
}

func barSource(cfg *config.Config, name string, deps source.Deps) (source.BarSource, error) {
	switch name {
	case source.NameBinance:
		return source.NewBinanceSpot(cfg.Sources.BinanceURL, deps), nil
	case source.NameBybit:
		return source.NewBybit(cfg.Sources.BybitURL, deps), nil
	case source.NameOKX:
		return source.NewOKX(cfg.Sources.OKXURL, deps), nil
	case source.NameKraken:
		return source.NewKraken(cfg.Sources.KrakenURL, deps), nil
	case source.NameMock:
		return &source.MockSource{}, nil
	}
	return nil, fmt.Errorf("unknown bar venue %q", name)
}

func metricChains(cfg *config.Config, deps source.Deps, health *source.HealthTracker) (*resolver.MetricChain, error) {
	mc := resolver.NewMetricChain(health)
	mc.Register(model.MetricFundingRate,
		source.NewBinanceFunding(cfg.Sources.BinanceFuturesURL, deps, cfg.Sources.FundingParallelism),
		source.NewBybitFunding(cfg.Sources.BybitURL, deps),
	)
	mc.Register(model.MetricOpenInterest, source.NewBinanceOpenInterest(cfg.Sources.BinanceFuturesURL, deps))
	mc.Register(model.MetricTVL, source.NewDefiLlamaTVL(cfg.Sources.DefiLlamaURL, deps))
	mc.Register(model.MetricStablecoinSupply, source.NewStablecoins(cfg.Sources.StablecoinsURL, deps))
	mc.Register(model.MetricFearGreed, source.NewFearGreed(cfg.Sources.FearGreedURL, deps))
	for _, id := range cfg.Sources.FREDSeries {
		f, err := source.NewFRED(cfg.Sources.FREDURL, id, deps)
		if err != nil {
			return nil, err
		}
		mc.Register(f.Metric(), f)
	}
	return mc, nil
}

func (a *App) cacheStore() cache.Store {
	if a.Config.Cache.Backend != "redis" {
		return cache.NewMemoryStore()
	}
	r := a.Config.Cache.Redis
	rs := cache.NewRedisStore(r.Addr, r.Password, r.DB)
	a.closers = append(a.closers, rs.Close)
	return rs
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
