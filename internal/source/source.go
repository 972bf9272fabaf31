// Package source adapts upstream venues and data providers into model series
// and metrics. Adapters are stateless request/normalize functions; every
// remote call goes through fetch.Do.
package source

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"BTCSentinel/internal/fetch"
	"BTCSentinel/internal/model"
)

// Source names.
const (
	NameLocal         = "local"
	NameBinance       = "binance"
	NameBybit         = "bybit"
	NameOKX           = "okx"
	NameKraken        = "kraken"
	NameMock          = "mock"
	NameDefiLlamaTVL  = "defillama_tvl"
	NameStablecoins   = "defillama_stablecoins"
	NameFearGreed     = "alternative_me"
	NameBinanceFund   = "binance_funding"
	NameBybitFund     = "bybit_funding"
	NameBinanceOI     = "binance_open_interest"
	NameFREDPrefix    = "fred_"
	NameAaveRate      = model.RateSourceAave
	NameMakerRate     = model.RateSourceMaker
	defaultSymbol     = "BTCUSDT"
	defaultPageLimit  = 1000
	maxPagesPerFetch  = 5000
	userAgent         = "btcsentinel/1.0"
	defaultHTTPTimeout = 30 * time.Second
)

// Request is a bar query. Start and End are inclusive open times.
type Request struct {
	Symbol      string
	Granularity model.Granularity
	Start       time.Time
	End         time.Time
}

func (r Request) symbol() string {
	if r.Symbol == "" {
		return defaultSymbol
	}
	return r.Symbol
}

func (r Request) validate(source string) error {
	if !r.Granularity.Valid() {
		return model.NewSourceError(source, model.ErrPermanentSource, fmt.Errorf("unsupported granularity %q", r.Granularity))
	}
	if !r.End.IsZero() && r.End.Before(r.Start) {
		return model.NewSourceError(source, model.ErrPermanentSource, fmt.Errorf("end %s before start %s", r.End, r.Start))
	}
	return nil
}

// BarSource yields OHLCV series.
type BarSource interface {
	Name() string
	FetchBars(ctx context.Context, req Request) (model.Series, error)
}

// MetricSource yields auxiliary metric history.
type MetricSource interface {
	Name() string
	FetchMetrics(ctx context.Context, from, to time.Time) ([]model.AuxMetric, error)
}

// RateSource yields an annual lending rate as a fraction.
type RateSource interface {
	Name() string
	FetchRate(ctx context.Context) (float64, error)
}

// Deps are shared by the remote adapters.
type Deps struct {
	HTTP   *http.Client
	Policy fetch.Policy
}

// DefaultDeps builds a client with the default timeout and retry policy.
func DefaultDeps() Deps {
	return Deps{HTTP: fetch.NewHTTPClient(fetch.Options{Timeout: defaultHTTPTimeout}), Policy: fetch.DefaultPolicy()}
}

func (d Deps) client() *http.Client {
	if d.HTTP == nil {
		return http.DefaultClient
	}
	return d.HTTP
}

// wrap tags err with the source and its kind.
func wrap(source string, err error) error {
	if err == nil {
		return nil
	}
	kind := model.KindOf(err)
	if kind == nil {
		kind = model.ErrPermanentSource
	}
	return model.NewSourceError(source, kind, err)
}

func integrity(source string, format string, args ...interface{}) error {
	return model.NewSourceError(source, model.ErrDataIntegrity, fmt.Errorf(format, args...))
}

// normalize sorts bars, drops duplicates, and clips to the request range.
func normalize(symbol string, g model.Granularity, bars []model.Bar, req Request) model.Series {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	out := model.Series{Symbol: symbol, Granularity: g}
	for _, b := range bars {
		if !req.Start.IsZero() && b.Time.Before(req.Start) {
			continue
		}
		if !req.End.IsZero() && b.Time.After(req.End) {
			continue
		}
		if n := len(out.Bars); n > 0 && out.Bars[n-1].Time.Equal(b.Time) {
			out.Bars[n-1] = b
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}

// parseBar converts string OHLCV fields.
func parseBar(t time.Time, o, h, l, c, v string) (model.Bar, error) {
	vals := [5]float64{}
	for i, s := range []string{o, h, l, c, v} {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("bar %s field %d: %w", t.Format(time.RFC3339), i, err)
		}
		vals[i] = f
	}
	return model.Bar{Time: t.UTC(), Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}

func endOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
