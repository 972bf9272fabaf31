package source

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"BTCSentinel/internal/fetch"
	"BTCSentinel/internal/model"
)

const (
	defiLlamaDefaultURL   = "https://api.llama.fi"
	stablecoinsDefaultURL = "https://stablecoins.llama.fi"
	// readings at or below this are placeholder rows in early history
	minStablecoinSupply = 1000
)

// flexUnix decodes a unix-seconds timestamp sent either as a number or a
// quoted string.
type flexUnix int64

func (f *flexUnix) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*f = flexUnix(v)
	return nil
}

func (f flexUnix) Time() time.Time { return time.Unix(int64(f), 0).UTC() }

// DefiLlamaTVL is the Bitcoin chain TVL history.
type DefiLlamaTVL struct {
	baseURL string
	deps    Deps
}

func NewDefiLlamaTVL(baseURL string, deps Deps) *DefiLlamaTVL {
	if baseURL == "" {
		baseURL = defiLlamaDefaultURL
	}
	return &DefiLlamaTVL{baseURL: baseURL, deps: deps}
}

func (d *DefiLlamaTVL) Name() string { return NameDefiLlamaTVL }

func (d *DefiLlamaTVL) FetchMetrics(ctx context.Context, from, to time.Time) ([]model.AuxMetric, error) {
	var rows []struct {
		Date flexUnix `json:"date"`
		TVL  float64  `json:"tvl"`
	}
	u := d.baseURL + "/v2/historicalChainTvl/Bitcoin"
	if err := getJSON(ctx, d.deps, u, &rows); err != nil {
		return nil, wrap(NameDefiLlamaTVL, err)
	}
	out := make([]model.AuxMetric, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.AuxMetric{Time: r.Date.Time(), Name: model.MetricTVL, Value: r.TVL})
	}
	return clipMetrics(model.SortMetrics(out), from, to), nil
}

// Stablecoins is the aggregate USD-pegged stablecoin supply.
type Stablecoins struct {
	baseURL string
	deps    Deps
}

func NewStablecoins(baseURL string, deps Deps) *Stablecoins {
	if baseURL == "" {
		baseURL = stablecoinsDefaultURL
	}
	return &Stablecoins{baseURL: baseURL, deps: deps}
}

func (s *Stablecoins) Name() string { return NameStablecoins }

func (s *Stablecoins) FetchMetrics(ctx context.Context, from, to time.Time) ([]model.AuxMetric, error) {
	var rows []struct {
		Date             flexUnix `json:"date"`
		TotalCirculating struct {
			PeggedUSD float64 `json:"peggedUSD"`
		} `json:"totalCirculating"`
	}
	u := s.baseURL + "/stablecoincharts/all"
	if err := getJSON(ctx, s.deps, u, &rows); err != nil {
		return nil, wrap(NameStablecoins, err)
	}
	out := make([]model.AuxMetric, 0, len(rows))
	for _, r := range rows {
		v := r.TotalCirculating.PeggedUSD
		if v <= minStablecoinSupply {
			continue
		}
		out = append(out, model.AuxMetric{Time: r.Date.Time(), Name: model.MetricStablecoinSupply, Value: v})
	}
	return clipMetrics(model.SortMetrics(out), from, to), nil
}

// getJSON is a retried GET decoding into dst.
func getJSON(ctx context.Context, deps Deps, u string, dst interface{}) error {
	_, err := fetch.Do(ctx, deps.Policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fetch.GetJSON(ctx, deps.client(), u, dst)
	})
	return err
}
