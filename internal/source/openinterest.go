package source

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"BTCSentinel/internal/model"
)

const binanceFuturesDefaultURL = "https://fapi.binance.com"

// BinanceOpenInterest reads hourly open interest history. The venue keeps
// only the last 30 days.
type BinanceOpenInterest struct {
	baseURL string
	deps    Deps
}

func NewBinanceOpenInterest(baseURL string, deps Deps) *BinanceOpenInterest {
	if baseURL == "" {
		baseURL = binanceFuturesDefaultURL
	}
	return &BinanceOpenInterest{baseURL: baseURL, deps: deps}
}

func (b *BinanceOpenInterest) Name() string { return NameBinanceOI }

func (b *BinanceOpenInterest) FetchMetrics(ctx context.Context, from, to time.Time) ([]model.AuxMetric, error) {
	q := url.Values{}
	q.Set("symbol", defaultSymbol)
	q.Set("period", "1h")
	q.Set("limit", "500")
	u := b.baseURL + "/futures/data/openInterestHist?" + q.Encode()

	var rows []struct {
		SumOpenInterest string `json:"sumOpenInterest"`
		Timestamp       int64  `json:"timestamp"`
	}
	if err := getJSON(ctx, b.deps, u, &rows); err != nil {
		return nil, wrap(NameBinanceOI, err)
	}
	out := make([]model.AuxMetric, 0, len(rows))
	for _, r := range rows {
		v, err := strconv.ParseFloat(r.SumOpenInterest, 64)
		if err != nil {
			return nil, integrity(NameBinanceOI, "open interest %q: %v", r.SumOpenInterest, err)
		}
		out = append(out, model.AuxMetric{Time: time.UnixMilli(r.Timestamp).UTC(), Name: model.MetricOpenInterest, Value: v})
	}
	return clipMetrics(model.SortMetrics(out), from, to), nil
}
