package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"BTCSentinel/internal/fetch"
	"BTCSentinel/internal/model"
)

const bybitPageLimit = 1000

// Bybit is backup venue A.
type Bybit struct {
	client *bybit.Client
	policy fetch.Policy
}

// NewBybit builds the adapter. An empty baseURL keeps the SDK default.
func NewBybit(baseURL string, deps Deps) *Bybit {
	c := bybit.NewBybitHttpClient("", "")
	if baseURL != "" {
		c = bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(baseURL))
	}
	c.HTTPClient = deps.client()
	return &Bybit{client: c, policy: deps.Policy}
}

func (b *Bybit) Name() string { return NameBybit }

type bybitKlineResult struct {
	Symbol   string     `json:"symbol"`
	Category string     `json:"category"`
	List     [][]string `json:"list"`
}

func bybitInterval(g model.Granularity) string {
	if g == model.GranularityDay {
		return "D"
	}
	return "15"
}

type bybitCall func(ctx context.Context, params map[string]interface{}) (*bybit.ServerResponse, error)

func (b *Bybit) kline(ctx context.Context, params map[string]interface{}) (*bybit.ServerResponse, error) {
	return b.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
}

func (b *Bybit) fundingHistory(ctx context.Context, params map[string]interface{}) (*bybit.ServerResponse, error) {
	return b.client.NewUtaBybitServiceWithParams(params).GetFundingRateHistory(ctx)
}

// call runs one SDK request and decodes its result.
func (b *Bybit) call(ctx context.Context, source string, params map[string]interface{}, do bybitCall, dst interface{}) error {
	resp, err := fetch.Do(ctx, b.policy, func(ctx context.Context) (*bybit.ServerResponse, error) {
		return do(ctx, params)
	})
	if err != nil {
		return wrap(source, err)
	}
	if resp == nil {
		return integrity(source, "empty response")
	}
	if resp.RetCode != 0 {
		return model.NewSourceError(source, model.ErrPermanentSource, fmt.Errorf("retCode %d: %s", resp.RetCode, resp.RetMsg))
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return integrity(source, "encode result: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return integrity(source, "decode result: %v", err)
	}
	return nil
}

// FetchBars pages backwards from the end because the venue lists newest first.
func (b *Bybit) FetchBars(ctx context.Context, req Request) (model.Series, error) {
	if err := req.validate(NameBybit); err != nil {
		return model.Series{}, err
	}
	step := req.Granularity.Interval()
	end := endOrNow(req.End)
	var bars []model.Bar

	for page := 0; !end.Before(req.Start) && page < maxPagesPerFetch; page++ {
		params := map[string]interface{}{
			"category": "spot",
			"symbol":   req.symbol(),
			"interval": bybitInterval(req.Granularity),
			"start":    req.Start.UnixMilli(),
			"end":      end.UnixMilli(),
			"limit":    bybitPageLimit,
		}
		var res bybitKlineResult
		if err := b.call(ctx, NameBybit, params, b.kline, &res); err != nil {
			return model.Series{}, err
		}
		if len(res.List) == 0 {
			break
		}
		oldest := end
		for _, row := range res.List {
			if len(row) < 6 {
				return model.Series{}, integrity(NameBybit, "kline row has %d fields", len(row))
			}
			ms, err := strconv.ParseInt(row[0], 10, 64)
			if err != nil {
				return model.Series{}, integrity(NameBybit, "kline time %q: %v", row[0], err)
			}
			t := time.UnixMilli(ms).UTC()
			bar, err := parseBar(t, row[1], row[2], row[3], row[4], row[5])
			if err != nil {
				return model.Series{}, integrity(NameBybit, "%v", err)
			}
			bars = append(bars, bar)
			if t.Before(oldest) {
				oldest = t
			}
		}
		if len(res.List) < bybitPageLimit || !oldest.Before(end) {
			break
		}
		end = oldest.Add(-step)
	}
	return normalize(req.symbol(), req.Granularity, bars, req), nil
}

// BybitFunding is the backup funding-rate history.
type BybitFunding struct {
	*Bybit
}

// NewBybitFunding builds the funding adapter on the same SDK client setup.
func NewBybitFunding(baseURL string, deps Deps) *BybitFunding {
	return &BybitFunding{Bybit: NewBybit(baseURL, deps)}
}

func (b *BybitFunding) Name() string { return NameBybitFund }

type bybitFundingResult struct {
	Category string `json:"category"`
	List     []struct {
		Symbol               string `json:"symbol"`
		FundingRate          string `json:"fundingRate"`
		FundingRateTimestamp string `json:"fundingRateTimestamp"`
	} `json:"list"`
}

// FetchMetrics walks the history backwards from to, 200 records per page.
func (b *BybitFunding) FetchMetrics(ctx context.Context, from, to time.Time) ([]model.AuxMetric, error) {
	end := endOrNow(to)
	var out []model.AuxMetric
	for page := 0; !end.Before(from) && page < maxPagesPerFetch; page++ {
		params := map[string]interface{}{
			"category":  "linear",
			"symbol":    defaultSymbol,
			"startTime": from.UnixMilli(),
			"endTime":   end.UnixMilli(),
			"limit":     200,
		}
		var res bybitFundingResult
		if err := b.call(ctx, NameBybitFund, params, b.fundingHistory, &res); err != nil {
			return nil, err
		}
		if len(res.List) == 0 {
			break
		}
		oldest := end
		for _, r := range res.List {
			ms, err := strconv.ParseInt(r.FundingRateTimestamp, 10, 64)
			if err != nil {
				return nil, integrity(NameBybitFund, "funding time %q: %v", r.FundingRateTimestamp, err)
			}
			v, err := strconv.ParseFloat(r.FundingRate, 64)
			if err != nil {
				return nil, integrity(NameBybitFund, "funding rate %q: %v", r.FundingRate, err)
			}
			t := time.UnixMilli(ms).UTC()
			out = append(out, model.AuxMetric{Time: t, Name: model.MetricFundingRate, Value: v})
			if t.Before(oldest) {
				oldest = t
			}
		}
		if len(res.List) < 200 || !oldest.Before(end) {
			break
		}
		end = oldest.Add(-time.Millisecond)
	}
	return clipMetrics(model.SortMetrics(out), from, to), nil
}

// clipMetrics keeps from <= t <= to. A zero bound is open.
func clipMetrics(ms []model.AuxMetric, from, to time.Time) []model.AuxMetric {
	out := ms[:0]
	for _, m := range ms {
		if !from.IsZero() && m.Time.Before(from) {
			continue
		}
		if !to.IsZero() && m.Time.After(to) {
			continue
		}
		out = append(out, m)
	}
	return out
}
