package source

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/sync/errgroup"

	"BTCSentinel/internal/fetch"
	"BTCSentinel/internal/model"
)

const (
	fundingInterval     = 8 * time.Hour
	defaultFundingPages = 4
)

// BinanceFundingStart is the first BTCUSDT perpetual funding event.
var BinanceFundingStart = time.Date(2019, 9, 10, 0, 0, 0, 0, time.UTC)

// BinanceFunding reads perpetual funding history. The range is cut into pages
// of 1000 funding events, fetched with bounded parallelism.
type BinanceFunding struct {
	client      *futures.Client
	policy      fetch.Policy
	parallelism int
}

// NewBinanceFunding builds the adapter. parallelism <= 0 uses 4.
func NewBinanceFunding(baseURL string, deps Deps, parallelism int) *BinanceFunding {
	c := futures.NewClient("", "")
	c.HTTPClient = deps.client()
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	if parallelism <= 0 {
		parallelism = defaultFundingPages
	}
	return &BinanceFunding{client: c, policy: deps.Policy, parallelism: parallelism}
}

func (b *BinanceFunding) Name() string { return NameBinanceFund }

// FetchMetrics returns the funding rates in [from, to], sorted and deduplicated.
func (b *BinanceFunding) FetchMetrics(ctx context.Context, from, to time.Time) ([]model.AuxMetric, error) {
	if from.IsZero() || from.Before(BinanceFundingStart) {
		from = BinanceFundingStart
	}
	to = endOrNow(to)
	if to.Before(from) {
		return nil, nil
	}
	span := fundingInterval * defaultPageLimit
	n := int(to.Sub(from)/span) + 1
	pages := make([][]model.AuxMetric, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for i := 0; i < n; i++ {
		i := i
		start := from.Add(time.Duration(i) * span)
		end := start.Add(span - time.Millisecond)
		if end.After(to) {
			end = to
		}
		g.Go(func() error {
			page, err := b.page(gctx, start, end)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrap(NameBinanceFund, err)
	}

	var out []model.AuxMetric
	for _, p := range pages {
		out = append(out, p...)
	}
	return clipMetrics(model.SortMetrics(out), from, to), nil
}

func (b *BinanceFunding) page(ctx context.Context, start, end time.Time) ([]model.AuxMetric, error) {
	rates, err := fetch.Do(ctx, b.policy, func(ctx context.Context) ([]*futures.FundingRate, error) {
		rs, err := b.client.NewFundingRateService().
			Symbol(defaultSymbol).
			StartTime(start.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(defaultPageLimit).
			Do(ctx)
		return rs, classifyBinance(err)
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.AuxMetric, 0, len(rates))
	for _, r := range rates {
		v, err := strconv.ParseFloat(r.FundingRate, 64)
		if err != nil {
			return nil, integrity(NameBinanceFund, "funding rate %q: %v", r.FundingRate, err)
		}
		out = append(out, model.AuxMetric{Time: time.UnixMilli(r.FundingTime).UTC(), Name: model.MetricFundingRate, Value: v})
	}
	return out, nil
}
