package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"BTCSentinel/internal/fetch"
	"BTCSentinel/internal/model"
)

// BinanceFirstBar is the open time of the first BTCUSDT spot candle.
var BinanceFirstBar = time.Date(2017, 8, 17, 0, 0, 0, 0, time.UTC)

// BinanceSpot is the primary venue.
type BinanceSpot struct {
	client *binance.Client
	policy fetch.Policy
}

// NewBinanceSpot builds the adapter. An empty baseURL keeps the SDK default.
func NewBinanceSpot(baseURL string, deps Deps) *BinanceSpot {
	c := binance.NewClient("", "")
	c.HTTPClient = deps.client()
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	return &BinanceSpot{client: c, policy: deps.Policy}
}

func (b *BinanceSpot) Name() string { return NameBinance }

func binanceInterval(g model.Granularity) string {
	if g == model.GranularityDay {
		return "1d"
	}
	return "15m"
}

// FetchBars pages forward from req.Start, 1000 bars per call.
func (b *BinanceSpot) FetchBars(ctx context.Context, req Request) (model.Series, error) {
	if err := req.validate(NameBinance); err != nil {
		return model.Series{}, err
	}
	step := req.Granularity.Interval()
	end := endOrNow(req.End)
	cursor := req.Start
	var bars []model.Bar

	for page := 0; !cursor.After(end) && page < maxPagesPerFetch; page++ {
		from := cursor
		klines, err := fetch.Do(ctx, b.policy, func(ctx context.Context) ([]*binance.Kline, error) {
			ks, err := b.client.NewKlinesService().
				Symbol(req.symbol()).
				Interval(binanceInterval(req.Granularity)).
				StartTime(from.UnixMilli()).
				EndTime(end.UnixMilli()).
				Limit(defaultPageLimit).
				Do(ctx)
			return ks, classifyBinance(err)
		})
		if err != nil {
			return model.Series{}, wrap(NameBinance, err)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			bar, err := parseBar(time.UnixMilli(k.OpenTime), k.Open, k.High, k.Low, k.Close, k.Volume)
			if err != nil {
				return model.Series{}, integrity(NameBinance, "%v", err)
			}
			bars = append(bars, bar)
		}
		next := time.UnixMilli(klines[len(klines)-1].OpenTime).UTC().Add(step)
		if !next.After(cursor) {
			break
		}
		cursor = next
		if len(klines) < defaultPageLimit {
			break
		}
	}
	return normalize(req.symbol(), req.Granularity, bars, req), nil
}

// classifyBinance marks SDK API errors as permanent. Retryable statuses never
// reach the SDK: the transport turns them into *fetch.StatusError first, so
// anything the SDK decodes is a 4xx such as 451 geo-blocking.
func classifyBinance(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: api code %d: %s", model.ErrPermanentSource, apiErr.Code, apiErr.Message)
	}
	return err
}
