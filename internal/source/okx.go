package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"BTCSentinel/internal/model"
)

const (
	okxDefaultURL = "https://www.okx.com"
	okxPageLimit  = 100
)

// OKX is backup venue B, spoken over plain HTTP.
type OKX struct {
	baseURL string
	deps    Deps
}

func NewOKX(baseURL string, deps Deps) *OKX {
	if baseURL == "" {
		baseURL = okxDefaultURL
	}
	return &OKX{baseURL: baseURL, deps: deps}
}

func (o *OKX) Name() string { return NameOKX }

type okxResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

func okxBar(g model.Granularity) string {
	if g == model.GranularityDay {
		return "1Dutc"
	}
	return "15m"
}

func okxInstrument(symbol string) string {
	if symbol == defaultSymbol {
		return "BTC-USDT"
	}
	return symbol
}

// FetchBars walks history backwards with the after cursor, which returns rows
// older than the given timestamp.
func (o *OKX) FetchBars(ctx context.Context, req Request) (model.Series, error) {
	if err := req.validate(NameOKX); err != nil {
		return model.Series{}, err
	}
	after := endOrNow(req.End).Add(time.Millisecond)
	var bars []model.Bar

	for page := 0; page < maxPagesPerFetch; page++ {
		q := url.Values{}
		q.Set("instId", okxInstrument(req.symbol()))
		q.Set("bar", okxBar(req.Granularity))
		q.Set("after", strconv.FormatInt(after.UnixMilli(), 10))
		q.Set("limit", strconv.Itoa(okxPageLimit))
		u := o.baseURL + "/api/v5/market/history-candles?" + q.Encode()

		var resp okxResponse
		if err := getJSON(ctx, o.deps, u, &resp); err != nil {
			return model.Series{}, wrap(NameOKX, err)
		}
		if resp.Code != "0" {
			return model.Series{}, model.NewSourceError(NameOKX, model.ErrPermanentSource, fmt.Errorf("code %s: %s", resp.Code, resp.Msg))
		}
		if len(resp.Data) == 0 {
			break
		}
		oldest := after
		for _, row := range resp.Data {
			if len(row) < 6 {
				return model.Series{}, integrity(NameOKX, "candle row has %d fields", len(row))
			}
			ms, err := strconv.ParseInt(row[0], 10, 64)
			if err != nil {
				return model.Series{}, integrity(NameOKX, "candle time %q: %v", row[0], err)
			}
			t := time.UnixMilli(ms).UTC()
			bar, err := parseBar(t, row[1], row[2], row[3], row[4], row[5])
			if err != nil {
				return model.Series{}, integrity(NameOKX, "%v", err)
			}
			bars = append(bars, bar)
			if t.Before(oldest) {
				oldest = t
			}
		}
		if !oldest.Before(after) || !oldest.After(req.Start) || len(resp.Data) < okxPageLimit {
			break
		}
		after = oldest
	}
	return normalize(req.symbol(), req.Granularity, bars, req), nil
}
