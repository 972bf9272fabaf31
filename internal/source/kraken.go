package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"BTCSentinel/internal/model"
)

const krakenDefaultURL = "https://api.kraken.com"

// Kraken is the deep-history venue. XBTUSD data starts in 2013.
type Kraken struct {
	baseURL string
	deps    Deps
}

func NewKraken(baseURL string, deps Deps) *Kraken {
	if baseURL == "" {
		baseURL = krakenDefaultURL
	}
	return &Kraken{baseURL: baseURL, deps: deps}
}

func (k *Kraken) Name() string { return NameKraken }

type krakenResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

func krakenInterval(g model.Granularity) int {
	if g == model.GranularityDay {
		return 1440
	}
	return 15
}

// FetchBars pages forward with the since/last cursor.
func (k *Kraken) FetchBars(ctx context.Context, req Request) (model.Series, error) {
	if err := req.validate(NameKraken); err != nil {
		return model.Series{}, err
	}
	end := endOrNow(req.End)
	since := req.Start.Unix()
	var bars []model.Bar

	for page := 0; page < maxPagesPerFetch; page++ {
		q := url.Values{}
		q.Set("pair", "XBTUSD")
		q.Set("interval", strconv.Itoa(krakenInterval(req.Granularity)))
		q.Set("since", strconv.FormatInt(since, 10))
		u := k.baseURL + "/0/public/OHLC?" + q.Encode()

		var resp krakenResponse
		if err := getJSON(ctx, k.deps, u, &resp); err != nil {
			return model.Series{}, wrap(NameKraken, err)
		}
		if len(resp.Error) > 0 {
			return model.Series{}, model.NewSourceError(NameKraken, model.ErrPermanentSource, fmt.Errorf("%s", strings.Join(resp.Error, "; ")))
		}
		rows, last, err := krakenRows(resp.Result)
		if err != nil {
			return model.Series{}, integrity(NameKraken, "%v", err)
		}
		if len(rows) == 0 {
			break
		}
		newest := time.Time{}
		for _, row := range rows {
			if len(row) < 7 {
				return model.Series{}, integrity(NameKraken, "ohlc row has %d fields", len(row))
			}
			var sec int64
			if err := json.Unmarshal(row[0], &sec); err != nil {
				return model.Series{}, integrity(NameKraken, "ohlc time %s: %v", row[0], err)
			}
			fields := make([]string, 0, 5)
			// time, open, high, low, close, vwap, volume, count
			for _, idx := range []int{1, 2, 3, 4, 6} {
				var s string
				if err := json.Unmarshal(row[idx], &s); err != nil {
					return model.Series{}, integrity(NameKraken, "ohlc field %d: %v", idx, err)
				}
				fields = append(fields, s)
			}
			t := time.Unix(sec, 0).UTC()
			bar, err := parseBar(t, fields[0], fields[1], fields[2], fields[3], fields[4])
			if err != nil {
				return model.Series{}, integrity(NameKraken, "%v", err)
			}
			bars = append(bars, bar)
			if t.After(newest) {
				newest = t
			}
		}
		if last <= since || newest.After(end) {
			break
		}
		since = last
	}
	return normalize(req.symbol(), req.Granularity, bars, req), nil
}

// krakenRows splits the result object into its single pair array and the
// last cursor.
func krakenRows(result map[string]json.RawMessage) ([][]json.RawMessage, int64, error) {
	var (
		rows [][]json.RawMessage
		last int64
	)
	for key, raw := range result {
		if key == "last" {
			if err := json.Unmarshal(raw, &last); err != nil {
				return nil, 0, fmt.Errorf("last cursor: %w", err)
			}
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, 0, fmt.Errorf("pair %s: %w", key, err)
		}
	}
	return rows, last, nil
}
