package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"BTCSentinel/internal/fetch"
	"BTCSentinel/internal/model"
)

const fredDefaultURL = "https://fred.stlouisfed.org"

// FREDSeries maps the FRED series ids to metric names.
var FREDSeries = map[string]string{
	"WM2NS":    model.MetricM2,
	"CPIAUCSL": model.MetricCPI,
	"DEXJPUS":  model.MetricUSDJPY,
}

// FRED reads one macro series from the public graph CSV export.
type FRED struct {
	baseURL  string
	seriesID string
	metric   string
	deps     Deps
}

// NewFRED builds the adapter for a series id listed in FREDSeries.
func NewFRED(baseURL, seriesID string, deps Deps) (*FRED, error) {
	metric, ok := FREDSeries[seriesID]
	if !ok {
		return nil, fmt.Errorf("unknown FRED series %q", seriesID)
	}
	if baseURL == "" {
		baseURL = fredDefaultURL
	}
	return &FRED{baseURL: baseURL, seriesID: seriesID, metric: metric, deps: deps}, nil
}

func (f *FRED) Name() string { return NameFREDPrefix + strings.ToLower(f.seriesID) }

// Metric is the metric name this series feeds.
func (f *FRED) Metric() string { return f.metric }

func (f *FRED) FetchMetrics(ctx context.Context, from, to time.Time) ([]model.AuxMetric, error) {
	q := url.Values{}
	q.Set("id", f.seriesID)
	if !from.IsZero() {
		q.Set("cosd", from.UTC().Format("2006-01-02"))
	}
	u := f.baseURL + "/graph/fredgraph.csv?" + q.Encode()
	body, err := fetch.Do(ctx, f.deps.Policy, func(ctx context.Context) ([]byte, error) {
		return fetch.GetBody(ctx, f.deps.client(), u)
	})
	if err != nil {
		return nil, wrap(f.Name(), err)
	}
	out, err := parseFREDCSV(body, f.metric)
	if err != nil {
		return nil, integrity(f.Name(), "%v", err)
	}
	return clipMetrics(model.SortMetrics(out), from, to), nil
}

// parseFREDCSV reads "date,value" rows after a header. A "." value marks a
// missing observation and is skipped.
func parseFREDCSV(body []byte, metric string) ([]model.AuxMetric, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = 2
	var out []model.AuxMetric
	for line := 0; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 0 {
			continue
		}
		v := strings.TrimSpace(rec[1])
		if v == "." || v == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d date %q: %w", line+1, rec[0], err)
		}
		val, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d value %q: %w", line+1, v, err)
		}
		out = append(out, model.AuxMetric{Time: t, Name: metric, Value: val})
	}
	return out, nil
}
