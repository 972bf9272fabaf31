package source

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"BTCSentinel/internal/model"
)

const fearGreedDefaultURL = "https://api.alternative.me"

// FearGreed is the alternative.me sentiment index.
type FearGreed struct {
	baseURL string
	deps    Deps
	now     func() time.Time
}

func NewFearGreed(baseURL string, deps Deps) *FearGreed {
	if baseURL == "" {
		baseURL = fearGreedDefaultURL
	}
	return &FearGreed{baseURL: baseURL, deps: deps, now: time.Now}
}

func (f *FearGreed) Name() string { return NameFearGreed }

type fearGreedResponse struct {
	Data []struct {
		Value     string   `json:"value"`
		Class     string   `json:"value_classification"`
		Timestamp flexUnix `json:"timestamp"`
	} `json:"data"`
	Metadata struct {
		Error interface{} `json:"error"`
	} `json:"metadata"`
}

// FetchMetrics asks for enough daily points to reach back to from. A zero
// from asks for the full history.
func (f *FearGreed) FetchMetrics(ctx context.Context, from, to time.Time) ([]model.AuxMetric, error) {
	limit := 0
	if !from.IsZero() {
		limit = int(f.now().Sub(from).Hours()/24) + 2
	}
	u := fmt.Sprintf("%s/fng/?limit=%d", f.baseURL, limit)
	var resp fearGreedResponse
	if err := getJSON(ctx, f.deps, u, &resp); err != nil {
		return nil, wrap(NameFearGreed, err)
	}
	if resp.Metadata.Error != nil {
		return nil, model.NewSourceError(NameFearGreed, model.ErrPermanentSource, fmt.Errorf("%v", resp.Metadata.Error))
	}
	out := make([]model.AuxMetric, 0, len(resp.Data))
	for _, d := range resp.Data {
		v, err := strconv.ParseFloat(d.Value, 64)
		if err != nil {
			return nil, integrity(NameFearGreed, "value %q: %v", d.Value, err)
		}
		out = append(out, model.AuxMetric{Time: d.Timestamp.Time(), Name: model.MetricFearGreed, Value: v})
	}
	return clipMetrics(model.SortMetrics(out), from, to), nil
}
