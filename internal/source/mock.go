package source

import (
	"context"
	"sync"
	"time"

	"BTCSentinel/internal/model"
)

// MockSource returns controllable synthetic bars for development and testing.
// Prices are a pure function of the bar time, so overlapping requests agree.
type MockSource struct {
	SourceName string
	Price      float64
	// Series, when set, is served instead of generated bars.
	Series *model.Series
	// Err, when set, fails every call.
	Err error

	mu       sync.Mutex
	requests []Request
}

func (m *MockSource) Name() string {
	if m.SourceName == "" {
		return NameMock
	}
	return m.SourceName
}

// Requests returns the calls made so far.
func (m *MockSource) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockSource) FetchBars(_ context.Context, req Request) (model.Series, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Err != nil {
		return model.Series{}, m.Err
	}
	if err := req.validate(m.Name()); err != nil {
		return model.Series{}, err
	}
	if m.Series != nil {
		s := m.Series.Between(req.Start, req.End)
		s.Symbol, s.Granularity = req.symbol(), req.Granularity
		return s, nil
	}
	return generateMockBars(req.symbol(), m.Price, req), nil
}

func generateMockBars(symbol string, basePrice float64, req Request) model.Series {
	if basePrice <= 0 {
		basePrice = 50000
	}
	step := req.Granularity.Interval()
	s := model.Series{Symbol: symbol, Granularity: req.Granularity}
	start := req.Start.UTC().Truncate(step)
	if start.Before(req.Start) {
		start = start.Add(step)
	}
	end := endOrNow(req.End)
	for t := start; !t.After(end); t = t.Add(step) {
		k := t.Unix() / int64(step/time.Second)
		p := basePrice * (1 + float64(k%1000-500)*0.0001)
		s.Bars = append(s.Bars, model.Bar{
			Time:   t,
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000,
		})
	}
	return s
}
