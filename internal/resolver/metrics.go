package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/metrics"
	"BTCSentinel/internal/model"
	"BTCSentinel/internal/source"
)

// MetricChain holds one ordered fallback list per aux metric name.
type MetricChain struct {
	mu     sync.RWMutex
	chains map[string][]source.MetricSource
	health *source.HealthTracker
	log    *logger.Entry
}

// NewMetricChain builds an empty chain set sharing health with the bar chain.
func NewMetricChain(health *source.HealthTracker) *MetricChain {
	if health == nil {
		health = source.NewHealthTracker(0, 0)
	}
	return &MetricChain{
		chains: make(map[string][]source.MetricSource),
		health: health,
		log:    logger.GetLogger().WithComponent("metric_chain"),
	}
}

// Register appends sources to the chain for metric name.
func (m *MetricChain) Register(name string, sources ...source.MetricSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains[name] = append(m.chains[name], sources...)
}

// Names lists the registered metrics, sorted.
func (m *MetricChain) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.chains))
	for n := range m.chains {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the first non-empty history for name in [from, to]. When
// every source fails or returns nothing the error wraps
// model.ErrAllSourcesExhausted.
func (m *MetricChain) Resolve(ctx context.Context, name string, from, to time.Time) ([]model.AuxMetric, []Attempt, error) {
	m.mu.RLock()
	chain := m.chains[name]
	m.mu.RUnlock()
	if len(chain) == 0 {
		return nil, nil, fmt.Errorf("%w: no sources registered for %s", model.ErrAllSourcesExhausted, name)
	}

	var (
		attempts []Attempt
		errs     []error
	)
	for _, src := range chain {
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		var got []model.AuxMetric
		err := m.health.Do(src.Name(), func() error {
			var err error
			got, err = src.FetchMetrics(ctx, from, to)
			return err
		})
		att := Attempt{Source: src.Name(), Health: m.health.Health(src.Name()), Bars: len(got), Err: err}
		if err != nil {
			att.Bars, att.Error = 0, err.Error()
			errs = append(errs, err)
			m.log.WithFields(logger.Fields{"metric": name, "source": src.Name()}).WithError(err).Warn("metric source failed")
		}
		attempts = append(attempts, att)
		metrics.FetchAttempts.WithLabelValues(src.Name(), outcome(att)).Inc()
		if err == nil && len(got) > 0 {
			return got, attempts, nil
		}
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no source returned data"))
	}
	return nil, attempts, fmt.Errorf("%w: %s: %w", model.ErrAllSourcesExhausted, name, errors.Join(errs...))
}
