package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"BTCSentinel/internal/fetch"
	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/metrics"
	"BTCSentinel/internal/model"
)

// HealthTracker keeps one circuit breaker and the last error per source.
type HealthTracker struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	lastErr  map[string]error
	failures uint32
	cooldown time.Duration
	log      *logger.Entry
}

// NewHealthTracker trips a breaker after failures consecutive errors and
// tries the source again after cooldown. Zero values use 5 and one minute.
func NewHealthTracker(failures uint32, cooldown time.Duration) *HealthTracker {
	if failures == 0 {
		failures = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &HealthTracker{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		lastErr:  make(map[string]error),
		failures: failures,
		cooldown: cooldown,
		log:      logger.GetLogger().WithComponent("health"),
	}
}

func (h *HealthTracker) breaker(name string) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cb, ok := h.breakers[name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     h.cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= h.failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.log.WithFields(logger.Fields{"source": name, "from": from.String(), "to": to.String()}).Warn("source breaker changed state")
		},
	})
	h.breakers[name] = cb
	return cb
}

// Do runs op through the source's breaker and records the outcome. An open
// breaker short-circuits with a transient error so the chain moves on.
func (h *HealthTracker) Do(name string, op func() error) error {
	_, err := h.breaker(name).Execute(func() (interface{}, error) {
		return nil, op()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = model.NewSourceError(name, model.ErrTransientNetwork, err)
	}
	if !errors.Is(err, context.Canceled) {
		h.mu.Lock()
		h.lastErr[name] = err
		h.mu.Unlock()
	}
	metrics.SourceHealth.WithLabelValues(name).Set(healthGauge(h.Health(name)))
	return err
}

// Health reports the current state of a source. Unknown sources are available.
func (h *HealthTracker) Health(name string) model.Health {
	h.mu.Lock()
	cb, ok := h.breakers[name]
	last := h.lastErr[name]
	h.mu.Unlock()
	if !ok {
		return model.HealthAvailable
	}
	switch {
	case cb.State() == gobreaker.StateOpen:
		return model.HealthUnavailable
	case last != nil && fetch.IsPermanent(last):
		return model.HealthUnavailable
	case last != nil, cb.State() == gobreaker.StateHalfOpen:
		return model.HealthDegraded
	}
	return model.HealthAvailable
}

// Snapshot returns the health of every source seen so far.
func (h *HealthTracker) Snapshot() map[string]model.Health {
	h.mu.Lock()
	names := make([]string, 0, len(h.breakers))
	for n := range h.breakers {
		names = append(names, n)
	}
	h.mu.Unlock()
	out := make(map[string]model.Health, len(names))
	for _, n := range names {
		out[n] = h.Health(n)
	}
	return out
}

func healthGauge(h model.Health) float64 {
	switch h {
	case model.HealthAvailable:
		return 2
	case model.HealthDegraded:
		return 1
	}
	return 0
}
