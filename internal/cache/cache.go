package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"BTCSentinel/internal/logger"
	"BTCSentinel/internal/metrics"
)

// KeyClass groups keys that share a TTL.
type KeyClass string

const (
	ClassDaily    KeyClass = "daily"
	ClassRealtime KeyClass = "realtime"
	ClassRate     KeyClass = "rate"
	ClassAux      KeyClass = "aux"
)

// DefaultTTLs are used for classes the caller does not configure.
var DefaultTTLs = map[KeyClass]time.Duration{
	ClassDaily:    24 * time.Hour,
	ClassRealtime: 60 * time.Second,
	ClassRate:     time.Hour,
	ClassAux:      6 * time.Hour,
}

// Key is the exact query a cached value answers.
type Key struct {
	Class       KeyClass
	Symbol      string
	Granularity string
	From        time.Time
	To          time.Time
	Extra       string
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// String renders the key. Every field takes part so different queries never
// share an entry.
func (k Key) String() string {
	return strings.Join([]string{
		"btcsentinel", string(k.Class), k.Symbol, k.Granularity,
		stamp(k.From), stamp(k.To), k.Extra,
	}, ":")
}

// Store is a byte-level key/value backend with expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

type memItem struct {
	val     []byte
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memItem), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(it.expires) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return it.val, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memItem{val: val, expires: m.now().Add(ttl)}
	return nil
}

// RedisStore keeps entries in Redis with SET ... EX.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(c *redis.Client) *RedisStore {
	return &RedisStore{client: c}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

// Service memoizes loader results per key with a TTL per key class. Entries
// expire by elapsed time only.
type Service struct {
	store Store
	ttls  map[KeyClass]time.Duration
	log   *logger.Entry
}

// NewService builds a cache service. ttls overrides DefaultTTLs per class.
func NewService(store Store, ttls map[KeyClass]time.Duration) *Service {
	merged := make(map[KeyClass]time.Duration, len(DefaultTTLs))
	for k, v := range DefaultTTLs {
		merged[k] = v
	}
	for k, v := range ttls {
		if v > 0 {
			merged[k] = v
		}
	}
	return &Service{store: store, ttls: merged, log: logger.GetLogger().WithComponent("cache")}
}

// TTL returns the lifetime of entries in class.
func (s *Service) TTL(class KeyClass) time.Duration {
	if ttl, ok := s.ttls[class]; ok {
		return ttl
	}
	return time.Hour
}

// GetOrLoad returns the cached value for key or calls load and stores its
// result. Loader errors are returned and nothing is cached. Backend errors are
// logged and treated as a miss.
func GetOrLoad[T any](ctx context.Context, s *Service, key Key, load func(ctx context.Context) (T, error)) (T, error) {
	return GetOrLoadTTL(ctx, s, key, func(ctx context.Context) (T, time.Duration, error) {
		v, err := load(ctx)
		return v, 0, err
	})
}

// GetOrLoadTTL is GetOrLoad with a loader that also picks the entry's TTL.
// Zero keeps the class TTL and a negative TTL skips the store.
func GetOrLoadTTL[T any](ctx context.Context, s *Service, key Key, load func(ctx context.Context) (T, time.Duration, error)) (T, error) {
	k := key.String()
	class := string(key.Class)

	if raw, ok, err := s.store.Get(ctx, k); err != nil {
		s.log.WithError(err).WithField("key", k).Warn("cache get failed, loading")
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.CacheRequests.WithLabelValues(class, "hit").Inc()
			return v, nil
		}
		s.log.WithField("key", k).Warn("cache entry undecodable, loading")
	}
	metrics.CacheRequests.WithLabelValues(class, "miss").Inc()

	v, ttl, err := load(ctx)
	if err != nil {
		return v, err
	}
	switch {
	case ttl < 0:
		return v, nil
	case ttl == 0:
		ttl = s.TTL(key.Class)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.WithError(err).WithField("key", k).Warn("cache encode failed")
		return v, nil
	}
	if err := s.store.Set(ctx, k, raw, ttl); err != nil {
		s.log.WithError(err).WithField("key", k).Warn("cache set failed")
	}
	return v, nil
}
