// Package throttle limits how often one payment may be verified against a backend.
package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Throttle admits at most one call per key per window
type Throttle interface {
	Allow(ctx context.Context, key string) bool
}

// Memory is a bounded in-process set of windows. When full, the least recently
// used key is evicted.
type Memory struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	cache  *expirable.LRU[string, time.Time]
}

// NewMemory creates a throttle holding at most maxKeys windows
func NewMemory(window time.Duration, maxKeys int, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &Memory{
		window: window,
		now:    now,
		cache:  expirable.NewLRU[string, time.Time](maxKeys, nil, window),
	}
}

func (m *Memory) Allow(ctx context.Context, key string) bool {
	if m.window <= 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if until, ok := m.cache.Get(key); ok && now.Before(until) {
		return false
	}
	m.cache.Add(key, now.Add(m.window))
	return true
}

// Len reports the number of live windows
func (m *Memory) Len() int {
	now := m.now()
	n := 0
	for _, until := range m.cache.Values() {
		if now.Before(until) {
			n++
		}
	}
	return n
}

// SetNXer is the Redis operation the throttle needs
type SetNXer interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// Redis keeps windows as expiring keys so every API replica shares them
type Redis struct {
	client SetNXer
	window time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedis creates a Redis-backed throttle
func NewRedis(client SetNXer, window time.Duration, logger *slog.Logger) *Redis {
	return &Redis{client: client, window: window, prefix: "servicefee:verify:", logger: logger}
}

// Allow fails open: when Redis is unreachable the call is admitted
func (r *Redis) Allow(ctx context.Context, key string) bool {
	if r.window <= 0 {
		return true
	}

	ok, err := r.client.SetNX(ctx, r.prefix+key, "1", r.window)
	if err != nil {
		r.logger.Warn("Verification throttle unavailable, allowing call",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return true
	}
	return ok
}
