package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// MemoryLimiter is a fixed-window limiter held in process memory. It backs
// the rate limit when no Redis is configured, so limits are per instance.
type MemoryLimiter struct {
	store limiter.Store

	mu       sync.Mutex
	limiters map[limiter.Rate]*limiter.Limiter
}

// NewMemoryLimiter returns a limiter over a fresh in-memory store.
func NewMemoryLimiter(prefix string) *MemoryLimiter {
	return &MemoryLimiter{
		store:    memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute}),
		limiters: map[limiter.Rate]*limiter.Limiter{},
	}
}

// Allow counts an attempt for key against limit per window.
func (m *MemoryLimiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: limit, ResetAt: time.Now().Add(window)}, nil
	}
	lctx, err := m.forRate(window, limit).Get(ctx, key)
	if err != nil {
		return Decision{ResetAt: time.Now().Add(window)}, fmt.Errorf("memory limiter: %w", err)
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Remaining: int(lctx.Remaining),
		ResetAt:   time.Unix(lctx.Reset, 0),
	}, nil
}

func (m *MemoryLimiter) forRate(window time.Duration, limit int) *limiter.Limiter {
	rate := limiter.Rate{Period: window, Limit: int64(limit)}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[rate]
	if !ok {
		l = limiter.New(m.store, rate)
		m.limiters[rate] = l
	}
	return l
}
