package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/resilience"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedBreaker(minReq int, openFor time.Duration) (*resilience.Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	return resilience.NewBreaker(minReq, 0.5, openFor).WithClock(clock.now), clock
}

func TestBreakerTransitions(t *testing.T) {
	breaker, clock := newClockedBreaker(2, 30*time.Second)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")
	counts := breaker.Counts()
	require.Equal(t, resilience.Open, counts.State)
	require.Equal(t, clock.t.Add(30*time.Second), counts.OpenUntil)

	clock.advance(31 * time.Second)
	require.True(t, breaker.Allow(ctx), "breaker should admit a probe after cool off")
	require.Equal(t, resilience.HalfOpen, breaker.State())
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.True(t, breaker.Allow(ctx))
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	breaker, clock := newClockedBreaker(1, time.Second)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	clock.advance(2 * time.Second)

	require.True(t, breaker.Allow(ctx))
	require.False(t, breaker.Allow(ctx), "second caller must wait for the probe")

	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))
}

func TestBreakerCountsRollOver(t *testing.T) {
	breaker, clock := newClockedBreaker(4, 10*time.Second)
	breaker.WithInterval(time.Minute)
	ctx := context.Background()

	for range 3 {
		require.True(t, breaker.Allow(ctx))
		breaker.Report(ctx, false)
	}
	require.Equal(t, 3, breaker.Counts().Failures)

	clock.advance(2 * time.Minute)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	counts := breaker.Counts()
	require.Equal(t, resilience.Closed, counts.State, "stale failures must not trip the breaker")
	require.Equal(t, 1, counts.Requests)
}

func TestBreakerHealthyTrafficStaysClosed(t *testing.T) {
	breaker, _ := newClockedBreaker(4, 10*time.Second)
	ctx := context.Background()

	outcomes := []bool{true, false, true, true, false, true}
	for _, ok := range outcomes {
		require.True(t, breaker.Allow(ctx))
		breaker.Report(ctx, ok)
	}
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))
	require.Equal(t, resilience.MaxBackoff, resilience.Backoff(base, 20, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}
