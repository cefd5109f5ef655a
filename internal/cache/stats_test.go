package cache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// newTestCache returns a cache with a controllable clock.
func newTestCache() (*StatsCache, *time.Time) {
	c := New(testLogger)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestGetBeforeCompute(t *testing.T) {
	c, _ := newTestCache()
	if _, ok := c.Get("totals"); ok {
		t.Error("expected miss before any compute")
	}
}

func TestComputeAndCacheHit(t *testing.T) {
	c, _ := newTestCache()
	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return 42, nil
	}

	v, err := c.ComputeAndCache(context.Background(), "totals", 300*time.Second, fn)
	if err != nil || v.(int) != 42 {
		t.Fatalf("ComputeAndCache = %v, %v", v, err)
	}

	// Repeated gets within the TTL return the identical cached value
	// without re-invoking fn.
	for i := 0; i < 3; i++ {
		e, ok := c.Get("totals")
		if !ok || e.Value.(int) != 42 {
			t.Fatalf("expected cached hit, got %+v, %v", e, ok)
		}
	}
	if _, err := c.ComputeAndCache(context.Background(), "totals", 300*time.Second, fn); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("fn invoked %d times, want 1", calls)
	}
}

func TestExpiryTriggersRecompute(t *testing.T) {
	c, now := newTestCache()
	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	if _, err := c.ComputeAndCache(context.Background(), "totals", 300*time.Second, fn); err != nil {
		t.Fatal(err)
	}

	// Simulated TTL expiry.
	*now = now.Add(301 * time.Second)

	if _, ok := c.Get("totals"); ok {
		t.Error("expected miss after expiry")
	}
	v, err := c.ComputeAndCache(context.Background(), "totals", 300*time.Second, fn)
	if err != nil || v.(int) != 2 {
		t.Errorf("expected recompute, got %v, %v", v, err)
	}
	if calls != 2 {
		t.Errorf("fn invoked %d times, want 2", calls)
	}
}

func TestComputedAtTimestamp(t *testing.T) {
	c, now := newTestCache()
	want := *now
	if _, err := c.ComputeAndCache(context.Background(), "totals", time.Minute, func(ctx context.Context) (any, error) {
		return 1, nil
	}); err != nil {
		t.Fatal(err)
	}

	e, ok := c.Get("totals")
	if !ok {
		t.Fatal("expected hit")
	}
	if !e.ComputedAt.Equal(want) {
		t.Errorf("ComputedAt = %v, want %v", e.ComputedAt, want)
	}
}

func TestComputeErrorNotCached(t *testing.T) {
	c, _ := newTestCache()
	boom := errors.New("store down")
	_, err := c.ComputeAndCache(context.Background(), "totals", time.Minute, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if _, ok := c.Get("totals"); ok {
		t.Error("failed compute must not be cached")
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()
	one := func(ctx context.Context) (any, error) { return 1, nil }

	c.ComputeAndCache(ctx, "a", time.Minute, one)
	c.ComputeAndCache(ctx, "b", time.Minute, one)

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Invalidate")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("unrelated key should survive Invalidate")
	}

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}
