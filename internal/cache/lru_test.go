package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"moneytrack/internal/log"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	c.Set("a", 1)
	c.Set("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Fatalf("expected 2, got %d (hit=%v)", v, ok)
	}
	if c.Size() != 1 {
		t.Fatalf("expected size 1, got %d", c.Size())
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("%s should still be cached", k)
		}
	}
}

func TestLRUCache_TTL(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	clock.t = clock.t.Add(30 * time.Second)
	c.Set("b", 3)

	clock.t = clock.t.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("a should have expired")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Fatalf("nothing else should be expired, cleaned %d", n)
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Fatalf("refreshed b should survive, got %d (hit=%v)", v, ok)
	}

	clock.t = clock.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 expired entry, got %d", n)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Size())
	}
}

func TestLRUCache_DeletePrefix(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("u1|7days", 1)
	c.Set("u1|30days", 2)
	c.Set("u10|7days", 3)
	c.Set("u2|7days", 4)

	if n := c.DeletePrefix("u1|"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, ok := c.Get("u10|7days"); !ok {
		t.Fatal("u10 must not be affected by the u1 prefix")
	}
	c.Delete("u2|7days")
	if c.Size() != 1 {
		t.Fatalf("expected 1 entry left, got %d", c.Size())
	}
}

func TestLRUCache_GetOrLoadSharesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func() (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad("u1|7days", load)
			if err != nil {
				t.Errorf("GetOrLoad: %v", err)
			}
			results <- v
		}()
	}
	// Let the goroutines pile up on the in-flight load before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for v := range results {
		if v != 42 {
			t.Fatalf("got %d, want 42", v)
		}
	}
	if n := calls.Load(); n < 1 || n > callers {
		t.Fatalf("unexpected load count %d", n)
	}
	if v, err := c.GetOrLoad("u1|7days", func() (int, error) { return 0, errors.New("must not load") }); err != nil || v != 42 {
		t.Fatalf("cached value not served: %d, %v", v, err)
	}
}

func TestLRUCache_GetOrLoadErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	boom := errors.New("boom")

	if _, err := c.GetOrLoad("k", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Size() != 0 {
		t.Fatal("failed load must not be cached")
	}
	if v, err := c.GetOrLoad("k", func() (int, error) { return 7, nil }); err != nil || v != 7 {
		t.Fatalf("got %d, %v", v, err)
	}
	if m := c.GetMetrics(); m.Loads != 2 || m.Entries != 1 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestLRUCache_InvalidationDuringLoadDropsResult(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)

	v, err := c.GetOrLoad("u1|7days", func() (int, error) {
		c.DeletePrefix("u1|")
		return 1, nil
	})
	if err != nil || v != 1 {
		t.Fatalf("got %d, %v", v, err)
	}
	if _, ok := c.Get("u1|7days"); ok {
		t.Fatal("value loaded across an invalidation must not be cached")
	}
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	c, clock := newTestCache(10, time.Millisecond)
	c.Set("a", 1)
	clock.t = clock.t.Add(time.Second)

	j := NewJanitor(time.Millisecond, log.Discard())
	j.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for c.Size() != 0 {
		select {
		case <-deadline:
			t.Fatal("janitor did not sweep the expired entry")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
