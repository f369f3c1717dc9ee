package infra

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kv-gateway/middleware/ratelimit/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// início de janela exato: 1_700_000_040 é múltiplo de 60
func newClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_040, 0)} }

func admit(t *testing.T, w domain.WindowLimiter, caller domain.Key, class domain.Class) domain.Decision {
	t.Helper()
	dec, err := w.Admit(context.Background(), caller, class)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return dec
}

func TestFixedWindow_CapBoundaryPerClass(t *testing.T) {
	cases := []struct {
		class domain.Class
		limit int
	}{
		{domain.ClassGeneral, 5},
		{domain.ClassTrustedLocal, 100},
	}

	for _, tc := range cases {
		t.Run(tc.class.String(), func(t *testing.T) {
			clk := newClock()
			w := NewFixedWindow(domain.DefaultLimits(), WithClock(clk.Now))

			for i := 1; i <= tc.limit; i++ {
				dec := admit(t, w, "caller", tc.class)
				if !dec.Allowed {
					t.Fatalf("request %d of %d should be admitted", i, tc.limit)
				}
				if dec.Remaining != tc.limit-i {
					t.Fatalf("request %d: expected remaining %d, got %d", i, tc.limit-i, dec.Remaining)
				}
			}

			dec := admit(t, w, "caller", tc.class)
			if dec.Allowed {
				t.Fatalf("request %d should be denied", tc.limit+1)
			}
			if dec.Reason != domain.ScopeCaller {
				t.Fatalf("expected caller reason, got %q", dec.Reason)
			}
			if n, _ := w.Count("caller"); n != int64(tc.limit) {
				t.Fatalf("denial must not increment: expected %d, got %d", tc.limit, n)
			}
		})
	}
}

func TestFixedWindow_RolloverResetsCounters(t *testing.T) {
	clk := newClock()
	w := NewFixedWindow(domain.DefaultLimits(), WithClock(clk.Now))

	for i := 0; i < 5; i++ {
		admit(t, w, "c", domain.ClassGeneral)
	}
	dec := admit(t, w, "c", domain.ClassGeneral)
	if dec.Allowed {
		t.Fatalf("expected 6th request denied")
	}
	if dec.RetryAfter != 60*time.Second {
		t.Fatalf("expected RetryAfter until window end (60s), got %s", dec.RetryAfter)
	}

	clk.Add(59 * time.Second)
	if admit(t, w, "c", domain.ClassGeneral).Allowed {
		t.Fatalf("still the same window at +59s")
	}

	clk.Add(1 * time.Second)
	dec = admit(t, w, "c", domain.ClassGeneral)
	if !dec.Allowed {
		t.Fatalf("expected admission after rollover")
	}
	if got := dec.ResetAt.Unix(); got != 1_700_000_040+120 {
		t.Fatalf("expected reset at next window end, got %d", got)
	}
	if w.Windows() != 1 {
		t.Fatalf("expected old window to be dropped, have %d", w.Windows())
	}
}

func TestFixedWindow_WindowKeyIsAlignedToClock(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_040+30, 0)}
	w := NewFixedWindow(domain.DefaultLimits(), WithClock(clk.Now))

	dec := admit(t, w, "c", domain.ClassGeneral)
	if got := dec.ResetAt.Unix(); got != 1_700_000_100 {
		t.Fatalf("expected reset at aligned window end, got %d", got)
	}
}

func TestFixedWindow_GlobalCapWithDistinctCallers(t *testing.T) {
	clk := newClock()
	w := NewFixedWindow(domain.DefaultLimits(), WithClock(clk.Now))

	for i := 0; i < 1000; i++ {
		if !admit(t, w, domain.Key(fmt.Sprintf("10.0.%d.%d", i/256, i%256)), domain.ClassGeneral).Allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}

	dec := admit(t, w, "10.9.9.9", domain.ClassGeneral)
	if dec.Allowed {
		t.Fatalf("request 1001 must be denied by the global cap")
	}
	if dec.Reason != domain.ScopeGlobal {
		t.Fatalf("expected global reason, got %q", dec.Reason)
	}
	caller, global := w.Count("10.9.9.9")
	if caller != 0 || global != 1000 {
		t.Fatalf("global denial must not consume caller quota: caller=%d global=%d", caller, global)
	}
}

func TestFixedWindow_ConcurrentAdmitsNeverExceedCap(t *testing.T) {
	clk := newClock()
	w := NewFixedWindow(domain.Limits{Global: 1000, Trusted: 100, General: 5}, WithClock(clk.Now))

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 400; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, _ := w.Admit(context.Background(), "127.0.0.1", domain.ClassTrustedLocal)
			if dec.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 100 {
		t.Fatalf("expected exactly 100 admitted, got %d", got)
	}
	if n, g := w.Count("127.0.0.1"); n != 100 || g != 100 {
		t.Fatalf("expected counters 100/100, got %d/%d", n, g)
	}
}

func TestFixedWindow_ConcurrentGlobalCap(t *testing.T) {
	clk := newClock()
	w := NewFixedWindow(domain.Limits{Global: 50, Trusted: 100, General: 5}, WithClock(clk.Now))

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dec, _ := w.Admit(context.Background(), domain.Key(fmt.Sprintf("c%d", i)), domain.ClassGeneral)
			if dec.Allowed {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := admitted.Load(); got != 50 {
		t.Fatalf("expected exactly 50 admitted, got %d", got)
	}
}

func TestFixedWindow_SweepDropsExpiredWindows(t *testing.T) {
	clk := newClock()
	w := NewFixedWindow(domain.DefaultLimits(), WithClock(clk.Now), WithSweepEvery(0))

	admit(t, w, "c", domain.ClassGeneral)
	if w.Windows() != 1 {
		t.Fatalf("expected one window")
	}

	clk.Add(2 * time.Minute)
	w.Sweep()
	if w.Windows() != 0 {
		t.Fatalf("expected expired window to be swept, have %d", w.Windows())
	}
	if n, g := w.Count("c"); n != 0 || g != 0 {
		t.Fatalf("expected fresh counters, got %d/%d", n, g)
	}
}

func TestFixedWindow_JanitorStopsWithContext(t *testing.T) {
	clk := newClock()
	w := NewFixedWindow(domain.DefaultLimits(), WithClock(clk.Now), WithSweepEvery(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	admit(t, w, "c", domain.ClassGeneral)
	clk.Add(2 * time.Minute)
	w.StartJanitor(ctx)

	deadline := time.Now().Add(time.Second)
	for w.Windows() != 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("janitor did not sweep expired window")
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
}
