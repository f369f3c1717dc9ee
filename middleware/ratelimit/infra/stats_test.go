package infra

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"kv-gateway/middleware/ratelimit/domain"
)

func TestMemoryStatsStore_CountsByRouteClassCallerAndReason(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackCallers(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Caller: "a", Allowed: true, Method: "GET", Route: "/get"})
	_ = s.Record(ctx, domain.StatsEvent{Caller: "a", Allowed: false, Reason: domain.ScopeCaller, Method: "GET", Route: "/get"})
	_ = s.Record(ctx, domain.StatsEvent{Caller: "b", Class: domain.ClassTrustedLocal, Allowed: false, Reason: domain.ScopeGlobal, Method: "POST", Route: "/create"})

	if got := s.Total(); got.Allowed != 1 || got.Denied != 2 {
		t.Fatalf("unexpected total: %+v", got)
	}
	if got := s.ByRoute()["GET /get"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("unexpected route counters: %+v", got)
	}
	if got := s.ByClass()[domain.ClassTrustedLocal]; got.Denied != 1 || got.Allowed != 0 {
		t.Fatalf("unexpected class counters: %+v", got)
	}
	if got := s.ByCaller()["b"]; got.Denied != 1 {
		t.Fatalf("unexpected caller counters: %+v", got)
	}
	if s.DeniedBy(domain.ScopeCaller) != 1 || s.DeniedBy(domain.ScopeGlobal) != 1 {
		t.Fatalf("expected one denial per scope")
	}
}

func TestMemoryStatsStore_CallersOffByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Caller: "a", Allowed: true, Route: "/get"})

	if n := len(s.ByCaller()); n != 0 {
		t.Fatalf("expected no per-caller counters, got %d", n)
	}
}

func TestRedisStatsStore_Record(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedisStatsStore(rdb, WithStatsPrefix("stats:"), WithStatsTrackCallers(true))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := context.Background()

	if err := s.Record(ctx, domain.StatsEvent{Caller: "10.0.0.1", Allowed: true, Method: "GET", Route: "/get", At: at}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Record(ctx, domain.StatsEvent{Caller: "10.0.0.1", Allowed: false, Reason: domain.ScopeGlobal, Method: "GET", Route: "/get", At: at}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if v := mr.HGet("stats:total", "allowed"); v != "1" {
		t.Fatalf("expected total allowed=1, got %q", v)
	}
	if v := mr.HGet("stats:total", "denied:global"); v != "1" {
		t.Fatalf("expected denied:global=1, got %q", v)
	}
	if v := mr.HGet("stats:class", "general:denied"); v != "1" {
		t.Fatalf("expected class general:denied=1, got %q", v)
	}
	if v := mr.HGet("stats:minute:202601020304", "denied"); v != "1" {
		t.Fatalf("expected minute bucket denied=1, got %q", v)
	}
	if v := mr.HGet("stats:route", "GET /get:allowed"); v != "1" {
		t.Fatalf("expected route allowed=1, got %q", v)
	}
	if !mr.Exists("stats:caller:10.0.0.1") {
		t.Fatalf("expected per-caller hash")
	}
	if mr.TTL("stats:caller:10.0.0.1") <= 0 {
		t.Fatalf("per-caller hash must expire")
	}
	if mr.TTL("stats:total") != 0 {
		t.Fatalf("total must not expire")
	}

	got, err := s.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("unexpected totals: %+v", got)
	}
}

func TestRedisStatsStore_WithoutPerMinute(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedisStatsStore(rdb, WithStatsPrefix("s"), WithStatsPerMinute(false))
	if err := s.Record(context.Background(), domain.StatsEvent{Allowed: true, Route: "/ttl"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "s:minute:") {
			t.Fatalf("unexpected per-minute key %q", k)
		}
	}
	if v := mr.HGet("s:route", "/ttl:allowed"); v != "1" {
		t.Fatalf("expected route field without method, got %q", v)
	}
}

func TestChanPool_ReleaseIsIdempotent(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected slot")
	}
	release()
	release()
	if p.InUse() != 0 {
		t.Fatalf("double release must not free more than one slot, in use=%d", p.InUse())
	}

	r1, _ := p.Acquire(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected pool to be full")
	}
	r1()
}

func TestChanPool_MinimumCapacity(t *testing.T) {
	if c := NewChanPool(0).Cap(); c != 1 {
		t.Fatalf("expected capacity 1, got %d", c)
	}
}
