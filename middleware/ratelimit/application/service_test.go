package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"kv-gateway/middleware/ratelimit/domain"
)

type fakeLimiter struct {
	allow bool
	wait  time.Duration
}

func (f fakeLimiter) Take(time.Time) (bool, time.Duration) { return f.allow, f.wait }

type fakeStore struct {
	lim  domain.Limiter
	keys []domain.Key
}

func (s *fakeStore) Get(k domain.Key) domain.Limiter {
	s.keys = append(s.keys, k)
	return s.lim
}

type fakeWindow struct {
	dec   domain.Decision
	err   error
	calls int
}

func (f *fakeWindow) Admit(context.Context, domain.Key, domain.Class) (domain.Decision, error) {
	f.calls++
	return f.dec, f.err
}

func TestService_Decide_AllowsWhenNothingConfigured(t *testing.T) {
	svc := Service{}
	dec, err := svc.Decide(context.Background(), "k", domain.ClassGeneral, "/get")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_RouteGuardDeniesBeforeWindow(t *testing.T) {
	win := &fakeWindow{dec: domain.Decision{Allowed: true}}
	routes := &fakeStore{lim: fakeLimiter{allow: false}}
	svc := Service{Window: win, Routes: routes}

	dec, err := svc.Decide(context.Background(), "10.0.0.1", domain.ClassGeneral, "/create")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.Reason != domain.ScopeRoute {
		t.Fatalf("expected route reason, got %q", dec.Reason)
	}
	if dec.RetryAfter != 1*time.Second {
		t.Fatalf("expected default RetryAfter=1s, got %s", dec.RetryAfter)
	}
	if win.calls != 0 {
		t.Fatalf("window counters must not be touched when the route guard denies")
	}
	if len(routes.keys) != 1 || routes.keys[0] != "10.0.0.1|/create" {
		t.Fatalf("expected caller|route key, got %v", routes.keys)
	}
}

func TestService_Decide_PassesWindowDecision(t *testing.T) {
	reset := time.Unix(120, 0)
	win := &fakeWindow{dec: domain.Decision{Reason: domain.ScopeGlobal, Limit: 5, ResetAt: reset, RetryAfter: 17 * time.Second}}
	svc := Service{Window: win, Routes: &fakeStore{lim: fakeLimiter{allow: true}}}

	dec, err := svc.Decide(context.Background(), "k", domain.ClassGeneral, "/get")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed || dec.Reason != domain.ScopeGlobal {
		t.Fatalf("expected global denial, got %+v", dec)
	}
	if dec.RetryAfter != 17*time.Second {
		t.Fatalf("expected window RetryAfter to be kept, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_FailsOpenOnWindowError(t *testing.T) {
	boom := errors.New("redis down")
	svc := Service{Window: &fakeWindow{err: boom}}

	dec, err := svc.Decide(context.Background(), "k", domain.ClassGeneral, "/get")
	if !errors.Is(err, boom) {
		t.Fatalf("expected window error to be returned, got %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected fail-open decision")
	}
}

func TestService_Decide_RouteGuardReportsBucketWait(t *testing.T) {
	svc := Service{
		Window:     &fakeWindow{dec: domain.Decision{Allowed: true}},
		Routes:     &fakeStore{lim: fakeLimiter{wait: 4 * time.Second}},
		RetryAfter: time.Second,
	}

	dec, _ := svc.Decide(context.Background(), "k", domain.ClassGeneral, "/ttl")
	if dec.Allowed || dec.RetryAfter != 4*time.Second {
		t.Fatalf("expected denial with the bucket wait, got %+v", dec)
	}
}
