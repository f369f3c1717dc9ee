package infra

import (
	"context"
	"sync"

	"kv-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64
	Denied  int64
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
}

// MemoryStatsStore guarda as estatísticas no processo. Sem expiração; serve
// para testes e para um gateway único sem Redis.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byRoute  map[string]*Counters
	byClass  map[domain.Class]*Counters
	byCaller map[domain.Key]*Counters
	byReason map[domain.Scope]int64

	trackCallers bool
}

type MemoryStatsOption func(*MemoryStatsStore)

// WithTrackCallers liga contadores por chamador (cardinalidade aberta).
func WithTrackCallers(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackCallers = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:  make(map[string]*Counters),
		byClass:  make(map[domain.Class]*Counters),
		byCaller: make(map[domain.Key]*Counters),
		byReason: make(map[domain.Scope]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func counter[K comparable](m map[K]*Counters, k K) *Counters {
	c, ok := m[k]
	if !ok {
		c = &Counters{}
		m[k] = c
	}
	return c
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)
	counter(s.byRoute, routeField(ev)).add(ev.Allowed)
	counter(s.byClass, ev.Class).add(ev.Allowed)
	if s.trackCallers && ev.Caller != "" {
		counter(s.byCaller, ev.Caller).add(ev.Allowed)
	}
	if !ev.Allowed && ev.Reason != "" {
		s.byReason[ev.Reason]++
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func snapshot[K comparable](mu *sync.Mutex, m map[K]*Counters) map[K]Counters {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[K]Counters, len(m))
	for k, v := range m {
		out[k] = *v
	}
	return out
}

// ByRoute indexa por "<METHOD> <rota>".
func (s *MemoryStatsStore) ByRoute() map[string]Counters { return snapshot(&s.mu, s.byRoute) }

func (s *MemoryStatsStore) ByClass() map[domain.Class]Counters { return snapshot(&s.mu, s.byClass) }

func (s *MemoryStatsStore) ByCaller() map[domain.Key]Counters { return snapshot(&s.mu, s.byCaller) }

// DeniedBy devolve quantas negações vieram do escopo (caller/global/route).
func (s *MemoryStatsStore) DeniedBy(scope domain.Scope) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byReason[scope]
}
