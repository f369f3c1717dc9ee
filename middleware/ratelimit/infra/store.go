package infra

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"kv-gateway/middleware/ratelimit/domain"
)

// BucketStore é o guard de rajada por rota: um token bucket (x/time/rate) por
// chave chamador|rota. Buckets sem uso há idleTTL são descartados pelo janitor.
//
// rps=2 e burst=10 equivalem a "10 requisições a cada 5 segundos".
type BucketStore struct {
	mu           sync.Mutex
	buckets      map[domain.Key]*bucket
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type bucket struct {
	lim *rate.Limiter

	mu       sync.Mutex
	lastSeen time.Time
}

var _ domain.Limiter = (*bucket)(nil)

// Take reserva uma ficha e desiste da reserva quando ela exigiria espera.
func (b *bucket) Take(now time.Time) (bool, time.Duration) {
	b.touch(now)

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return false, wait
	}
	return true, 0
}

func (b *bucket) touch(now time.Time) {
	b.mu.Lock()
	if now.After(b.lastSeen) {
		b.lastSeen = now
	}
	b.mu.Unlock()
}

func (b *bucket) idleSince(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen.Before(cutoff)
}

type BucketOption func(*BucketStore)

func WithIdleTTL(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.cleanupEvery = d }
}

func NewBucketStore(rps float64, burst int, opts ...BucketOption) *BucketStore {
	s := &BucketStore{
		buckets:      make(map[domain.Key]*bucket),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *BucketStore) Get(key domain.Key) domain.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(s.rps, s.burst), lastSeen: time.Now()}
		s.buckets[key] = b
	}
	return b
}

// Cleanup descarta buckets ociosos. Um bucket descartado volta cheio.
func (s *BucketStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, b := range s.buckets {
		if b.idleSince(cutoff) {
			delete(s.buckets, k)
		}
	}
}

// StartJanitor roda Cleanup a cada cleanupEvery até o ctx encerrar.
func (s *BucketStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}
