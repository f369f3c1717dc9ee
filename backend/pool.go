package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"kv-gateway/apperr"
)

const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 50 * time.Millisecond
)

// Pool mantém um handle por índice de banco, validado a cada Acquire.
type Pool struct {
	dialer      Dialer
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger

	slots  [NumIndexes]slot
	closed atomic.Bool

	dials  atomic.Int64
	probes atomic.Int64
}

type slot struct {
	mu   sync.Mutex
	conn Conn
}

type PoolOption func(*Pool)

// WithMaxAttempts define quantas vezes a conexão é estabelecida antes de
// desistir com BackendUnavailable. Valores <= 0 usam o padrão.
func WithMaxAttempts(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) PoolOption {
	return func(p *Pool) { p.backoff = d }
}

func WithLogger(l *zap.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

func NewPool(d Dialer, opts ...PoolOption) *Pool {
	p := &Pool{
		dialer:      d,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultRetryBackoff,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type PoolStats struct {
	Dials  int64
	Probes int64
	Cached int
}

func (p *Pool) Stats() PoolStats {
	st := PoolStats{Dials: p.dials.Load(), Probes: p.probes.Load()}
	for i := range p.slots {
		s := &p.slots[i]
		s.mu.Lock()
		if s.conn != nil {
			st.Cached++
		}
		s.mu.Unlock()
	}
	return st
}

// Acquire devolve um handle vivo para o índice db.
//
// O handle em cache passa por um Ping; se falhar é fechado e descartado e uma
// nova conexão é estabelecida com até maxAttempts tentativas. O handle devolvido
// passou pela validação nesta chamada, mas pode morrer logo depois: o chamador
// trata falhas posteriores como erros novos.
func (p *Pool) Acquire(ctx context.Context, db int) (Conn, error) {
	if err := ValidateIndex(db); err != nil {
		return nil, err
	}
	if p.closed.Load() {
		return nil, apperr.New(apperr.BackendUnavailable, "connection pool is closed")
	}

	s := &p.slots[db]
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		p.probes.Add(1)
		err := s.conn.Ping(ctx)
		if err == nil {
			return s.conn, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			// o probe falhou porque o chamador desistiu; o handle pode estar são
			return nil, apperr.Wrap(apperr.BackendUnavailable, "request cancelled", ctxErr)
		}
		p.log.Warn("cached backend handle failed liveness probe",
			zap.Int("db_index", db), zap.Error(err))
		_ = s.conn.Close()
		s.conn = nil
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		conn, err := p.connect(ctx, db)
		if err == nil {
			s.conn = conn
			if attempt > 1 {
				p.log.Info("backend connection re-established",
					zap.Int("db_index", db), zap.Int("attempt", attempt))
			}
			return conn, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperr.Wrap(apperr.BackendUnavailable, "request cancelled", ctxErr)
		}
		if !IsTransient(err) {
			return nil, apperr.Wrap(apperr.Internal,
				fmt.Sprintf("connect to db_index %d", db), err)
		}

		p.log.Warn("backend connection attempt failed",
			zap.Int("db_index", db),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxAttempts),
			zap.Error(err))

		if attempt < p.maxAttempts {
			if err := sleepCtx(ctx, p.backoff); err != nil {
				return nil, apperr.Wrap(apperr.BackendUnavailable, "request cancelled", err)
			}
		}
	}

	return nil, apperr.Wrap(apperr.BackendUnavailable,
		fmt.Sprintf("failed to connect to backend on db_index %d after %d attempts", db, p.maxAttempts),
		lastErr)
}

func (p *Pool) connect(ctx context.Context, db int) (Conn, error) {
	p.dials.Add(1)
	conn, err := p.dialer.Dial(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Close fecha todos os handles em cache. Acquire falha depois disso.
func (p *Pool) Close() error {
	p.closed.Store(true)

	var first error
	for i := range p.slots {
		s := &p.slots[i]
		s.mu.Lock()
		if s.conn != nil {
			if err := s.conn.Close(); err != nil && first == nil {
				first = err
			}
			s.conn = nil
		}
		s.mu.Unlock()
	}
	return first
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
