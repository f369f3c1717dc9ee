package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"kv-gateway/middleware/ratelimit/domain"
)

// DefaultWindow é o tamanho da janela fixa.
const DefaultWindow = 60 * time.Second

// FixedWindow conta requisições em janelas fixas alinhadas ao relógio
// (início = now - now mod window).
//
// Cada janela tem um contador global e um mapa concorrente (xsync) de
// contadores por chamador. Os incrementos usam CAS "incrementa se abaixo do
// teto": nunca passam do limite, mesmo sob concorrência.
type FixedWindow struct {
	limits     domain.Limits
	size       time.Duration
	now        func() time.Time
	sweepEvery time.Duration

	mu      sync.RWMutex
	windows map[int64]*windowCounters
}

type windowCounters struct {
	global  atomic.Int64
	callers *xsync.MapOf[domain.Key, *atomic.Int64]
}

type WindowOption func(*FixedWindow)

func WithWindowSize(d time.Duration) WindowOption {
	return func(w *FixedWindow) {
		if d >= time.Second {
			w.size = d.Truncate(time.Second)
		}
	}
}

// WithClock troca a fonte de tempo (testes).
func WithClock(now func() time.Time) WindowOption {
	return func(w *FixedWindow) { w.now = now }
}

func WithSweepEvery(d time.Duration) WindowOption {
	return func(w *FixedWindow) { w.sweepEvery = d }
}

func NewFixedWindow(limits domain.Limits, opts ...WindowOption) *FixedWindow {
	w := &FixedWindow{
		limits:     limits,
		size:       DefaultWindow,
		now:        time.Now,
		sweepEvery: time.Minute,
		windows:    make(map[int64]*windowCounters),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *FixedWindow) Limits() domain.Limits { return w.limits }
func (w *FixedWindow) Size() time.Duration   { return w.size }

// windowStart devolve o início da janela em segundos unix.
func windowStart(t time.Time, size time.Duration) int64 {
	sec := int64(size / time.Second)
	now := t.Unix()
	return now - now%sec
}

func (w *FixedWindow) counters(start int64) *windowCounters {
	w.mu.RLock()
	wc := w.windows[start]
	w.mu.RUnlock()
	if wc != nil {
		return wc
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if wc = w.windows[start]; wc != nil {
		return wc
	}
	wc = &windowCounters{callers: xsync.NewMapOf[domain.Key, *atomic.Int64]()}
	w.windows[start] = wc
	// janela nova: as anteriores nunca mais são lidas
	for k := range w.windows {
		if k < start {
			delete(w.windows, k)
		}
	}
	return wc
}

// incrBelow incrementa c somente se o valor atual for menor que limit.
func incrBelow(c *atomic.Int64, limit int) (int64, bool) {
	for {
		v := c.Load()
		if v >= int64(limit) {
			return v, false
		}
		if c.CompareAndSwap(v, v+1) {
			return v + 1, true
		}
	}
}

func (w *FixedWindow) Admit(_ context.Context, caller domain.Key, class domain.Class) (domain.Decision, error) {
	now := w.now()
	start := windowStart(now, w.size)
	resetAt := time.Unix(start, 0).Add(w.size)
	limit := w.limits.For(class)

	wc := w.counters(start)
	ctr, _ := wc.callers.LoadOrCompute(caller, func() *atomic.Int64 { return new(atomic.Int64) })

	dec := domain.Decision{Limit: limit, ResetAt: resetAt}

	n, ok := incrBelow(ctr, limit)
	if !ok {
		dec.Reason = domain.ScopeCaller
		dec.RetryAfter = resetAt.Sub(now)
		return dec, nil
	}
	if _, ok := incrBelow(&wc.global, w.limits.Global); !ok {
		// devolve a vaga do chamador: negação não consome cota
		ctr.Add(-1)
		dec.Reason = domain.ScopeGlobal
		dec.RetryAfter = resetAt.Sub(now)
		return dec, nil
	}

	dec.Allowed = true
	dec.Remaining = limit - int(n)
	return dec, nil
}

// Count devolve os contadores da janela corrente (chamador, global).
func (w *FixedWindow) Count(caller domain.Key) (int64, int64) {
	start := windowStart(w.now(), w.size)

	w.mu.RLock()
	wc := w.windows[start]
	w.mu.RUnlock()
	if wc == nil {
		return 0, 0
	}
	var n int64
	if ctr, ok := wc.callers.Load(caller); ok {
		n = ctr.Load()
	}
	return n, wc.global.Load()
}

// Windows devolve quantas janelas estão em memória.
func (w *FixedWindow) Windows() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.windows)
}

// Sweep descarta janelas que já terminaram.
func (w *FixedWindow) Sweep() {
	start := windowStart(w.now(), w.size)

	w.mu.Lock()
	defer w.mu.Unlock()
	for k := range w.windows {
		if k < start {
			delete(w.windows, k)
		}
	}
}

// StartJanitor limpa janelas expiradas periodicamente, liberando memória
// mesmo quando não chegam requisições novas. Pare cancelando o contexto.
func (w *FixedWindow) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, w.sweepEvery, w.Sweep)
}
