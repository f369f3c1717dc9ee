package infra

import (
	"context"
	"sync"

	"kv-gateway/middleware/ratelimit/domain"
)

// ChanPool é o SlotPool padrão: um channel com capacidade fixa.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

func NewChanPool(size int) *ChanPool {
	if size < 1 {
		size = 1
	}
	return &ChanPool{sem: make(chan struct{}, size)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	// vaga livre não depende do ctx
	select {
	case p.sem <- struct{}{}:
		return p.release(), true
	default:
	}

	select {
	case p.sem <- struct{}{}:
		return p.release(), true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) release() func() {
	var once sync.Once
	return func() { once.Do(func() { <-p.sem }) }
}

func (p *ChanPool) InUse() int { return len(p.sem) }
func (p *ChanPool) Cap() int   { return cap(p.sem) }
