package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

type blockingPool struct {
	deadline time.Time
}

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	p.deadline, _ = ctx.Deadline()
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		return nil, false
	}
}

func (p *blockingPool) InUse() int { return 1 }

type immediatePool struct {
	acquired int
}

func (p *immediatePool) Acquire(context.Context) (func(), bool) {
	p.acquired++
	return func() {}, true
}

func (p *immediatePool) InUse() int { return p.acquired }

func TestConcurrencyService_Acquire_AllowsWhenNoPool(t *testing.T) {
	svc := ConcurrencyService{}
	release, err := svc.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected slot, got %v", err)
	}
	release()
	if svc.InUse() != 0 {
		t.Fatalf("expected zero in use without a pool")
	}
}

func TestConcurrencyService_Acquire_TimesOutWithErrNoSlot(t *testing.T) {
	pool := &blockingPool{}
	svc := ConcurrencyService{Pool: pool, AcquireTimeout: 10 * time.Millisecond}

	_, err := svc.Acquire(context.Background())
	if !errors.Is(err, ErrNoSlot) {
		t.Fatalf("expected ErrNoSlot, got %v", err)
	}
}

func TestConcurrencyService_Acquire_NeverWaitsUnbounded(t *testing.T) {
	pool := &blockingPool{}
	svc := ConcurrencyService{Pool: pool}

	start := time.Now()
	if _, err := svc.Acquire(context.Background()); err == nil {
		t.Fatalf("expected default timeout")
	}
	if pool.deadline.IsZero() {
		t.Fatalf("expected acquire context to carry a deadline")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected default timeout around %s, waited %s", DefaultAcquireTimeout, elapsed)
	}
}

func TestConcurrencyService_Acquire_CanceledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := ConcurrencyService{Pool: &blockingPool{}, AcquireTimeout: time.Second}

	_, err := svc.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConcurrencyService_Acquire_DelegatesToPool(t *testing.T) {
	pool := &immediatePool{}
	svc := ConcurrencyService{Pool: pool}

	if _, err := svc.Acquire(context.Background()); err != nil {
		t.Fatalf("expected slot, got %v", err)
	}
	if pool.acquired != 1 || svc.InUse() != 1 {
		t.Fatalf("expected pool Acquire to be called once, got %d", pool.acquired)
	}
}
