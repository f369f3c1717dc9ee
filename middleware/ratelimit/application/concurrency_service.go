package application

import (
	"context"
	"errors"
	"time"

	"kv-gateway/middleware/ratelimit/domain"
)

// DefaultAcquireTimeout limita a espera por uma vaga. O gateway não enfileira:
// quem não consegue vaga nesse prazo é rejeitado.
const DefaultAcquireTimeout = 100 * time.Millisecond

// ErrNoSlot indica que o prazo de aquisição acabou com o pool cheio.
var ErrNoSlot = errors.New("no concurrency slot available")

type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire devolve o release da vaga. Sem Pool não há limite. Se o ctx da
// requisição encerrar antes do prazo, devolve o erro do ctx em vez de ErrNoSlot.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	timeout := s.AcquireTimeout
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	acqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoSlot
}

// InUse devolve quantas vagas estão ocupadas (0 sem Pool).
func (s ConcurrencyService) InUse() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.InUse()
}
