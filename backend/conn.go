package backend

import (
	"context"
	"fmt"
	"time"

	"kv-gateway/apperr"
)

const (
	NumIndexes = 16
	MaxIndex   = NumIndexes - 1
)

// ValidateIndex rejeita índices fora de [0, 15] sem tocar no backend.
func ValidateIndex(db int) error {
	if db < 0 || db > MaxIndex {
		return apperr.New(apperr.InvalidArgument,
			fmt.Sprintf("db_index must be an integer between 0 and %d", MaxIndex))
	}
	return nil
}

type TTLState int

const (
	TTLMissing TTLState = iota
	TTLNone
	TTLExpires
)

// TTL representa a resposta do backend para o tempo de vida de uma chave.
// Remaining só é significativo quando State == TTLExpires.
type TTL struct {
	State     TTLState
	Remaining time.Duration
}

// Seconds arredonda para cima: uma chave viva nunca reporta TTL 0.
func (t TTL) Seconds() int64 {
	return int64((t.Remaining + time.Second - 1) / time.Second)
}

// Conn é uma sessão com um banco lógico específico.
type Conn interface {
	Ping(ctx context.Context) error
	Exists(ctx context.Context, key string) (bool, error)
	// Get devolve found=false quando a chave não existe.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set grava o valor. ttl == 0 grava sem expiração (removendo uma anterior).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) (int64, error)
	TTL(ctx context.Context, key string) (TTL, error)
	Close() error
}

// Dialer cria uma nova sessão para o índice informado.
type Dialer interface {
	Dial(ctx context.Context, db int) (Conn, error)
}
