package credentials

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"kv-gateway/apperr"
)

var (
	ErrDuplicate = errors.New("api key already exists")
	ErrEmptyKey  = errors.New("api key is empty")
)

const (
	MsgAdded     = "API Key added successfully"
	MsgDuplicate = "API Key already exists"
)

type APIKey struct {
	Value       string
	Description string
	CreatedAt   time.Time
}

// Store é o contrato usado pelo gate de autenticação e pelo /add_apikey.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Add(ctx context.Context, k APIKey) error
}

// Register valida e insere uma chave, traduzindo os erros para apperr.
func Register(ctx context.Context, s Store, k APIKey) error {
	if strings.TrimSpace(k.Value) == "" {
		return apperr.Wrap(apperr.InvalidArgument, "api_key is required", ErrEmptyKey)
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	err := s.Add(ctx, k)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicate):
		return apperr.Wrap(apperr.Conflict, MsgDuplicate, err)
	default:
		return apperr.Wrap(apperr.Internal, "add api key", err)
	}
}

// AdminKey compara o segredo de administrador em tempo constante.
type AdminKey struct {
	secret []byte
}

func NewAdminKey(secret string) AdminKey {
	return AdminKey{secret: []byte(secret)}
}

// Match exige igualdade exata. Com segredo vazio nada é aceito.
func (a AdminKey) Match(candidate string) bool {
	if len(a.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a.secret, []byte(candidate)) == 1
}
