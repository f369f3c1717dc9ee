package credentials

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// CachedStore memoriza apenas consultas positivas. Negativas sempre vão ao
// Store, então uma chave recém-adicionada vale na hora.
type CachedStore struct {
	next  Store
	known *lru.Cache
}

func NewCachedStore(next Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("api key cache: %w", err)
	}
	return &CachedStore{next: next, known: c}, nil
}

func (c *CachedStore) Exists(ctx context.Context, key string) (bool, error) {
	if c.known.Contains(key) {
		return true, nil
	}
	ok, err := c.next.Exists(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	c.known.Add(key, struct{}{})
	return true, nil
}

func (c *CachedStore) Add(ctx context.Context, k APIKey) error {
	if err := c.next.Add(ctx, k); err != nil {
		return err
	}
	c.known.Add(k.Value, struct{}{})
	return nil
}

func (c *CachedStore) Len() int { return c.known.Len() }
