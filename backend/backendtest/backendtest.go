// Package backendtest fornece um backend chave-valor em memória para testes
// do Pool e dos handlers, com controle de falhas de conexão.
package backendtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"kv-gateway/backend"
)

// ErrDown simula conexão recusada.
var ErrDown = fmt.Errorf("%w: connection refused", backend.ErrTransient)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store guarda os 16 bancos lógicos e um relógio ajustável.
type Store struct {
	mu     sync.Mutex
	dbs    [backend.NumIndexes]map[string]entry
	offset time.Duration
}

func NewStore() *Store {
	s := &Store{}
	for i := range s.dbs {
		s.dbs[i] = make(map[string]entry)
	}
	return s
}

// Advance move o relógio interno para frente (expira chaves com TTL).
func (s *Store) Advance(d time.Duration) {
	s.mu.Lock()
	s.offset += d
	s.mu.Unlock()
}

func (s *Store) now() time.Time { return time.Now().Add(s.offset) }

// lookup deve ser chamado com s.mu travado.
func (s *Store) lookup(db int, key string) (entry, bool) {
	e, ok := s.dbs[db][key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.dbs[db], key)
		return entry{}, false
	}
	return e, true
}

// Dialer entrega Conns sobre o Store. FailWith faz os próximos Dial falharem.
type Dialer struct {
	Store *Store

	mu    sync.Mutex
	fail  error
	dials int
	conns []*Conn
	gate  map[int]chan struct{}
}

func NewDialer(s *Store) *Dialer {
	if s == nil {
		s = NewStore()
	}
	return &Dialer{Store: s}
}

func (d *Dialer) FailWith(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

// Block faz Dial no índice db esperar até o canal devolvido ser fechado.
func (d *Dialer) Block(db int) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate == nil {
		d.gate = make(map[int]chan struct{})
	}
	ch := make(chan struct{})
	d.gate[db] = ch
	return ch
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Disconnect derruba todas as conexões já entregues.
func (d *Dialer) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		c.dead.Store(true)
	}
}

func (d *Dialer) Dial(ctx context.Context, db int) (backend.Conn, error) {
	d.mu.Lock()
	d.dials++
	fail := d.fail
	gate := d.gate[db]
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}

	c := &Conn{store: d.Store, db: db}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

// Conn implementa backend.Conn. Depois de morta, toda operação devolve ErrDown.
type Conn struct {
	store  *Store
	db     int
	dead   atomic.Bool
	closed atomic.Bool
	pings  atomic.Int64

	// OpErr, se definido, é devolvido por todas as operações de dados.
	OpErr error
}

func (c *Conn) Kill() { c.dead.Store(true) }
func (c *Conn) Closed() bool { return c.closed.Load() }
func (c *Conn) Pings() int64 { return c.pings.Load() }
func (c *Conn) Index() int { return c.db }
func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *Conn) alive() error {
	if c.dead.Load() || c.closed.Load() {
		return ErrDown
	}
	return nil
}

func (c *Conn) Ping(ctx context.Context) error {
	c.pings.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.alive()
}

func (c *Conn) check() error {
	if err := c.alive(); err != nil {
		return err
	}
	return c.OpErr
}

func (c *Conn) Exists(_ context.Context, key string) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	_, ok := c.store.lookup(c.db, key)
	return ok, nil
}

func (c *Conn) Get(_ context.Context, key string) (string, bool, error) {
	if err := c.check(); err != nil {
		return "", false, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	e, ok := c.store.lookup(c.db, key)
	return e.value, ok, nil
}

func (c *Conn) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.store.now().Add(ttl)
	}
	c.store.dbs[c.db][key] = e
	return nil
}

func (c *Conn) Del(_ context.Context, key string) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if _, ok := c.store.lookup(c.db, key); !ok {
		return 0, nil
	}
	delete(c.store.dbs[c.db], key)
	return 1, nil
}

func (c *Conn) TTL(_ context.Context, key string) (backend.TTL, error) {
	if err := c.check(); err != nil {
		return backend.TTL{}, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	e, ok := c.store.lookup(c.db, key)
	if !ok {
		return backend.TTL{State: backend.TTLMissing}, nil
	}
	if e.expiresAt.IsZero() {
		return backend.TTL{State: backend.TTLNone}, nil
	}
	return backend.TTL{State: backend.TTLExpires, Remaining: e.expiresAt.Sub(c.store.now())}, nil
}
