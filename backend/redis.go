package backend

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDialer abre um *redis.Client por índice de banco.
//
// As retentativas internas do go-redis ficam desligadas: quem decide quando
// reconectar é o Pool.
type RedisDialer struct {
	Addr         string
	Password     string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

func (d RedisDialer) Dial(_ context.Context, db int) (Conn, error) {
	if err := ValidateIndex(db); err != nil {
		return nil, err
	}
	opts := &redis.Options{
		Addr:         d.Addr,
		Password:     d.Password,
		DB:           db,
		DialTimeout:  d.DialTimeout,
		ReadTimeout:  d.ReadTimeout,
		WriteTimeout: d.WriteTimeout,
		PoolSize:     d.PoolSize,
		MaxRetries:   -1,
	}
	return &RedisConn{rdb: redis.NewClient(opts)}, nil
}

// RedisConn implementa Conn sobre go-redis.
type RedisConn struct {
	rdb *redis.Client
}

func NewRedisConn(rdb *redis.Client) *RedisConn { return &RedisConn{rdb: rdb} }

func (c *RedisConn) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisConn) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisConn) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisConn) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisConn) Del(ctx context.Context, key string) (int64, error) {
	return c.rdb.Del(ctx, key).Result()
}

// TTL traduz as sentinelas do Redis: -2 (chave inexistente) e -1 (sem expiração).
func (c *RedisConn) TTL(ctx context.Context, key string) (TTL, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return TTL{}, err
	}
	switch d {
	case -2:
		return TTL{State: TTLMissing}, nil
	case -1:
		return TTL{State: TTLNone}, nil
	}
	return TTL{State: TTLExpires, Remaining: d}, nil
}

func (c *RedisConn) Close() error { return c.rdb.Close() }
