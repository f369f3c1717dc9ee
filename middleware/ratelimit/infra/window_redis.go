package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"kv-gateway/middleware/ratelimit/domain"
)

// fixedWindowScript verifica os dois tetos antes de incrementar qualquer
// contador, tudo dentro de um único EVAL (atômico no Redis).
//
// Retorno: {allowed, caller_count, reason} com reason 0=ok 1=caller 2=global.
var fixedWindowScript = redis.NewScript(`
local caller_key = KEYS[1]
local global_key = KEYS[2]
local caller_limit = tonumber(ARGV[1])
local global_limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local c = tonumber(redis.call('GET', caller_key) or '0')
if c >= caller_limit then
  return {0, c, 1}
end
local g = tonumber(redis.call('GET', global_key) or '0')
if g >= global_limit then
  return {0, c, 2}
end
c = redis.call('INCR', caller_key)
if c == 1 then
  redis.call('EXPIRE', caller_key, ttl)
end
g = redis.call('INCR', global_key)
if g == 1 then
  redis.call('EXPIRE', global_key, ttl)
end
return {1, c, 0}
`)

// RedisWindow implementa domain.WindowLimiter no Redis, para vários gateways
// compartilharem as mesmas cotas. Chaves:
//
//	<prefix>:ip:<caller>:<window_start>
//	<prefix>:global:<window_start>
type RedisWindow struct {
	rdb    redis.Scripter
	limits domain.Limits
	size   time.Duration
	prefix string
	now    func() time.Time
}

type RedisWindowOption func(*RedisWindow)

func WithRedisWindowPrefix(prefix string) RedisWindowOption {
	return func(w *RedisWindow) { w.prefix = strings.Trim(prefix, ":") }
}

func WithRedisWindowSize(d time.Duration) RedisWindowOption {
	return func(w *RedisWindow) {
		if d >= time.Second {
			w.size = d.Truncate(time.Second)
		}
	}
}

func WithRedisWindowClock(now func() time.Time) RedisWindowOption {
	return func(w *RedisWindow) { w.now = now }
}

func NewRedisWindow(rdb redis.Scripter, limits domain.Limits, opts ...RedisWindowOption) *RedisWindow {
	w := &RedisWindow{
		rdb:    rdb,
		limits: limits,
		size:   DefaultWindow,
		prefix: "rate_limit",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *RedisWindow) keys(caller domain.Key, start int64) []string {
	ws := strconv.FormatInt(start, 10)
	return []string{
		fmt.Sprintf("%s:ip:%s:%s", w.prefix, caller, ws),
		fmt.Sprintf("%s:global:%s", w.prefix, ws),
	}
}

func (w *RedisWindow) Admit(ctx context.Context, caller domain.Key, class domain.Class) (domain.Decision, error) {
	now := w.now()
	start := windowStart(now, w.size)
	resetAt := time.Unix(start, 0).Add(w.size)
	limit := w.limits.For(class)

	// expira depois da janela; a margem cobre diferença de relógio entre gateways
	ttl := int64(2 * w.size / time.Second)
	res, err := fixedWindowScript.Run(ctx, w.rdb, w.keys(caller, start), limit, w.limits.Global, ttl).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return domain.Decision{}, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	dec := domain.Decision{Limit: limit, ResetAt: resetAt}
	switch res[2] {
	case 1:
		dec.Reason = domain.ScopeCaller
	case 2:
		dec.Reason = domain.ScopeGlobal
	default:
		dec.Allowed = true
		dec.Remaining = limit - int(res[1])
		return dec, nil
	}
	dec.RetryAfter = resetAt.Sub(now)
	return dec, nil
}
