package infra

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"kv-gateway/middleware/ratelimit/domain"
)

// RedisStatsStore agrega as decisões em hashes no Redis, compartilhados entre
// gateways:
//
//	<prefix>:total                allowed / denied / denied:<escopo>
//	<prefix>:class                <classe>:allowed|denied
//	<prefix>:route                "<METHOD> <rota>:allowed|denied"
//	<prefix>:minute:<yyyymmddhhmm> allowed / denied (expira em ttl)
//	<prefix>:caller:<chamador>    allowed / denied (opcional, expira em ttl)
type RedisStatsStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration

	perMinute    bool
	trackCallers bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithStatsTTL define a expiração das séries por minuto e por chamador.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsPerMinute(on bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.perMinute = on }
}

func WithStatsTrackCallers(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackCallers = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:       rdb,
		prefix:    "gateway:ratelimit:stats",
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func routeField(ev domain.StatsEvent) string {
	return strings.TrimSpace(ev.Method + " " + ev.Route)
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// Record envia todos os incrementos num único pipeline.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := ev.Outcome()

	pipe := s.rdb.Pipeline()
	total := s.key("total")
	pipe.HIncrBy(ctx, total, outcome, 1)
	if !ev.Allowed && ev.Reason != "" {
		pipe.HIncrBy(ctx, total, outcome+":"+string(ev.Reason), 1)
	}
	pipe.HIncrBy(ctx, s.key("class"), ev.Class.String()+":"+outcome, 1)
	if rf := routeField(ev); rf != "" {
		pipe.HIncrBy(ctx, s.key("route"), rf+":"+outcome, 1)
	}

	expiring := func(k string) {
		pipe.HIncrBy(ctx, k, outcome, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
	}
	if s.perMinute {
		expiring(s.key("minute", at.UTC().Format("200601021504")))
	}
	if s.trackCallers && ev.Caller != "" {
		expiring(s.key("caller", string(ev.Caller)))
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals lê o hash <prefix>:total.
func (s *RedisStatsStore) Totals(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HMGet(ctx, s.key("total"), "allowed", "denied").Result()
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	c.Allowed = parseCount(vals[0])
	c.Denied = parseCount(vals[1])
	return c, nil
}

func parseCount(v any) int64 {
	str, _ := v.(string)
	n, _ := strconv.ParseInt(str, 10, 64)
	return n
}
