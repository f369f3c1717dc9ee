package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"kv-gateway/logging"
	"kv-gateway/middleware/ratelimit/application"
	"kv-gateway/middleware/ratelimit/domain"
	"kv-gateway/respond"
)

// MsgRateLimited é o corpo de toda negação, qualquer que seja o contador.
const MsgRateLimited = "Rate limit exceeded"

type KeyFunc func(r *http.Request) string

type Options struct {
	// Window aplica as janelas fixas (chamador + global). Obrigatório.
	Window domain.WindowLimiter
	// Routes, se definido, é o guard de rajada por chamador+rota.
	Routes domain.LimiterStore
	Stats  domain.StatsStore

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	// Classify separa chamadores confiáveis; nil usa só loopback.
	Classify Classifier

	// Route identifica a rota no guard e nas estatísticas; vazio usa r.URL.Path.
	Route string

	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				ip, _, _ := strings.Cut(xff, ",")
				if ip = strings.TrimSpace(ip); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Classify == nil {
		opts.Classify = LoopbackOnly
	}

	svc := application.Service{
		Window:     opts.Window,
		Routes:     opts.Routes,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			class := opts.Classify(key)
			route := opts.Route
			if route == "" {
				route = r.URL.Path
			}
			log := logging.FromContext(r.Context())

			dec, err := svc.Decide(r.Context(), domain.Key(key), class, route)
			if err != nil {
				log.Warn("rate limit backend failed, request allowed",
					zap.String("caller", key), zap.String("route", route), zap.Error(err))
			}

			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Caller:  domain.Key(key),
					Class:   class,
					Allowed: dec.Allowed,
					Reason:  dec.Reason,
					Method:  r.Method,
					Route:   route,
					At:      time.Now(),
				}); err != nil {
					log.Debug("rate limit stats not recorded", zap.Error(err))
				}
			}

			if opts.AddRateLimitHeaders && dec.Limit > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
				h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				h.Set("X-RateLimit-Reset", formatUnix(dec.ResetAt))
			}

			if !dec.Allowed {
				log.Info("rate limited",
					zap.String("caller", key),
					zap.Stringer("class", class),
					zap.String("reason", string(dec.Reason)),
					zap.String("route", route))
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
				respond.Error(w, opts.RejectStatus, MsgRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
