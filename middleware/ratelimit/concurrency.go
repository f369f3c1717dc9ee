package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kv-gateway/logging"
	"kv-gateway/middleware/ratelimit/application"
	"kv-gateway/middleware/ratelimit/domain"
	"kv-gateway/middleware/ratelimit/infra"
	"kv-gateway/respond"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool substitui o semáforo padrão (infra.ChanPool); útil para
	// compartilhar o mesmo limite entre várias rotas.
	Pool domain.SlotPool
}

// ConcurrencyMiddleware limita requisições em andamento. Max <= 0 sem Pool
// desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		opts.Pool = infra.NewChanPool(opts.Max)
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				log := logging.FromContext(r.Context())
				if errors.Is(err, application.ErrNoSlot) {
					log.Warn("concurrency limit reached", zap.Int("in_use", svc.InUse()))
				} else {
					log.Debug("request gone while waiting for a slot", zap.Error(err))
				}
				respond.Error(w, opts.RejectStatus, http.StatusText(opts.RejectStatus))
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
