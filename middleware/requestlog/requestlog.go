// Package requestlog é o primeiro estágio da cadeia: atribui o X-Request-Id,
// coloca um logger zap da requisição no context, registra uma linha por
// requisição e transforma panics em 500.
package requestlog

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kv-gateway/logging"
	"kv-gateway/respond"
)

const HeaderRequestID = "X-Request-Id"

type Options struct {
	Logger *zap.Logger
	// Endpoint rotula a linha de log; vazio usa r.URL.Path.
	Endpoint string
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			endpoint := opts.Endpoint
			if endpoint == "" {
				endpoint = r.URL.Path
			}
			log := opts.Logger.With(
				zap.String("request_id", id),
				zap.String("ip", clientIP(r)),
				zap.String("endpoint", endpoint),
				zap.String("method", r.Method),
			)
			r = r.WithContext(logging.WithContext(r.Context(), log))

			sw := &statusWriter{ResponseWriter: w}
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic recovered", zap.Any("panic", rec), zap.Stack("stack"))
					if sw.status == 0 {
						respond.Error(sw, http.StatusInternalServerError, "Internal server error")
					}
				}
				log.Info("request",
					zap.Int("status", sw.Status()),
					zap.Duration("duration", time.Since(start)))
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
