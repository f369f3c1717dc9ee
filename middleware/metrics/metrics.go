// Package metrics mede todas as requisições do gateway com
// prometheus/client_golang e expõe /metrics.
//
//	request_count{method,endpoint,status}   Counter
//	request_latency_seconds{endpoint}       Summary
//
// O timer envolve o resto da cadeia (auth, rate limit, handler), então
// rejeições e falhas também são contadas.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.SummaryVec
}

// New registra os coletores em reg. Registrar duas vezes no mesmo registry
// reaproveita os coletores existentes.
func New(reg prometheus.Registerer) (*Metrics, error) {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_count",
			Help: "App Request Count",
		},
		[]string{"method", "endpoint", "status"},
	)
	latency := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "request_latency_seconds",
			Help:       "Request latency",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"endpoint"},
	)

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, latency: latency}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Middleware mede a rota endpoint. Use o padrão da rota (ex: "/get"), nunca o
// path cru, para manter a cardinalidade baixa.
func (m *Metrics) Middleware(endpoint string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			// panic abaixo conta como 500; quem recupera é o requestlog
			panicked := true
			defer func() {
				status := sw.Status()
				if panicked {
					status = http.StatusInternalServerError
				}
				m.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
				m.requests.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
			}()

			next.ServeHTTP(sw, r)
			panicked = false
		})
	}
}

// Handler serve /metrics a partir do gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
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
