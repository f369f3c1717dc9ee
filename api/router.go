// Package api monta a superfície HTTP do gateway: rotas chave-valor, cadastro
// de API keys, /metrics e /healthz, cada rota com sua cadeia de middlewares.
//
// Ordem por rota: requestlog → cors → métricas → [concorrência] → auth → rate
// limit → handler. A autenticação vem antes do rate limit para que tráfego
// sem credencial não consuma cota.
package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"kv-gateway/credentials"
	"kv-gateway/kv"
	"kv-gateway/middleware/auth"
	"kv-gateway/middleware/cors"
	"kv-gateway/middleware/metrics"
	"kv-gateway/middleware/ratelimit"
	"kv-gateway/middleware/ratelimit/infra"
	"kv-gateway/middleware/requestlog"
)

type Deps struct {
	KV          *kv.Service
	Credentials credentials.Store
	AdminKey    credentials.AdminKey

	APIKeyHeader string
	AdminHeader  string

	// RateLimit é o modelo aplicado a cada rota; Route é preenchido aqui.
	RateLimit   ratelimit.Options
	Concurrency ratelimit.ConcurrencyOptions

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	CORSOrigins []string
	Logger      *zap.Logger
}

type Server struct {
	kv       *kv.Service
	creds    credentials.Store
	validate *validator.Validate
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Concurrency.Pool == nil && d.Concurrency.Max > 0 {
		// uma única vaga compartilhada por todas as rotas
		d.Concurrency.Pool = infra.NewChanPool(d.Concurrency.Max)
	}

	s := &Server{kv: d.KV, creds: d.Credentials, validate: newValidator()}
	mux := http.NewServeMux()

	apiKey := auth.APIKey(auth.Options{Store: d.Credentials, Header: d.APIKeyHeader})
	admin := auth.Admin(auth.AdminOptions{Key: d.AdminKey, Header: d.AdminHeader})
	corsMW := cors.Middleware(cors.Options{AllowOrigins: cors.Origins(d.CORSOrigins)})

	route := func(pattern, endpoint string, gate func(http.Handler) http.Handler, h http.HandlerFunc) {
		rl := d.RateLimit
		rl.Route = endpoint

		var chain http.Handler = h
		chain = ratelimit.Middleware(rl)(chain)
		chain = gate(chain)
		chain = ratelimit.ConcurrencyMiddleware(d.Concurrency)(chain)
		if d.Metrics != nil {
			chain = d.Metrics.Middleware(endpoint)(chain)
		}
		chain = corsMW(chain)
		chain = requestlog.Middleware(requestlog.Options{Logger: d.Logger, Endpoint: endpoint})(chain)
		mux.Handle(pattern, chain)
	}

	route("POST /create", "/create", apiKey, s.create)
	route("PUT /update", "/update", apiKey, s.update)
	route("GET /get", "/get", apiKey, s.get)
	route("DELETE /delete", "/delete", apiKey, s.delete)
	route("GET /delete", "/delete", apiKey, s.delete)
	route("GET /ttl", "/ttl", apiKey, s.ttl)
	route("POST /add_apikey", "/add_apikey", admin, s.addAPIKey)

	// fora dos gates
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(d.Gatherer))
	}
	mux.HandleFunc("GET /healthz", healthz)
	mux.Handle("OPTIONS /", corsMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	return mux
}
