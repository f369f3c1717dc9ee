// Package auth implementa os gates de credencial do gateway: API key para as
// rotas de dados e segredo de administrador para o /add_apikey.
//
// Os gates rodam antes do rate limit: tráfego não autenticado nunca consome
// cota. Em falha o próximo handler não é chamado.
package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"kv-gateway/credentials"
	"kv-gateway/logging"
	"kv-gateway/respond"
)

const (
	DefaultHeader      = "X-API-Key"
	DefaultAdminHeader = "X-Admin-Key"

	MsgInvalidKey   = "Invalid API Key"
	MsgUnauthorized = "Unauthorized"
	msgInternal     = "Internal server error"
)

// Checker é o lado de leitura do credentials.Store.
type Checker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

type Options struct {
	Store  Checker
	Header string
}

// APIKey exige uma chave cadastrada no header configurado. Chave ausente ou
// desconhecida dá 403; erro do store dá 500 genérico.
func APIKey(opts Options) func(next http.Handler) http.Handler {
	if opts.Header == "" {
		opts.Header = DefaultHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(opts.Header))
			log := logging.FromContext(r.Context())

			if key == "" {
				log.Info("missing api key", zap.String("endpoint", r.URL.Path))
				respond.Error(w, http.StatusForbidden, MsgInvalidKey)
				return
			}

			ok, err := opts.Store.Exists(r.Context(), key)
			if err != nil {
				log.Error("api key lookup failed", zap.String("endpoint", r.URL.Path), zap.Error(err))
				respond.Error(w, http.StatusInternalServerError, msgInternal)
				return
			}
			if !ok {
				log.Info("invalid api key", zap.String("endpoint", r.URL.Path))
				respond.Error(w, http.StatusForbidden, MsgInvalidKey)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type AdminOptions struct {
	Key    credentials.AdminKey
	Header string
}

// Admin compara o header com o segredo de boot (igualdade exata).
func Admin(opts AdminOptions) func(next http.Handler) http.Handler {
	if opts.Header == "" {
		opts.Header = DefaultAdminHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opts.Key.Match(r.Header.Get(opts.Header)) {
				logging.FromContext(r.Context()).Warn("admin authentication failed", zap.String("endpoint", r.URL.Path))
				respond.Error(w, http.StatusForbidden, MsgUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
