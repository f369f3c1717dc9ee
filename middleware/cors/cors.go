// Package cors responde CORS para os clientes de navegador. O padrão é
// liberar qualquer origem, método e header.
package cors

import (
	"net/http"
	"slices"
	"strings"
)

type Options struct {
	// AllowOrigins vazio ou contendo "*" libera qualquer origem.
	AllowOrigins     []string
	AllowCredentials bool
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	allowAll := len(opts.AllowOrigins) == 0 || slices.Contains(opts.AllowOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			switch {
			case allowAll && !opts.AllowCredentials:
				h.Set("Access-Control-Allow-Origin", "*")
			case allowAll || slices.Contains(opts.AllowOrigins, origin):
				// com credenciais o navegador não aceita "*"
				h.Set("Access-Control-Allow-Origin", origin)
			default:
				next.ServeHTTP(w, r)
				return
			}
			if opts.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				} else {
					h.Set("Access-Control-Allow-Headers", "*")
				}
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Origins normaliza a lista vinda da configuração.
func Origins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}
