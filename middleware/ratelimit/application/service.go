package application

import (
	"context"
	"time"

	"kv-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ordem: guard de rajada por rota (opcional) e depois as janelas fixas
// (chamador + global). Ele não sabe nada sobre HTTP (headers/status).
type Service struct {
	Window domain.WindowLimiter
	Routes domain.LimiterStore
	// RetryAfter é usado quando o limiter que negou não informa a espera.
	RetryAfter time.Duration
	Now        func() time.Time
}

// Decide devolve a decisão para o chamador. Um erro do WindowLimiter (ex: Redis
// fora) libera a requisição: o erro volta junto para o chamador registrar.
func (s Service) Decide(ctx context.Context, caller domain.Key, class domain.Class, route string) (domain.Decision, error) {
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	if s.Now == nil {
		s.Now = time.Now
	}

	if s.Routes != nil {
		if lim := s.Routes.Get(routeKey(caller, route)); lim != nil {
			if ok, wait := lim.Take(s.Now()); !ok {
				if wait <= 0 {
					wait = s.RetryAfter
				}
				return domain.Decision{Reason: domain.ScopeRoute, RetryAfter: wait}, nil
			}
		}
	}

	if s.Window == nil {
		return domain.Decision{Allowed: true}, nil
	}
	dec, err := s.Window.Admit(ctx, caller, class)
	if err != nil {
		return domain.Decision{Allowed: true}, err
	}
	if !dec.Allowed && dec.RetryAfter <= 0 {
		dec.RetryAfter = s.RetryAfter
	}
	return dec, nil
}

func routeKey(caller domain.Key, route string) domain.Key {
	if route == "" {
		return caller
	}
	return caller + "|" + domain.Key(route)
}
