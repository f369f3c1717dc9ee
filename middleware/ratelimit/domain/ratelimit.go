package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key identifica o chamador (normalmente o IP de origem).
type Key string

// Class separa chamadores confiáveis (loopback/redes internas) dos demais.
type Class int

const (
	ClassGeneral Class = iota
	ClassTrustedLocal
)

func (c Class) String() string {
	if c == ClassTrustedLocal {
		return "trusted_local"
	}
	return "general"
}

// Scope diz qual contador negou a requisição. Serve só para log/estatística:
// o cliente recebe a mesma resposta em todos os casos.
type Scope string

const (
	ScopeCaller Scope = "caller"
	ScopeGlobal Scope = "global"
	ScopeRoute  Scope = "route"
)

// Limits são os tetos por janela.
type Limits struct {
	Global  int
	Trusted int
	General int
}

func DefaultLimits() Limits {
	return Limits{Global: 1000, Trusted: 100, General: 5}
}

func (l Limits) For(c Class) int {
	if c == ClassTrustedLocal {
		return l.Trusted
	}
	return l.General
}

type Decision struct {
	Allowed bool
	// Reason é vazio quando Allowed.
	Reason Scope

	Limit     int
	Remaining int
	ResetAt   time.Time

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// WindowLimiter conta requisições em janelas fixas, por chamador e no global.
//
// A N-ésima requisição de uma janela com teto N é aceita; a (N+1)-ésima é
// negada. Negações não incrementam nenhum contador.
type WindowLimiter interface {
	Admit(ctx context.Context, caller Key, class Class) (Decision, error)
}

// Limiter é o guard de rajada de uma chave (token bucket).
//
// Take consome uma ficha em now. Sem ficha, devolve false e quanto falta para
// a próxima (0 se o limiter não souber dizer).
type Limiter interface {
	Take(now time.Time) (ok bool, wait time.Duration)
}

// LimiterStore obtém o limiter de uma chave (chamador|rota), criando sob demanda.
type LimiterStore interface {
	Get(Key) Limiter
}
