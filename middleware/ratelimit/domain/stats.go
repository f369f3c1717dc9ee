package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão do rate limit já tomada: quem pediu, em que classe,
// em qual rota do gateway e qual contador negou (se negou).
//
// Route é o padrão registrado (/get, /create...), nunca o path cru, para manter
// a cardinalidade fechada.
type StatsEvent struct {
	Caller  Key
	Class   Class
	Allowed bool
	Reason  Scope

	Method string
	Route  string

	At time.Time
}

// Outcome devolve "allowed" ou "denied".
func (e StatsEvent) Outcome() string {
	if e.Allowed {
		return "allowed"
	}
	return "denied"
}

// StatsStore persiste as decisões. O middleware ignora erros de Record.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
