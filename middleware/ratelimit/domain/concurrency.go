package domain

import "context"

// SlotPool limita requisições em andamento no gateway inteiro.
//
// Acquire bloqueia até haver vaga ou o ctx encerrar. O release pode ser
// chamado mais de uma vez; só a primeira chamada devolve a vaga.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InUse() int
}
