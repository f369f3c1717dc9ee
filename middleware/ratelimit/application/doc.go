// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, caller, class, route) retorna uma Decision
// combinando o guard de rajada por rota com as janelas fixas.
package application
