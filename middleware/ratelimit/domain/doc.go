// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// (janelas fixas, classes de chamador, limite global) de detalhes de
// infraestrutura (memória, Redis).
package domain
