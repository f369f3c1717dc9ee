// Package apperr define a taxonomia de erros do gateway e a tradução de cada
// tipo para status HTTP.
//
// Resultados de negócio (chave inexistente, chave duplicada) são erros com
// Kind explícito, nunca panics. Falhas de backend e internas carregam o erro
// original para log, mas expõem ao cliente apenas uma mensagem genérica.
package apperr
