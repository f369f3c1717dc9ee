// Package backend gerencia as conexões com o armazenamento chave-valor
// (Redis, 16 bancos lógicos).
//
// O Pool mantém no máximo um handle por índice de banco. Antes de reutilizar
// um handle ele é validado com Ping; um handle morto é fechado e substituído
// por uma nova conexão, com número limitado de tentativas para erros
// transitórios (timeout, conexão recusada/resetada, EOF).
//
// Cada índice tem seu próprio lock: dois requests no mesmo índice nunca
// reconectam em paralelo, e índices diferentes não bloqueiam um ao outro.
package backend
