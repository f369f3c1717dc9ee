// Package kv implementa as cinco operações expostas pelo gateway (create,
// update, get, delete, ttl) sobre o Pool de conexões.
//
// Toda operação valida o índice do banco antes de qualquer contato com o
// backend. Resultados de negócio (chave duplicada, chave inexistente) voltam
// como erros apperr com Kind explícito; qualquer outra falha do backend vira
// Internal preservando a causa para log.
package kv
