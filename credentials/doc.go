// Package credentials guarda as API keys aceitas pelo gateway.
//
// As chaves só são inseridas (nunca removidas ou alteradas pelo gateway), o
// que permite cachear consultas positivas sem invalidação.
package credentials
