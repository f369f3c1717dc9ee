// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela fixa em memória ou Redis, token
//     bucket por rota, semáforo, estatísticas)
//   - ratelimit (este pacote): middlewares HTTP + extração/classificação do
//     chamador + tradução para status/headers
//
// Fluxo no gateway (depois da autenticação):
//
//  1. Extrai a chave do chamador (header/XFF/RemoteAddr) e a classe (loopback e
//     redes confiáveis têm teto maior)
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, responde 429 {"detail":"Rate limit exceeded"} com Retry-After
//  4. Se permitido, chama o próximo handler
//
// A configuração vem de cmd/gateway (RATE_*, CONCURRENCY_*).
package ratelimit
