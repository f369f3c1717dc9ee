// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - FixedWindow: janelas fixas em memória, contadores atômicos por chamador e global
//   - RedisWindow: as mesmas janelas no Redis, via script Lua atômico
//   - BucketStore: token bucket por chave usando golang.org/x/time/rate (guard por rota)
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore / RedisStatsStore: estatísticas das decisões
package infra
