// Package cache provides the key/value store with per-entry TTL that holds
// compiled policy artifacts, tenant active pointers and live call state.
//
// Two implementations are provided:
//
//   - MemoryStore: an in-process map with TTL expiry and LRU eviction, used
//     in tests and single-instance deployments.
//   - RedisStore: a Redis-backed store for deployments where several
//     processes must see the same artifacts and call state.
//
// Stores are constructed explicitly and injected into the compiler, the
// router and the call service; there is no package-level client.
package cache
