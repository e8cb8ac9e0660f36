// Package tenant implements the tenant configuration repository.
//
// A tenant record holds the tenant's saved raw policy, the single-slot
// compile lock and the metadata of the last successful compile. The
// compiler and the admin API depend only on the Repository interface;
// three adapters are provided:
//
//   - MemoryRepository for tests and offline CLI compiles
//   - SQLiteRepository for single-instance deployments
//   - PostgresRepository for shared deployments, with embedded migrations
//
// # Compile Lock
//
// AcquireCompileLock is a compare-and-swap: it stores the caller's token only
// when the lock slot is empty and fails with ErrLockHeld otherwise. It never
// blocks or retries. ReleaseCompileLock clears the slot only when the token
// matches. Locks have no expiry on the compile path; ReapStaleLocks exists
// for an operator-scheduled cleanup job.
package tenant
