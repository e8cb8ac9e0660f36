// Package jobs runs Switchboard's periodic maintenance on cron schedules.
//
// Two jobs exist:
//   - audit pruning, which deletes audit records past their retention
//   - the compile-lock reaper, which clears compile locks held longer
//     than compiler.lock_stale_after
//
// The reaper is opt-in. Compiles themselves never expire a lock; a lock is
// only reaped when a release failed and left the tenant locked out.
package jobs
