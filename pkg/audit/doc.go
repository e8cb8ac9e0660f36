// Package audit keeps a trail of handled turns and policy compiles.
//
// Each turn records the route taken, the rule that matched, the reason and
// any state-machine overrides. Each compile records the checksum, conflict
// count and outcome. Caller utterances are never stored.
//
// Records are written asynchronously by a Recorder so that a slow store
// never delays a live call. Storage backends are an in-memory store for
// tests and development and a SQLite store (mattn/go-sqlite3) for
// production. Pruner removes records older than the retention period; the
// jobs package runs it on a cron schedule.
package audit
