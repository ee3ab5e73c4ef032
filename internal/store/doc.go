// Package store provides durable storage for prompt records.
//
// Two backends share one method set (see Store):
//   - json: a single JSON document rewritten atomically on every mutation
//   - sqlite: SQLite through mattn/go-sqlite3 with WAL mode
//
// # Identity
//
// The next prompt id is 1 + the largest existing id, or 1 for an empty
// store. Records are never deleted, so ids are never reused. Assignment is
// not atomic across processes: two pipelines sharing a store can collide.
// The pipeline runs as a single process.
//
// # Ordering
//
// Every read returns records ordered by prompt_id ascending, which is also
// insertion order.
//
// # Lifecycle
//
// completed_at is set if and only if status is completed. The sqlite schema
// enforces this with a CHECK constraint; the json backend validates every
// record on load.
//
// # Database Configuration (sqlite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
