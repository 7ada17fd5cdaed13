// Package session holds the durable per-user session record and the stores
// that persist it.
//
// A Record is the single source of truth for what the user has completed:
// authorization, history fetch, style analysis and profile setup. Every
// process context reads it on startup and after every broadcast; writers
// replace the whole record (last writer wins).
//
// Backends:
//   - MemoryStore: process-local, used by tests and one-shot CLI runs
//   - FileStore: one JSON document per user, with Watcher for change notification
//   - SQLiteStore: modernc.org/sqlite, WAL mode
//   - ValkeyStore: shared across server replicas
package session
