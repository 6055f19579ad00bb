// Package store provides persistence for conversation assignments.
//
// # Overview
//
// The store owns the only mutable state in the routing core: the assignment
// relation between conversations and agents. At most one row per conversation
// is primary; the rest are collaborators. A conversation with zero rows is
// unassigned and shows up in the queue.
//
// # Atomicity
//
// Every multi-step sequence the engine needs — demote the old primary and
// promote the new one, delete a primary and promote its replacement, claim
// only if unclaimed — is a single store call running inside one SQLite
// transaction. Callers never compose these from separate reads and writes,
// which is what keeps two concurrent claims from both winning.
//
// # Errors
//
//   - ErrNotFound: entity missing or outside the caller's organization
//   - ErrConflict: a guarded claim lost the race for primary
//   - ErrUnavailable: the database was busy; retry with backoff
//
// # Implementations
//
// SQLiteStore is the production implementation (modernc.org/sqlite, WAL).
// MockStore is an in-memory fake with the same semantics for tests.
package store
