// Package store provides SQLite-backed durable storage for records with
// live query support.
//
// Records live in one table keyed by id. Every query is compiled by
// querysql and returns rows in natural store order.
//
// # Critical Patterns
//
// Logical insertion order:
//   - seq comes from a counter in the meta table, never from wall time
//   - A record keeps its seq across modifications; version increments
//
// Deterministic query results:
//   - All queries end in ORDER BY seq ASC, id COLLATE BINARY ASC
//
// Change detection:
//   - Local writes re-evaluate the live collections of the written
//     collection before Put/Delete return
//   - With a poll interval, a background goroutine watches
//     PRAGMA data_version and re-evaluates every live collection when
//     another connection (another process) commits
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - One pooled connection: data_version is per connection, and SQLite
//     allows a single writer anyway
//
// Fields are stored as RFC 8785 canonical JSON (internal/ir).
package store
