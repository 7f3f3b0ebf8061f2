// Package store provides SQLite-backed durable storage for audit records.
//
// The store is an append-only log with:
//   - records: every produced record, its producer, key and canonical value
//   - record_parents: ordered lineage edges (record -> parent)
//   - terminals: records collected by the aggregator, per run cycle
//
// # Patterns
//
// Idempotent writes: every insert uses ON CONFLICT DO NOTHING, so writing a
// record twice, or writing an ancestor that is already stored, is a no-op.
//
// Logical time: rows are ordered by seq, a logical clock resumed from the
// highest stored seq on open. Ancestors are always written before their
// descendants, so seq order is also lineage order.
//
// Deterministic reads: every query orders by seq ASC, id ASC COLLATE BINARY.
//
// Values are stored as canonical JSON (internal/canonical) together with
// their domain-separated digest.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
