// Package store provides the SQLite database that compiled plans run
// against.
//
// The schema is derived from the metadata model: one table per entity
// hierarchy, named by the root type's Table, with one column per property
// of every type in the hierarchy. Hierarchies with derived types carry a
// "_type" discriminator column holding the concrete type name. Foreign keys
// of navigations are indexed.
//
// # Critical Patterns
//
// Deterministic Query Results
//   - Compiled plans always end in ORDER BY with a primary-key tiebreaker
//   - Ensures identical results across runs and execution modes
//
// Drained Results
//   - Query reads every row before returning
//   - The pool has one connection; no cursor is ever held open across
//     queries, so child sequences can be opened mid-evaluation
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
