// Package store provides SQLite-backed storage for statistics and their
// provenance.
//
// The store holds:
//   - Sources: provenance units (activities, composites, intervals, kit)
//   - Statistic names: owner-scoped, unit-typed statistic definitions
//   - Statistic journals: typed, time-stamped measurements
//   - Composite components: provenance edges (input source -> composite)
//
// # Critical Patterns
//
// Single session per cycle:
//   - All entity operations are methods on *Tx
//   - Store.Update commits or rolls back the whole cycle
//
// Insert-order DAG:
//   - A composite's inputs must exist before the composite is created
//   - Cycles cannot be expressed
//
// Cascading deletion:
//   - Deleting a source removes its journals and edges (ON DELETE CASCADE)
//   - CleanComposites then removes composites that lost an input or are
//     no longer referenced, to a fixed point
//
// Deterministic query results:
//   - Series are ordered by time ASC, id ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity and cascades
package store
