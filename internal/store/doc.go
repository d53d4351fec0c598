// Package store provides SQLite-backed storage for workspaces, revisions and
// deliveries.
//
// The store is the persistence collaborator of the reconciliation engine:
//   - Workspaces: the workspace tree
//   - Revisions: append-only entity snapshots with parent and merge-parent
//     pointers (UPDATE and DELETE are rejected by triggers)
//   - Deliveries: source, ordered targets and ordered revision references
//   - Delivery items: one row per (delivery, target, entity), resolved at
//     most once
//   - Transfer cursors: resumable batch progress per delivery
//
// # Ordering
//
// Revision IDs are assigned by AUTOINCREMENT and are strictly increasing, so
// "newest" always means "highest ID". List queries order by ID or by explicit
// position columns, never by wall-clock time.
//
// # Concurrency
//
// The store does not lock entities. Two writers that read the same active
// revision and each append a child produce two revisions with the same
// parent; later ancestry computation treats them as divergent lineages.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Field values are stored as RFC 8785 canonical JSON with a SHA-256 digest
// computed by the model package.
package store
