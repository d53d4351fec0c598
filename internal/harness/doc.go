// Package harness runs reconciliation scenarios described in YAML against
// the transfer engine and compares their traces with golden files.
//
// # Scenario Format
//
//	name: pull_blocked_by_conflict
//	description: "A conflict anywhere in a delivery rejects the whole pull"
//	policy: |
//	  node: article: text_field: "body"
//	workspaces:
//	  - { id: live }
//	  - { id: stage, parent: live }
//	  - { id: dev, parent: stage }
//	revisions:
//	  - { alias: a1, entity: node/a, workspace: stage, fields: { title: base } }
//	  - { alias: a2, entity: node/a, workspace: dev, parent: a1, fields: { title: dev } }
//	flow:
//	  - op: create_delivery
//	    args: { source: dev, targets: [stage], refs: [a2] }
//	  - op: pull
//	    args: { delivery: d1, workspace: stage }
//	    expect: { error: CONFLICT_BLOCKED }
//	assertions:
//	  - { type: revision_count, count: 2 }
//
// Revisions are declared by alias and stored in order; parent and
// merge_parent name earlier aliases. Delivery IDs are "d1", "d2", ... in
// creation order.
//
// # Operations
//
//   - commit: entity, workspace, fields, [bundle, deleted]
//   - create_delivery: source, targets, [refs, label]
//   - status: delivery
//   - discover: delivery, target, entity
//   - discover_fields: local, remote, [base] (revision aliases)
//   - classify: source, target, lca (revision IDs, 0 for none)
//   - resolve: delivery, target, entity, [take, select, custom]
//   - resolve_delivery: delivery, [take]
//   - pull: delivery, workspace
//   - push: delivery, [batch_size, fields]
//   - forward: delivery, from, targets
//
// # Assertion Types
//
//   - revision_count: total stored revisions equal count
//   - delivery_status: delivery has status
//   - item_resolution: the (delivery, target, entity) item has resolution
//   - trace_count: op appears count times in the trace with outcome
//
// # Determinism
//
// Every run uses a private in-memory SQLite store, sequential delivery IDs
// and a step sequence for trace numbering, so traces are byte-identical
// across runs.
package harness
