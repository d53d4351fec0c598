// Package reconcile classifies entities for delivery, discovers per-field
// conflicts and resolves them through an ordered strategy pipeline.
//
// Throughout this package the two sides of a merge are named from the point of
// view of the workspace receiving content:
//
//	local  = the target workspace's active revision
//	remote = the delivery's source revision
//	base   = their common ancestor
//
// Everything here is pure and synchronous over already-loaded revisions. No
// function performs I/O; persisting results is the transfer engine's job.
package reconcile
