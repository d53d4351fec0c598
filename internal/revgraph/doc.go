// Package revgraph answers ancestry questions over one entity's revision
// history.
//
// A Graph is built from an already-loaded slice of revisions. All queries are
// pure, synchronous and bounded: every walk visits each revision at most once,
// and revisiting one is reported as a cycle rather than looping.
//
// Primary ancestry follows ParentID only. Merge-parent edges record where a
// lineage absorbed another one; they are consulted by MergeBase and
// LatestMergeDescendant but never by LowestCommonAncestor.
package revgraph
