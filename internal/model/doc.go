// Package model provides the foundational types for workspace content promotion.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Field values are the sealed Value union; NO float types (use Int or String)
//   - Field equality is canonical JSON equality, never reflect.DeepEqual
//   - Revisions are immutable once saved; only new revisions supersede them
//   - RevisionID 0 (NoRevision) means "no revision", IDs start at 1
//   - All JSON tags use snake_case
package model
