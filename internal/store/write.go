package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/promote/internal/model"
)

// CreateWorkspace inserts a workspace. The parent must already exist.
func (s *Store) CreateWorkspace(ctx context.Context, ws model.Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, label, parent_id, auto_push)
		VALUES (?, ?, ?, ?)
	`,
		ws.ID,
		ws.Label,
		nullString(ws.ParentID),
		ws.AutoPush,
	)
	if err != nil {
		return fmt.Errorf("create workspace %s: %w", ws.ID, err)
	}
	return nil
}

// CreateRevision appends a revision and returns it with its assigned ID and
// digest. The input's ID is ignored.
func (s *Store) CreateRevision(ctx context.Context, rev model.Revision) (model.Revision, error) {
	return insertRevision(ctx, s.db, rev)
}

// SaveRevisions appends revisions in one transaction: either all are stored
// or none are.
func (s *Store) SaveRevisions(ctx context.Context, revs []model.Revision) ([]model.Revision, error) {
	out := make([]model.Revision, 0, len(revs))
	err := s.WithTx(ctx, func(tx *Tx) error {
		for _, rev := range revs {
			saved, err := tx.CreateRevision(ctx, rev)
			if err != nil {
				return err
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRevision appends a revision inside the transaction.
func (t *Tx) CreateRevision(ctx context.Context, rev model.Revision) (model.Revision, error) {
	return insertRevision(ctx, t.tx, rev)
}

func insertRevision(ctx context.Context, q querier, rev model.Revision) (model.Revision, error) {
	fieldsJSON, digest, err := marshalFields(rev.Fields)
	if err != nil {
		return model.Revision{}, fmt.Errorf("create revision: %w", err)
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO revisions
		(entity_type, entity_id, bundle, workspace_id, parent_id, merge_parent_id, deleted, is_default, fields, digest, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rev.Entity.Type,
		rev.Entity.ID,
		rev.Bundle,
		rev.WorkspaceID,
		nullRevision(rev.ParentID),
		nullRevision(rev.MergeParentID),
		rev.Deleted,
		rev.Default,
		fieldsJSON,
		digest,
		rev.Message,
	)
	if err != nil {
		return model.Revision{}, fmt.Errorf("create revision for %s: %w", rev.Entity.Key(), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.Revision{}, fmt.Errorf("create revision: last insert id: %w", err)
	}

	saved := rev.Clone()
	saved.ID = model.RevisionID(id)
	saved.Digest = digest
	if saved.Fields == nil {
		saved.Fields = model.Object{}
	}
	return saved, nil
}

// CreateDelivery inserts a delivery with its targets, refs and items in one
// transaction.
func (s *Store) CreateDelivery(ctx context.Context, d model.Delivery, items []model.DeliveryItem) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.CreateDelivery(ctx, d, items)
	})
}

// CreateDelivery inserts a delivery inside the transaction.
func (t *Tx) CreateDelivery(ctx context.Context, d model.Delivery, items []model.DeliveryItem) error {
	status := d.Status
	if status == "" {
		status = model.DeliveryOpen
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO deliveries (id, label, source_id, status, forwarded_from)
		VALUES (?, ?, ?, ?, ?)
	`, d.ID, d.Label, d.SourceID, string(status), nullString(d.ForwardedFrom)); err != nil {
		return fmt.Errorf("create delivery %s: %w", d.ID, err)
	}

	for i, target := range d.TargetIDs {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO delivery_targets (delivery_id, workspace_id, position)
			VALUES (?, ?, ?)
		`, d.ID, target, i); err != nil {
			return fmt.Errorf("create delivery %s: target %s: %w", d.ID, target, err)
		}
	}

	for i, ref := range d.Refs {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO delivery_refs (delivery_id, position, entity_type, entity_id, revision_id)
			VALUES (?, ?, ?, ?, ?)
		`, d.ID, i, ref.Entity.Type, ref.Entity.ID, int64(ref.RevisionID)); err != nil {
			return fmt.Errorf("create delivery %s: ref %s: %w", d.ID, ref, err)
		}
	}

	for _, it := range items {
		resolution := it.Resolution
		if resolution == "" {
			resolution = model.Unresolved
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO delivery_items
			(delivery_id, target_id, entity_type, entity_id, source_id, source_revision_id, result_revision_id, resolution)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			d.ID,
			it.TargetID,
			it.Entity.Type,
			it.Entity.ID,
			it.SourceID,
			int64(it.SourceRevisionID),
			nullRevision(it.ResultRevisionID),
			string(resolution),
		); err != nil {
			return fmt.Errorf("create delivery %s: item %s: %w", d.ID, it.Key(), err)
		}
	}
	return nil
}

// SetDeliveryStatus updates a delivery's status.
func (s *Store) SetDeliveryStatus(ctx context.Context, id string, status model.DeliveryStatus) error {
	return setDeliveryStatus(ctx, s.db, id, status)
}

// SetDeliveryStatus updates a delivery's status inside the transaction.
func (t *Tx) SetDeliveryStatus(ctx context.Context, id string, status model.DeliveryStatus) error {
	return setDeliveryStatus(ctx, t.tx, id, status)
}

func setDeliveryStatus(ctx context.Context, q querier, id string, status model.DeliveryStatus) error {
	result, err := q.ExecContext(ctx, `UPDATE deliveries SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set delivery status %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set delivery status %s: %w", id, ErrNotFound)
	}
	return nil
}

// ResolveDeliveryItem records an item's resolution. It returns false without
// error when the item was already resolved, making retries idempotent.
func (s *Store) ResolveDeliveryItem(ctx context.Context, key model.ItemKey, kind model.ResolutionKind, result model.RevisionID) (bool, error) {
	return resolveDeliveryItem(ctx, s.db, key, kind, result)
}

// ResolveDeliveryItem records an item's resolution inside the transaction.
func (t *Tx) ResolveDeliveryItem(ctx context.Context, key model.ItemKey, kind model.ResolutionKind, result model.RevisionID) (bool, error) {
	return resolveDeliveryItem(ctx, t.tx, key, kind, result)
}

func resolveDeliveryItem(ctx context.Context, q querier, key model.ItemKey, kind model.ResolutionKind, result model.RevisionID) (bool, error) {
	if !kind.IsResolved() {
		return false, fmt.Errorf("resolve item %s: %q is not a resolution", key, kind)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE delivery_items
		SET resolution = ?, result_revision_id = ?
		WHERE delivery_id = ? AND target_id = ? AND entity_type = ? AND entity_id = ?
		  AND resolution = 'unresolved'
	`,
		string(kind),
		nullRevision(result),
		key.DeliveryID,
		key.TargetID,
		key.Entity.Type,
		key.Entity.ID,
	)
	if err != nil {
		return false, fmt.Errorf("resolve item %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve item %s: rows affected: %w", key, err)
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish "already resolved" from "no such item".
	if _, err := loadDeliveryItem(ctx, q, key); err != nil {
		return false, err
	}
	return false, nil
}

// Cursor is the progress of a batched transfer: Position entries of Total
// have been processed.
type Cursor struct {
	Position int `json:"position"`
	Total    int `json:"total"`
}

// Done reports whether every entry has been processed.
func (c Cursor) Done() bool {
	return c.Total > 0 && c.Position >= c.Total
}

// SaveCursor records batch progress for a delivery.
func (s *Store) SaveCursor(ctx context.Context, deliveryID string, c Cursor) error {
	return saveCursor(ctx, s.db, deliveryID, c)
}

// SaveCursor records batch progress inside the transaction, so progress and
// the writes it covers commit together.
func (t *Tx) SaveCursor(ctx context.Context, deliveryID string, c Cursor) error {
	return saveCursor(ctx, t.tx, deliveryID, c)
}

func saveCursor(ctx context.Context, q querier, deliveryID string, c Cursor) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transfer_cursors (delivery_id, position, total)
		VALUES (?, ?, ?)
		ON CONFLICT(delivery_id) DO UPDATE SET position = excluded.position, total = excluded.total
	`, deliveryID, c.Position, c.Total)
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", deliveryID, err)
	}
	return nil
}

// LoadCursor returns the saved cursor, or the zero cursor when none exists.
func (s *Store) LoadCursor(ctx context.Context, deliveryID string) (Cursor, error) {
	var c Cursor
	err := s.db.QueryRowContext(ctx, `
		SELECT position, total FROM transfer_cursors WHERE delivery_id = ?
	`, deliveryID).Scan(&c.Position, &c.Total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cursor{}, nil
		}
		return Cursor{}, fmt.Errorf("load cursor %s: %w", deliveryID, err)
	}
	return c, nil
}
