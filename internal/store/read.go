package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/promote/internal/model"
)

const revisionColumns = `id, entity_type, entity_id, bundle, workspace_id, parent_id, merge_parent_id, deleted, is_default, fields, digest, message`

// Workspaces returns every workspace ordered by ID.
func (s *Store) Workspaces(ctx context.Context) ([]model.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, parent_id, auto_push
		FROM workspaces
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query workspaces: %w", err)
	}
	defer rows.Close()

	workspaces := []model.Workspace{}
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return workspaces, nil
}

// Workspace returns one workspace. Returns ErrNotFound if it does not exist.
func (s *Store) Workspace(ctx context.Context, id string) (model.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, parent_id, auto_push FROM workspaces WHERE id = ?
	`, id)
	ws, err := scanWorkspace(row)
	if err != nil {
		return model.Workspace{}, notFound("workspace "+id, err)
	}
	return ws, nil
}

// LoadRevision returns a revision by ID. Returns ErrNotFound if it does not
// exist.
func (s *Store) LoadRevision(ctx context.Context, id model.RevisionID) (model.Revision, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+revisionColumns+` FROM revisions WHERE id = ?`, int64(id))
	rev, err := scanRevision(row)
	if err != nil {
		return model.Revision{}, notFound("revision "+id.String(), err)
	}
	return rev, nil
}

// EntityHistory returns every revision of an entity in ascending ID order.
// Returns an empty slice (not nil) for an unknown entity.
func (s *Store) EntityHistory(ctx context.Context, ref model.EntityRef) ([]model.Revision, error) {
	return queryRevisions(ctx, s.db, `
		SELECT `+revisionColumns+`
		FROM revisions
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY id ASC
	`, ref.Type, ref.ID)
}

// EntityHistory reads an entity's history inside the transaction.
func (t *Tx) EntityHistory(ctx context.Context, ref model.EntityRef) ([]model.Revision, error) {
	return queryRevisions(ctx, t.tx, `
		SELECT `+revisionColumns+`
		FROM revisions
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY id ASC
	`, ref.Type, ref.ID)
}

// WorkspaceEntities returns the newest revision each entity has in a
// workspace, ordered by entity type then ID. These are the workspace's pending
// changes when building a delivery.
func (s *Store) WorkspaceEntities(ctx context.Context, workspaceID string) ([]model.RevisionRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, entity_id, MAX(id)
		FROM revisions
		WHERE workspace_id = ?
		GROUP BY entity_type, entity_id
		ORDER BY entity_type COLLATE BINARY ASC, entity_id COLLATE BINARY ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query workspace entities: %w", err)
	}
	defer rows.Close()

	refs := []model.RevisionRef{}
	for rows.Next() {
		var ref model.RevisionRef
		var id int64
		if err := rows.Scan(&ref.Entity.Type, &ref.Entity.ID, &id); err != nil {
			return nil, fmt.Errorf("scan workspace entity: %w", err)
		}
		ref.RevisionID = model.RevisionID(id)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspace entities: %w", err)
	}
	return refs, nil
}

// CountRevisions returns the number of stored revisions.
func (s *Store) CountRevisions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM revisions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count revisions: %w", err)
	}
	return n, nil
}

// LoadDelivery returns a delivery with its targets and refs in position
// order. Returns ErrNotFound if it does not exist.
func (s *Store) LoadDelivery(ctx context.Context, id string) (model.Delivery, error) {
	var d model.Delivery
	var status string
	var forwarded sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, source_id, status, forwarded_from FROM deliveries WHERE id = ?
	`, id).Scan(&d.ID, &d.Label, &d.SourceID, &status, &forwarded)
	if err != nil {
		return model.Delivery{}, notFound("delivery "+id, err)
	}
	d.Status = model.DeliveryStatus(status)
	d.ForwardedFrom = forwarded.String

	targets, err := s.db.QueryContext(ctx, `
		SELECT workspace_id FROM delivery_targets WHERE delivery_id = ? ORDER BY position ASC
	`, id)
	if err != nil {
		return model.Delivery{}, fmt.Errorf("query delivery targets: %w", err)
	}
	defer targets.Close()
	d.TargetIDs = []string{}
	for targets.Next() {
		var t string
		if err := targets.Scan(&t); err != nil {
			return model.Delivery{}, fmt.Errorf("scan delivery target: %w", err)
		}
		d.TargetIDs = append(d.TargetIDs, t)
	}
	if err := targets.Err(); err != nil {
		return model.Delivery{}, fmt.Errorf("iterate delivery targets: %w", err)
	}

	refs, err := s.db.QueryContext(ctx, `
		SELECT entity_type, entity_id, revision_id
		FROM delivery_refs WHERE delivery_id = ? ORDER BY position ASC
	`, id)
	if err != nil {
		return model.Delivery{}, fmt.Errorf("query delivery refs: %w", err)
	}
	defer refs.Close()
	d.Refs = []model.RevisionRef{}
	for refs.Next() {
		var ref model.RevisionRef
		var rev int64
		if err := refs.Scan(&ref.Entity.Type, &ref.Entity.ID, &rev); err != nil {
			return model.Delivery{}, fmt.Errorf("scan delivery ref: %w", err)
		}
		ref.RevisionID = model.RevisionID(rev)
		d.Refs = append(d.Refs, ref)
	}
	if err := refs.Err(); err != nil {
		return model.Delivery{}, fmt.Errorf("iterate delivery refs: %w", err)
	}
	return d, nil
}

// DeliveryIDs returns every delivery ID in creation order.
func (s *Store) DeliveryIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM deliveries ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return ids, nil
}

const itemColumns = `delivery_id, target_id, entity_type, entity_id, source_id, source_revision_id, result_revision_id, resolution`

// DeliveryItems returns a delivery's items ordered by target position, then
// ref position.
func (s *Store) DeliveryItems(ctx context.Context, deliveryID string) ([]model.DeliveryItem, error) {
	return deliveryItems(ctx, s.db, deliveryID)
}

// DeliveryItems reads a delivery's items inside the transaction.
func (t *Tx) DeliveryItems(ctx context.Context, deliveryID string) ([]model.DeliveryItem, error) {
	return deliveryItems(ctx, t.tx, deliveryID)
}

func deliveryItems(ctx context.Context, q querier, deliveryID string) ([]model.DeliveryItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT i.delivery_id, i.target_id, i.entity_type, i.entity_id, i.source_id,
		       i.source_revision_id, i.result_revision_id, i.resolution
		FROM delivery_items i
		JOIN delivery_targets t ON t.delivery_id = i.delivery_id AND t.workspace_id = i.target_id
		LEFT JOIN delivery_refs r ON r.delivery_id = i.delivery_id
		     AND r.entity_type = i.entity_type AND r.entity_id = i.entity_id
		WHERE i.delivery_id = ?
		ORDER BY t.position ASC, r.position ASC
	`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("query delivery items: %w", err)
	}
	defer rows.Close()

	items := []model.DeliveryItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery items: %w", err)
	}
	return items, nil
}

// DeliveryItem returns one item. Returns ErrNotFound if it does not exist.
func (s *Store) DeliveryItem(ctx context.Context, key model.ItemKey) (model.DeliveryItem, error) {
	return loadDeliveryItem(ctx, s.db, key)
}

func loadDeliveryItem(ctx context.Context, q querier, key model.ItemKey) (model.DeliveryItem, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM delivery_items
		WHERE delivery_id = ? AND target_id = ? AND entity_type = ? AND entity_id = ?
	`, key.DeliveryID, key.TargetID, key.Entity.Type, key.Entity.ID)
	it, err := scanItem(row)
	if err != nil {
		return model.DeliveryItem{}, notFound("delivery item "+key.String(), err)
	}
	return it, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row scanner) (model.Workspace, error) {
	var ws model.Workspace
	var parent sql.NullString
	if err := row.Scan(&ws.ID, &ws.Label, &parent, &ws.AutoPush); err != nil {
		return model.Workspace{}, err
	}
	ws.ParentID = parent.String
	return ws, nil
}

func queryRevisions(ctx context.Context, q querier, query string, args ...any) ([]model.Revision, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	revs := []model.Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return revs, nil
}

func scanRevision(row scanner) (model.Revision, error) {
	var rev model.Revision
	var id int64
	var parent, merge sql.NullInt64
	var fieldsJSON string
	if err := row.Scan(
		&id, &rev.Entity.Type, &rev.Entity.ID, &rev.Bundle, &rev.WorkspaceID,
		&parent, &merge, &rev.Deleted, &rev.Default, &fieldsJSON, &rev.Digest, &rev.Message,
	); err != nil {
		return model.Revision{}, err
	}
	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return model.Revision{}, err
	}
	rev.ID = model.RevisionID(id)
	rev.ParentID = revisionFromNull(parent)
	rev.MergeParentID = revisionFromNull(merge)
	rev.Fields = fields
	return rev, nil
}

func scanItem(row scanner) (model.DeliveryItem, error) {
	var it model.DeliveryItem
	var source int64
	var result sql.NullInt64
	var resolution string
	if err := row.Scan(
		&it.DeliveryID, &it.TargetID, &it.Entity.Type, &it.Entity.ID, &it.SourceID,
		&source, &result, &resolution,
	); err != nil {
		return model.DeliveryItem{}, err
	}
	kind, err := model.ParseResolutionKind(resolution)
	if err != nil {
		return model.DeliveryItem{}, err
	}
	it.SourceRevisionID = model.RevisionID(source)
	it.ResultRevisionID = revisionFromNull(result)
	it.Resolution = kind
	return it, nil
}
