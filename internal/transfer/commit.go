package transfer

import (
	"context"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/revgraph"
	"github.com/roach88/promote/internal/workspace"
)

// CommitRequest is an ordinary edit of one entity in one workspace.
type CommitRequest struct {
	Entity      model.EntityRef
	Bundle      string
	WorkspaceID string
	Fields      model.Object
	Deleted     bool
	Message     string
}

// CommitResult is the saved revision and, for auto-push workspaces, the
// delivery that carried it to the parent.
type CommitResult struct {
	Revision model.Revision  `json:"revision"`
	Delivery *model.Delivery `json:"delivery,omitempty"`
	AutoPush *Report         `json:"auto_push,omitempty"`
}

// Commit appends a revision superseding the workspace's head for the entity.
//
// When the workspace has auto_push set, the new revision is delivered to the
// parent workspace straight away: items new to the parent take the source,
// everything else is resolved automatically. Items that need input stay
// open on the returned delivery.
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	h, err := e.hierarchy(ctx)
	if err != nil {
		return CommitResult{}, err
	}
	ws, ok := h.Get(req.WorkspaceID)
	if !ok {
		return CommitResult{}, workspace.UnknownWorkspaceError(req.WorkspaceID)
	}

	rev := model.Revision{
		Entity:      req.Entity,
		Bundle:      req.Bundle,
		WorkspaceID: ws.ID,
		Deleted:     req.Deleted,
		Default:     ws.ID == h.Root(),
		Fields:      req.Fields.Clone(),
		Message:     req.Message,
	}
	parent, err := e.parentFor(ctx, h, req.Entity, ws.ID)
	if err != nil {
		return CommitResult{}, err
	}
	if parent != nil {
		rev.ParentID = parent.ID
		if rev.Bundle == "" {
			rev.Bundle = parent.Bundle
		}
	}

	saved, err := e.store.CreateRevision(ctx, rev)
	if err != nil {
		return CommitResult{}, err
	}
	e.logger.Info("revision committed",
		"entity", saved.Entity.Key(),
		"workspace", saved.WorkspaceID,
		"revision", saved.ID,
		"parent", saved.ParentID,
	)

	result := CommitResult{Revision: saved}
	if !ws.AutoPush || ws.IsRoot() {
		return result, nil
	}

	d, err := e.CreateDelivery(ctx, DeliveryRequest{
		Label:     "auto-push " + saved.Entity.Key(),
		SourceID:  ws.ID,
		TargetIDs: []string{ws.ParentID},
		Refs:      []model.RevisionRef{{Entity: saved.Entity, RevisionID: saved.ID}},
	})
	if err != nil {
		return result, err
	}
	result.Delivery = &d

	status, err := e.Status(ctx, d.ID)
	if err != nil {
		return result, err
	}
	decisions := Decisions{}
	for _, it := range status.Items {
		if it.Status == model.StatusNew {
			decisions[it.Ref.Key()] = model.DecideSource
		}
	}
	report, err := e.ResolveDelivery(ctx, d.ID, decisions, nil)
	result.AutoPush = report
	if err != nil {
		return result, err
	}
	if loaded, err := e.store.LoadDelivery(ctx, d.ID); err == nil {
		result.Delivery = &loaded
	}
	return result, nil
}

// parentFor returns the revision a new revision of entity in workspaceID
// supersedes, or nil for a brand-new entity.
func (e *Engine) parentFor(ctx context.Context, h *workspace.Hierarchy, entity model.EntityRef, workspaceID string) (*model.Revision, error) {
	history, err := e.store.EntityHistory(ctx, entity)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	g, err := revgraph.New(history, e.graphOptions()...)
	if err != nil {
		return nil, err
	}
	parent, ok, err := h.ParentFor(g, workspaceID)
	if err != nil || !ok {
		return nil, err
	}
	return &parent, nil
}
