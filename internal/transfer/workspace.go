package transfer

import (
	"context"
	"errors"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/workspace"
)

// CreateWorkspace adds ws to the tree. The tree must stay valid with ws in
// it: the first workspace is the root, every later one names an existing
// parent. A rejected workspace is a PolicyViolation and nothing is stored.
func (e *Engine) CreateWorkspace(ctx context.Context, ws model.Workspace) (*workspace.Hierarchy, error) {
	existing, err := e.store.Workspaces(ctx)
	if err != nil {
		return nil, err
	}
	h, err := workspace.NewHierarchy(append(existing, ws))
	if err != nil {
		var me *model.Error
		if errors.As(err, &me) {
			rejected := model.NewPolicyViolation(me.Code, me.Message)
			rejected.Workspace = ws.ID
			rejected.Details = me.Details
			return nil, rejected
		}
		return nil, err
	}
	if err := e.store.CreateWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	e.logger.Info("workspace created",
		"workspace", ws.ID,
		"parent", ws.ParentID,
		"auto_push", ws.AutoPush,
	)
	return h, nil
}

// Hierarchy loads and validates the current workspace tree.
func (e *Engine) Hierarchy(ctx context.Context) (*workspace.Hierarchy, error) {
	return e.hierarchy(ctx)
}
