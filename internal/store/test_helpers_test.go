package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/promote/internal/model"
)

// createTestStore creates a new file-backed store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedWorkspaces creates live <- stage <- dev.
func seedWorkspaces(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, ws := range []model.Workspace{
		{ID: "live", Label: "Live"},
		{ID: "stage", Label: "Stage", ParentID: "live"},
		{ID: "dev", Label: "Dev", ParentID: "stage", AutoPush: true},
	} {
		require.NoError(t, s.CreateWorkspace(ctx, ws))
	}
}

// createTestRevision appends a node revision with a title field.
func createTestRevision(t *testing.T, s *Store, id, ws string, parent model.RevisionID, title string) model.Revision {
	t.Helper()
	rev, err := s.CreateRevision(context.Background(), model.Revision{
		Entity:      model.EntityRef{Type: "node", ID: id},
		Bundle:      "article",
		WorkspaceID: ws,
		ParentID:    parent,
		Default:     ws == "live",
		Fields:      model.Object{"title": model.String(title)},
	})
	require.NoError(t, err)
	return rev
}
