package reconcile

import (
	"github.com/roach88/promote/internal/model"
)

var article = model.EntityRef{Type: "node", ID: "1"}

// testPolicy is an in-memory FieldPolicy for the "node/article" bundle.
type testPolicy struct {
	blacklist map[string]model.MergeDirection
	display   map[string]bool
	readOnly  map[string]bool
	metadata  map[string]bool
	text      string
	status    string
	draft     model.Value
}

func (p testPolicy) Blacklisted(_, _, field string) (model.MergeDirection, bool) {
	d, ok := p.blacklist[field]
	return d, ok
}

func (p testPolicy) InMergeDisplay(_, _, field string) bool { return p.display[field] }
func (p testPolicy) ReadOnly(_, _, field string) bool       { return p.readOnly[field] }
func (p testPolicy) RevisionMetadata(_, _, field string) bool {
	return p.metadata[field]
}
func (p testPolicy) TextField(_, _ string) string { return p.text }
func (p testPolicy) StatusField(_, _ string) (string, model.Value) {
	return p.status, p.draft
}

func revision(id model.RevisionID, ws string, fields model.Object) *model.Revision {
	return &model.Revision{
		ID:          id,
		Entity:      article,
		Bundle:      "article",
		WorkspaceID: ws,
		Fields:      fields,
	}
}
