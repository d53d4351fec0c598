package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFields_AllValueTypes(t *testing.T) {
	fields, err := DecodeFields([]byte(`{
		"title": "Hello",
		"weight": 3,
		"published": true,
		"summary": null,
		"tags": ["a", "b"],
		"body": {"value": "text", "format": "basic_html"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, String("Hello"), fields["title"])
	assert.Equal(t, Int(3), fields["weight"])
	assert.Equal(t, Bool(true), fields["published"])
	assert.Equal(t, Null{}, fields["summary"])
	assert.Equal(t, List{String("a"), String("b")}, fields["tags"])
	assert.Equal(t, Object{"value": String("text"), "format": String("basic_html")}, fields["body"])
}

func TestDecodeFields_RejectsFloats(t *testing.T) {
	_, err := DecodeFields([]byte(`{"price": 1.5}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are not allowed")

	_, err = DecodeFields([]byte(`{"price": 1e3}`))
	require.Error(t, err)
}

func TestDecodeFields_RejectsNonObject(t *testing.T) {
	_, err := DecodeFields([]byte(`["not", "an", "object"]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a JSON object")
}

func TestObjectMarshalJSON_SortedKeys(t *testing.T) {
	obj := NewObject(F("zeta", Int(1)), F("alpha", String("x")), F("mid", List{Bool(false)}))

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"x","mid":[false],"zeta":1}`, string(data))
}

func TestObjectClone_IsDeep(t *testing.T) {
	orig := Object{
		"tags": List{String("a")},
		"body": Object{"value": String("v1")},
	}
	cp := orig.Clone()

	cp["tags"].(List)[0] = String("changed")
	cp["body"].(Object)["value"] = String("v2")

	assert.Equal(t, String("a"), orig["tags"].(List)[0])
	assert.Equal(t, String("v1"), orig["body"].(Object)["value"])
}

func TestObjectClone_NilBecomesEmpty(t *testing.T) {
	var obj Object
	cp := obj.Clone()
	require.NotNil(t, cp)
	assert.Empty(t, cp)
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Value
		wantErr bool
	}{
		{name: "nil", in: nil, want: Null{}},
		{name: "string", in: "x", want: String("x")},
		{name: "int", in: 7, want: Int(7)},
		{name: "integral float", in: float64(4), want: Int(4)},
		{name: "fractional float", in: 4.5, wantErr: true},
		{name: "list", in: []any{"a", 1}, want: List{String("a"), Int(1)}},
		{name: "map", in: map[string]any{"k": true}, want: Object{"k": Bool(true)}},
		{name: "unsupported", in: struct{}{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRevisionDerive_DetachedCopy(t *testing.T) {
	src := Revision{
		ID:            7,
		Entity:        EntityRef{Type: "node", ID: "1"},
		Bundle:        "article",
		WorkspaceID:   "dev",
		ParentID:      5,
		MergeParentID: 6,
		Default:       true,
		Fields:        Object{"title": String("T")},
	}

	d := src.Derive("stage")
	assert.Equal(t, NoRevision, d.ID)
	assert.Equal(t, NoRevision, d.ParentID)
	assert.Equal(t, NoRevision, d.MergeParentID)
	assert.False(t, d.Default)
	assert.Equal(t, "stage", d.WorkspaceID)
	assert.Equal(t, src.Entity, d.Entity)
	assert.Equal(t, "article", d.Bundle)

	d.Fields["title"] = String("changed")
	assert.Equal(t, String("T"), src.Fields["title"])
}

func TestParseEntityRef(t *testing.T) {
	ref, err := ParseEntityRef("node/42")
	require.NoError(t, err)
	assert.Equal(t, EntityRef{Type: "node", ID: "42"}, ref)
	assert.Equal(t, "node/42", ref.Key())

	ref, err = ParseEntityRef("media/a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", ref.ID)

	for _, bad := range []string{"", "node", "node/", "/1"} {
		_, err := ParseEntityRef(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestRevisionIDString(t *testing.T) {
	assert.Equal(t, "none", NoRevision.String())
	assert.Equal(t, "12", RevisionID(12).String())
	assert.True(t, NoRevision.IsNone())
}
