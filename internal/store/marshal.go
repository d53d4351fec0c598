package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/promote/internal/model"
)

// marshalFields converts a revision's fields to canonical JSON TEXT and its
// digest. Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalFields(fields model.Object) (string, string, error) {
	if fields == nil {
		fields = model.Object{}
	}
	data, err := model.MarshalCanonical(fields)
	if err != nil {
		return "", "", fmt.Errorf("marshal fields: %w", err)
	}
	digest, err := model.FieldsDigest(fields)
	if err != nil {
		return "", "", fmt.Errorf("digest fields: %w", err)
	}
	return string(data), digest, nil
}

// unmarshalFields parses canonical JSON TEXT into an Object.
func unmarshalFields(data string) (model.Object, error) {
	if data == "" || data == "{}" {
		return model.Object{}, nil
	}
	obj, err := model.DecodeFields([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

// nullRevision maps NoRevision to SQL NULL.
func nullRevision(id model.RevisionID) sql.NullInt64 {
	if id.IsNone() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}

func revisionFromNull(n sql.NullInt64) model.RevisionID {
	if !n.Valid {
		return model.NoRevision
	}
	return model.RevisionID(n.Int64)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
