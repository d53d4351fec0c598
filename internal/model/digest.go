package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix allows the
// algorithm to change without colliding with stored digests.
const (
	DomainRevision = "promote/revision/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FieldsDigest computes the content digest of a revision's field values.
// Two revisions with canonically equal fields have the same digest, regardless
// of their IDs or lineage.
func FieldsDigest(fields Object) (string, error) {
	canonical, err := MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("fields digest: %w", err)
	}
	return hashWithDomain(DomainRevision, canonical), nil
}
