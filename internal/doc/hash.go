package doc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm migration.
const (
	DomainRecord = "ajstore/record/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentKey derives a stable key from a record's data.
//
// The key field itself is excluded so that deriving a key for data that
// already carries one yields the same result as for the same data without
// it. Everything else, including the type tag, participates.
func ContentKey(data Data) (string, error) {
	hashed := make(Data, len(data))
	for k, v := range data {
		if k == FieldKey {
			continue
		}
		hashed[k] = v
	}

	canonical, err := MarshalCanonical(hashed)
	if err != nil {
		return "", fmt.Errorf("ContentKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// MustContentKey is like ContentKey but panics on error.
// Use only in tests or when data is known to be valid.
func MustContentKey(data Data) string {
	key, err := ContentKey(data)
	if err != nil {
		panic(err)
	}
	return key
}
