package entity

import (
	"encoding/json"
	"fmt"
)

// codecVersion is bumped whenever a wire-incompatible change is made to
// any entity struct. It is stored as the first byte of every encoded
// value, mirroring the teacher's JSON-in-pebble convention
// (indexers/pcx/indexers/utxos/store.go's StoredUTXO) with an explicit
// version prefix so old values can be migrated rather than silently
// misread.
const codecVersion byte = 1

// Encode serializes an entity to its versioned on-disk representation.
// The payload is JSON, matching the teacher's storage convention; a
// single version byte precedes it so StateStore can detect and refuse (or
// migrate) stale encodings.
func Encode[T Entity](v T) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	out := make([]byte, 1+len(payload))
	out[0] = codecVersion
	copy(out[1:], payload)
	return out, nil
}

// Decode is the inverse of Encode. v must be a pointer (e.g. *AccountState).
func Decode[T Entity](b []byte, v T) error {
	if len(b) == 0 {
		return fmt.Errorf("decode entity: empty value")
	}
	if b[0] != codecVersion {
		return fmt.Errorf("decode entity: unsupported codec version %d", b[0])
	}
	if err := json.Unmarshal(b[1:], v); err != nil {
		return fmt.Errorf("decode entity: %w", err)
	}
	return nil
}
