package badger

import (
	"encoding/hex"
	"strings"
)

// Key Schema
//
// All records share a single namespace prefix:
//
//	f:<hex(ownerID)>:<id>  -> JSON-encoded metadata.Record
//
// The owner is hex-encoded so that owners containing ':' cannot produce keys
// that fall inside another owner's listing prefix. The id is stored raw and is
// recovered by stripping the owner prefix.
const (
	prefixFragment = "f:"
)

// keyFragment returns the key for a single record.
func keyFragment(ownerID, id string) []byte {
	return []byte(prefixFragment + hex.EncodeToString([]byte(ownerID)) + ":" + id)
}

// keyOwnerPrefix returns the prefix shared by every record of ownerID.
func keyOwnerPrefix(ownerID string) []byte {
	return []byte(prefixFragment + hex.EncodeToString([]byte(ownerID)) + ":")
}

// idFromKey strips the owner prefix from a record key.
func idFromKey(key []byte, prefix []byte) string {
	return strings.TrimPrefix(string(key), string(prefix))
}
