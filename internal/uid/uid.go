// Package uid provides unique identifier generation for Stoxy.
package uid

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a 32-character lowercase hex string suitable for use as a
// CDMI object ID or a temp file name. IDs are random (UUIDv4) and never
// derived from path or name.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Valid reports whether id looks like an identifier produced by New.
func Valid(id string) bool {
	if len(id) != 32 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
