// Package requestid generates the opaque correlation ids attached to
// registry requests and audit records.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
)

const idBytes = 16

// New returns a 32-character hex id.
func New() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
