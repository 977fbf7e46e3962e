// Package identity derives pseudonymous client identities.
package identity

import (
	"crypto/sha256"
	"fmt"
)

// Hasher maps a client network address to an opaque identity key. The salt
// keeps identities stable per deployment without storing raw addresses.
type Hasher struct {
	salt string
}

// NewHasher creates a hasher with the given server-side salt
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// Hash returns the identity key for a client address. The result is used
// only as an equality key and is never reversed.
func (h *Hasher) Hash(addr string) string {
	sum := sha256.Sum256([]byte(h.salt + addr))
	return fmt.Sprintf("%x", sum)
}
