package security

import (
	"crypto/sha256"
	"crypto/subtle"
)

// TokensEqual compares two token strings in constant time. Both sides are
// hashed first so the comparison does not leak length.
func TokensEqual(presented, stored string) bool {
	if presented == "" || stored == "" {
		return false
	}
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(stored))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
