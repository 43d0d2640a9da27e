package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint hashes parts into a lowercase hex SHA-256 digest. Parts are
// NUL separated so ("ab", "c") and ("a", "bc") differ.
func Fingerprint(parts ...[]byte) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
