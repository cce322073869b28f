// Package sid derives session identifiers from session content.
//
// A SID is a lookup key, not a secret: it is unkeyed and unsalted, so anyone
// who knows the three inputs can recompute it.
package sid

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Size is the digest size in bytes; the hex SID is twice as long.
const Size = 16

// Generate returns the lowercase hex BLAKE2b-128 digest of title, declaration and
// signeeEmail written in that order with no separator.
func Generate(title, declaration, signeeEmail string) string {
	h, err := blake2b.New(Size, nil)
	if err != nil {
		// Only returned for an invalid size or key length.
		panic(err)
	}
	h.Write([]byte(title))
	h.Write([]byte(declaration))
	h.Write([]byte(signeeEmail))
	return hex.EncodeToString(h.Sum(nil))
}

// Valid reports whether s has the shape of a SID: 32 lowercase hex characters.
func Valid(s string) bool {
	if len(s) != Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
