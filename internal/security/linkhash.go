package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashLinkTokenID returns the hex SHA-256 of a link token jti. Only the hash is
// stored on the session, so a leaked record cannot mint a valid link.
func HashLinkTokenID(jti string) string {
	h := sha256.Sum256([]byte(jti))
	return hex.EncodeToString(h[:])
}

// LinkTokenIDEqual compares the hash of jti with storedHash in constant time.
func LinkTokenIDEqual(jti, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashLinkTokenID(jti)), []byte(storedHash)) == 1
}
