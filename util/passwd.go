package util

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// HashPassword returns "{nonce}:{sha1hex(nonce:uid:password)}", the stored
// form of a user password in user.json.
func HashPassword(uid, password string) string {
	nonce := RandomString(8)
	return nonce + ":" + passwordDigest(nonce, uid, password)
}

// CheckPassword verifies a password against its stored hash.
func CheckPassword(uid, password, stored string) bool {
	nonce, digest, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	return digest == passwordDigest(nonce, uid, password)
}

func passwordDigest(nonce, uid, password string) string {
	sum := sha1.Sum([]byte(nonce + ":" + uid + ":" + password))
	return hex.EncodeToString(sum[:])
}
