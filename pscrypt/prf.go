package pscrypt

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// Stretch expands (password, salt) to length bytes with a single iteration of
// PBKDF2-HMAC-SHA256. scrypt uses it both to build the master buffer and to
// compress the mixed buffer into the final key.
func Stretch(password, salt []byte, length int) []byte {
	return pbkdf2.Key(password, salt, 1, length, sha256.New)
}
