package auth

import (
	"crypto/subtle"

	"github.com/dmitrijs2005/userapi/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize = 32

	// Argon2id parameters. Changing them changes every derived hash,
	// so existing credentials would stop verifying.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	hashSize     = 32
)

// GenerateSalt produces a fresh cryptographically random salt. A new salt
// is generated on every password change so hashes are never reused across
// salts.
func GenerateSalt() []byte {
	return common.GenerateRandByteArray(saltSize)
}

// GenerateHash derives the stored credential from a password and salt
// using Argon2id. Deterministic for a given pair, memory-hard against
// brute force.
func GenerateHash(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, hashSize)
}

// CheckHash compares two hashes in constant time.
func CheckHash(hash, candidate []byte) bool {
	return subtle.ConstantTimeCompare(hash, candidate) == 1
}
