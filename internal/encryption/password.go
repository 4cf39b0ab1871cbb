package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordSaltSize = 32
	passwordHashSize = 32
)

// HashPassword returns base64(salt || PBKDF2-HMAC-SHA256(password, salt))
// with a fresh 32-byte random salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, passwordSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	digest := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, passwordHashSize, sha256.New)
	return base64.StdEncoding.EncodeToString(append(salt, digest...)), nil
}

// VerifyPassword reports whether password matches a hash from HashPassword.
// Malformed hashes never match.
func VerifyPassword(password, stored string) bool {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(raw) != passwordSaltSize+passwordHashSize {
		return false
	}
	salt, want := raw[:passwordSaltSize], raw[passwordSaltSize:]
	got := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, passwordHashSize, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
