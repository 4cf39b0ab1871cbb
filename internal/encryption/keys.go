package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"safekeep/internal/sk"
)

const (
	// KeySize is the length of a symmetric key in bytes.
	KeySize = chacha20poly1305.KeySize

	// pbkdf2Iterations is the work factor for key derivation and password hashing.
	pbkdf2Iterations = 100_000
)

// keyDerivationSalt is the application-wide salt used when a key is derived
// from the application secret. It keeps the derived key stable across restarts.
var keyDerivationSalt = []byte("safekeep.encryption.v1")

// ErrMalformedKey is wrapped by the *sk.CryptoError returned for a key that
// does not decode to KeySize bytes.
var ErrMalformedKey = fmt.Errorf("encryption key must be %d bytes, base64url encoded", KeySize)

// ParseKey decodes a base64url-encoded key, with or without padding.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		key, err = base64.RawURLEncoding.DecodeString(encoded)
	}
	if err != nil || len(key) != KeySize {
		return nil, &sk.CryptoError{Op: "parse key", Err: ErrMalformedKey}
	}
	return key, nil
}

// EncodeKey returns the base64url form of a raw key.
func EncodeKey(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}

// DeriveKey derives a key from the application secret with PBKDF2-HMAC-SHA256.
// The same secret always yields the same key.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, &sk.CryptoError{Op: "derive key", Err: errors.New("empty secret")}
	}
	return pbkdf2.Key([]byte(secret), keyDerivationSalt, pbkdf2Iterations, KeySize, sha256.New), nil
}

// GenerateKey returns a new random key in base64url form.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return EncodeKey(key), nil
}

// NewCipher resolves the process key and returns its cipher. A configured
// key wins; otherwise the key is derived from secret.
func NewCipher(encodedKey, secret string) (*KeyCipher, error) {
	var (
		key []byte
		err error
	)
	if encodedKey != "" {
		key, err = ParseKey(encodedKey)
	} else {
		key, err = DeriveKey(secret)
	}
	if err != nil {
		return nil, err
	}
	return NewKeyCipher(key)
}
