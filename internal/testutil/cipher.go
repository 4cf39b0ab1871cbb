package testutil

import (
	"errors"
	"io"
	"testing"

	"safekeep/internal/encryption"
	"safekeep/internal/fs"
	"safekeep/internal/sk"
)

// TestKey is a fixed base64url key for tests that need the real cipher.
const TestKey = "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8"

// NewTestCipher creates a new test cipher for testing.
func NewTestCipher() sk.Cipher {
	return encryption.NewTestCipher()
}

// NewKeyCipher returns the production cipher keyed with TestKey.
func NewKeyCipher(t testing.TB) *encryption.KeyCipher {
	t.Helper()
	c, err := encryption.NewCipher(TestKey, "")
	if err != nil {
		t.Fatalf("creating key cipher: %v", err)
	}
	return c
}

// NewTestFileHandler creates a file handler over cipher and the OS filesystem.
func NewTestFileHandler(cipher sk.Cipher) *encryption.FileHandler {
	return encryption.NewFileHandler(cipher, fs.NewOSFilesystemManager())
}

// FailingCipher rejects every operation with a *sk.CryptoError.
type FailingCipher struct{}

func (FailingCipher) fail(op string) error {
	return &sk.CryptoError{Op: op, Err: errors.New("injected failure")}
}

func (c FailingCipher) Encrypt([]byte) ([]byte, error)           { return nil, c.fail("encrypt") }
func (c FailingCipher) Decrypt([]byte) ([]byte, error)           { return nil, c.fail("decrypt") }
func (c FailingCipher) EncryptStream(io.Reader, io.Writer) error { return c.fail("encrypt") }
func (c FailingCipher) DecryptStream(io.Reader, io.Writer) error { return c.fail("decrypt") }
